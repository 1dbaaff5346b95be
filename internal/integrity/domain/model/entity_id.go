package model

import (
	"fmt"

	"refguard/internal/shared/errors"

	"github.com/google/uuid"
)

// EntityID is the 128-bit identity a parent entity is known by. It is the
// value child documents carry in their reference fields, so it is immutable
// once assigned.
type EntityID struct {
	value uuid.UUID
}

// NewEntityID returns a freshly generated EntityID.
func NewEntityID() EntityID {
	return EntityID{value: uuid.New()}
}

// ParseEntityID validates and parses a textual entity id. Malformed input is
// rejected before any probe runs.
func ParseEntityID(s string) (EntityID, error) {
	if s == "" {
		return EntityID{}, fmt.Errorf("%w: empty id", errors.ErrInvalidEntityID)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return EntityID{}, fmt.Errorf("%w: %q", errors.ErrInvalidEntityID, s)
	}
	return EntityID{value: u}, nil
}

// String returns the canonical textual form.
func (id EntityID) String() string {
	return id.value.String()
}

// IsZero reports whether the id is the zero value.
func (id EntityID) IsZero() bool {
	return id.value == uuid.Nil
}

// Equal reports whether two ids refer to the same entity.
func (id EntityID) Equal(other EntityID) bool {
	return id.value == other.value
}
