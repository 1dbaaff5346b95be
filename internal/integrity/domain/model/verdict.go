package model

import "fmt"

// BlockingReference records one child collection that still references a
// parent id, with the number of referencing documents.
type BlockingReference struct {
	ChildCollection string `json:"childCollection"`
	Count           int64  `json:"count"`
}

// IntegrityVerdict is the allow/deny decision for a destructive or
// identity-changing operation on a parent entity. Produced fresh per request,
// never persisted.
type IntegrityVerdict struct {
	Allowed            bool                `json:"allowed"`
	BlockingReferences []BlockingReference `json:"blockingReferences,omitempty"`
}

// Allow returns the verdict for a parent with no live references.
func Allow() *IntegrityVerdict {
	return &IntegrityVerdict{Allowed: true}
}

// Deny returns the verdict carrying the complete blocking list.
func Deny(blocking []BlockingReference) *IntegrityVerdict {
	return &IntegrityVerdict{Allowed: false, BlockingReferences: blocking}
}

// Explanation renders the verdict for humans, listing every blocking
// collection with its count.
func (v *IntegrityVerdict) Explanation() string {
	if v.Allowed {
		return "no child collection references this entity"
	}
	msg := "entity is still referenced by:"
	for _, b := range v.BlockingReferences {
		msg += fmt.Sprintf(" %s(%d)", b.ChildCollection, b.Count)
	}
	return msg
}
