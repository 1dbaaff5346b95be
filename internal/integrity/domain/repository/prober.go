package repository

import (
	"context"

	"refguard/internal/integrity/domain/model"
)

// ProbeResult reports whether any child document references a parent id, and
// how many do.
type ProbeResult struct {
	HasReferences bool
	Count         int64
}

// ReferenceProber answers, for one catalog rule, whether any document in the
// rule's child collection references the given parent id. A storage failure
// must surface as an error, never as an empty result: an unknown state cannot
// be treated as "no references".
type ReferenceProber interface {
	Probe(ctx context.Context, rule model.ReferenceRule, parentID model.EntityID) (ProbeResult, error)
}
