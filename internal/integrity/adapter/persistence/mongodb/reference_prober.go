package mongodb

import (
	"context"
	"fmt"

	"refguard/internal/integrity/domain/model"
	"refguard/internal/integrity/domain/repository"
	sharederrors "refguard/internal/shared/errors"
	"refguard/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
)

// ReferenceCounter is the slice of collection behavior the prober needs.
// *mongo.Database satisfies it through databaseCounter below.
type ReferenceCounter interface {
	CountReferences(ctx context.Context, collection string, filter interface{}) (int64, error)
}

// ReferenceProber answers existence checks against child collections. One
// round trip per catalog entry, read-only.
type ReferenceProber struct {
	counter ReferenceCounter
	logger  logger.Logger
}

var _ repository.ReferenceProber = (*ReferenceProber)(nil)

// NewReferenceProber creates a prober over the given counter.
func NewReferenceProber(counter ReferenceCounter, log logger.Logger) *ReferenceProber {
	return &ReferenceProber{
		counter: counter,
		logger:  log.WithComponent("reference-prober"),
	}
}

// Probe counts child documents referencing parentID under the given rule.
// A storage error is wrapped as ErrProbeFailed and never downgraded to an
// empty result.
func (p *ReferenceProber) Probe(ctx context.Context, rule model.ReferenceRule, parentID model.EntityID) (repository.ProbeResult, error) {
	var filter bson.M
	switch rule.Cardinality {
	case model.CardinalityArray:
		// Mongo matches array membership with the plain equality form, but
		// the branch keeps the intent visible.
		filter = bson.M{rule.ChildFieldPath: parentID.String()}
	default:
		filter = bson.M{rule.ChildFieldPath: parentID.String()}
	}

	count, err := p.counter.CountReferences(ctx, rule.ChildCollection, filter)
	if err != nil {
		p.logger.Error("Reference probe failed",
			"collection", rule.ChildCollection,
			"field", rule.ChildFieldPath,
			"error", err)
		return repository.ProbeResult{}, fmt.Errorf("%w: %s.%s: %v",
			sharederrors.ErrProbeFailed, rule.ChildCollection, rule.ChildFieldPath, err)
	}

	return repository.ProbeResult{
		HasReferences: count > 0,
		Count:         count,
	}, nil
}
