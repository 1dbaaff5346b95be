package usecase

import (
	"context"
	stderrors "errors"
	"fmt"

	"refguard/internal/integrity/config"
	"refguard/internal/integrity/domain/model"
	"refguard/internal/integrity/domain/repository"
	"refguard/internal/shared/errors"
	"refguard/internal/shared/eventbus"
	"refguard/internal/shared/logger"

	"golang.org/x/sync/errgroup"
)

// IntegrityValidatorInterface is the caller boundary for the entity-mutation
// path. It is invoked synchronously immediately before a delete or
// identity-changing update commits.
type IntegrityValidatorInterface interface {
	ValidateDeletion(ctx context.Context, parentType, parentID string) (*model.IntegrityVerdict, error)
	ValidateIdentityChange(ctx context.Context, parentType, oldID, newID string) (*model.IntegrityVerdict, error)
}

// IntegrityValidator fans a parent id out to one existence probe per catalog
// rule and aggregates the results into a verdict. Pure read-then-decide; the
// caller acts on the verdict.
type IntegrityValidator struct {
	catalog  *model.Catalog
	prober   repository.ReferenceProber
	eventBus eventbus.EventBusInterface
	logger   logger.Logger
	cfg      *config.IntegrityConfig
}

// NewIntegrityValidator creates a validator over the given catalog and prober.
func NewIntegrityValidator(
	catalog *model.Catalog,
	prober repository.ReferenceProber,
	bus eventbus.EventBusInterface,
	log logger.Logger,
	cfg *config.IntegrityConfig,
) *IntegrityValidator {
	if cfg == nil {
		cfg = config.DefaultIntegrityConfig()
	}
	return &IntegrityValidator{
		catalog:  catalog,
		prober:   prober,
		eventBus: bus,
		logger:   log.WithComponent("integrity-validator"),
		cfg:      cfg,
	}
}

// ValidateDeletion decides whether the parent entity may be deleted. The
// verdict is allowed only when every probe reports zero references; a failed
// probe fails the whole validation closed.
func (v *IntegrityValidator) ValidateDeletion(ctx context.Context, parentType, parentID string) (*model.IntegrityVerdict, error) {
	id, rules, err := v.resolve(parentType, parentID)
	if err != nil {
		return nil, err
	}

	verdict, err := v.probeAll(ctx, rules, id)
	if err != nil {
		return nil, err
	}

	if !verdict.Allowed {
		v.logger.Info("Deletion refused",
			"parentType", parentType,
			"parentID", parentID,
			"blocking", len(verdict.BlockingReferences))
		v.publishRefusal(ctx, eventbus.EventTypeDeleteRefused, parentType, parentID, verdict)
	}
	return verdict, nil
}

// ValidateIdentityChange decides whether the parent's identity field may
// change from oldID to newID. Changing identity orphans existing references
// exactly as deletion would, so the old id runs the deletion check. The new
// id is additionally probed when CheckNewIDCollision is enabled.
func (v *IntegrityValidator) ValidateIdentityChange(ctx context.Context, parentType, oldID, newID string) (*model.IntegrityVerdict, error) {
	if _, err := model.ParseEntityID(newID); err != nil {
		return nil, errors.NewInvalidInputError("malformed new entity id").WithCause(err)
	}

	id, rules, err := v.resolve(parentType, oldID)
	if err != nil {
		return nil, err
	}

	verdict, err := v.probeAll(ctx, rules, id)
	if err != nil {
		return nil, err
	}

	if verdict.Allowed && v.cfg.CheckNewIDCollision {
		newParsed, _ := model.ParseEntityID(newID)
		collision, err := v.probeAll(ctx, rules, newParsed)
		if err != nil {
			return nil, err
		}
		if !collision.Allowed {
			verdict = collision
		}
	}

	if !verdict.Allowed {
		v.logger.Info("Identity change refused",
			"parentType", parentType,
			"oldID", oldID,
			"newID", newID,
			"blocking", len(verdict.BlockingReferences))
		v.publishRefusal(ctx, eventbus.EventTypeIdentityChangeRefused, parentType, oldID, verdict)
	}
	return verdict, nil
}

// resolve rejects malformed input before any probe runs.
func (v *IntegrityValidator) resolve(parentType, parentID string) (model.EntityID, []model.ReferenceRule, error) {
	id, err := model.ParseEntityID(parentID)
	if err != nil {
		return model.EntityID{}, nil, errors.NewInvalidInputError("malformed entity id").WithCause(err)
	}
	if !v.catalog.HasParentType(parentType) {
		return model.EntityID{}, nil, errors.NewInvalidInputError(
			fmt.Sprintf("unknown parent entity type %q", parentType)).
			WithCause(errors.ErrUnknownParentType)
	}
	return id, v.catalog.RulesFor(parentType), nil
}

// probeAll runs one probe per rule concurrently under the configured deadline.
// All probes must finish before a verdict is produced: there is no
// short-circuit on the first hit, because callers need the complete blocking
// list for diagnostics.
func (v *IntegrityValidator) probeAll(ctx context.Context, rules []model.ReferenceRule, id model.EntityID) (*model.IntegrityVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.ProbeTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	results := make([]repository.ProbeResult, len(rules))

	for i, rule := range rules {
		i, rule := i, rule
		g.Go(func() error {
			res, err := v.prober.Probe(ctx, rule, id)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		v.publishFailure(ctx, id, err)
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewProbeFailedError("integrity validation timed out").
				WithCause(errors.ErrValidationTimeout)
		}
		return nil, errors.NewProbeFailedError("reference probe could not complete").WithCause(err)
	}

	var blocking []model.BlockingReference
	for i, res := range results {
		if res.HasReferences {
			blocking = append(blocking, model.BlockingReference{
				ChildCollection: rules[i].ChildCollection,
				Count:           res.Count,
			})
		}
	}

	if len(blocking) > 0 {
		return model.Deny(blocking), nil
	}
	return model.Allow(), nil
}

func (v *IntegrityValidator) publishRefusal(ctx context.Context, eventType, parentType, parentID string, verdict *model.IntegrityVerdict) {
	if v.eventBus == nil {
		return
	}
	v.eventBus.PublishAndForget(ctx, eventbus.NewBasicEventWithSource(eventType, map[string]interface{}{
		"parentType":         parentType,
		"parentId":           parentID,
		"blockingReferences": verdict.BlockingReferences,
		"explanation":        verdict.Explanation(),
	}, "integrity-validator"))
}

func (v *IntegrityValidator) publishFailure(ctx context.Context, id model.EntityID, err error) {
	if v.eventBus == nil {
		return
	}
	v.eventBus.PublishAndForget(context.WithoutCancel(ctx), eventbus.NewBasicEventWithSource(
		eventbus.EventTypeValidationFailed, map[string]interface{}{
			"parentId": id.String(),
			"error":    err.Error(),
		}, "integrity-validator"))
}
