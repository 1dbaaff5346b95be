package integrity

import (
	"context"
	"fmt"

	integrityhttp "refguard/internal/integrity/adapter/http"
	"refguard/internal/integrity/adapter/persistence/mongodb"
	"refguard/internal/integrity/config"
	"refguard/internal/integrity/domain/model"
	"refguard/internal/integrity/usecase"
	"refguard/internal/shared/eventbus"
	"refguard/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/mongo"
)

// ReferenceIndexEnsurer keeps the child reference fields indexed so probes
// stay cheap as collections grow.
type ReferenceIndexEnsurer interface {
	EnsureReferenceIndex(ctx context.Context, collection, fieldPath string) error
}

// Module wires the integrity bounded context: catalog, prober, validator
// and the HTTP surface.
type Module struct {
	catalog   *model.Catalog
	validator usecase.IntegrityValidatorInterface
	handler   *integrityhttp.IntegrityHandler
	config    *config.IntegrityConfig
	logger    logger.Logger
}

// DefaultCatalog declares the reference rules for the step pipeline domain.
// Every collection that embeds a step id appears here; a child collection
// missing from the catalog is invisible to the validator.
func DefaultCatalog() *model.Catalog {
	catalog, err := model.NewCatalog(
		model.ReferenceRule{ParentType: "step", ChildCollection: "pipelines", ChildFieldPath: "step_ids", Cardinality: model.CardinalityArray},
		model.ReferenceRule{ParentType: "step", ChildCollection: "runs", ChildFieldPath: "step_id", Cardinality: model.CardinalitySingle},
		model.ReferenceRule{ParentType: "step", ChildCollection: "schedules", ChildFieldPath: "step_id", Cardinality: model.CardinalitySingle},
		model.ReferenceRule{ParentType: "step", ChildCollection: "alerts", ChildFieldPath: "step_id", Cardinality: model.CardinalitySingle},
		model.ReferenceRule{ParentType: "step", ChildCollection: "bookmarks", ChildFieldPath: "step_id", Cardinality: model.CardinalitySingle},
	)
	if err != nil {
		panic(fmt.Sprintf("default catalog is malformed: %v", err))
	}
	return catalog
}

// NewModule creates an integrity module over the given database and catalog.
// A nil catalog selects the default step pipeline rules.
func NewModule(db *mongo.Database, catalog *model.Catalog, bus eventbus.EventBusInterface, log logger.Logger, cfg *config.IntegrityConfig) (*Module, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if cfg == nil {
		loaded, err := config.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load integrity config: %w", err)
		}
		cfg = loaded
	}

	prober := mongodb.NewReferenceProber(mongodb.NewDatabaseCounter(db), log)
	validator := usecase.NewIntegrityValidator(catalog, prober, bus, log, cfg)
	handler := integrityhttp.NewIntegrityHandler(validator, log)

	return &Module{
		catalog:   catalog,
		validator: validator,
		handler:   handler,
		config:    cfg,
		logger:    log.WithComponent("integrity-module"),
	}, nil
}

// RegisterRoutes registers the validation endpoints with the provided router.
func (m *Module) RegisterRoutes(router fiber.Router) {
	m.handler.RegisterRoutes(router)
}

// Validator returns the validator for callers outside the HTTP surface.
func (m *Module) Validator() usecase.IntegrityValidatorInterface {
	return m.validator
}

// Catalog returns the active reference catalog.
func (m *Module) Catalog() *model.Catalog {
	return m.catalog
}

// EnsureReferenceIndexes creates a non-unique index on every child field the
// catalog probes. Missing indexes only slow probes down, so failures are
// logged per collection and the first one is returned after all are tried.
func (m *Module) EnsureReferenceIndexes(ctx context.Context, ensurer ReferenceIndexEnsurer) error {
	var firstErr error
	for _, parentType := range m.catalog.ParentTypes() {
		for _, rule := range m.catalog.RulesFor(parentType) {
			if err := ensurer.EnsureReferenceIndex(ctx, rule.ChildCollection, rule.ChildFieldPath); err != nil {
				m.logger.Error("Failed to ensure reference index",
					"collection", rule.ChildCollection,
					"field", rule.ChildFieldPath,
					"error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}
