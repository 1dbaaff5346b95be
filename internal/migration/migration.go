package migration

import (
	"context"
	"fmt"

	migrationhttp "refguard/internal/migration/adapter/http"
	"refguard/internal/migration/adapter/persistence/mongodb"
	"refguard/internal/migration/domain/model"
	"refguard/internal/migration/usecase"
	"refguard/internal/shared/auth"
	"refguard/internal/shared/eventbus"
	"refguard/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/mongo"
)

// Module wires the migration bounded context: collection admin, index
// manager, record store, migrator and the admin HTTP surface.
type Module struct {
	migrator usecase.MigratorInterface
	indexes  *mongodb.IndexManager
	handler  *migrationhttp.MigrationHandler
	logger   logger.Logger
}

// NewModule creates a migration module over the given database.
func NewModule(db *mongo.Database, bus eventbus.EventBusInterface, log logger.Logger) (*Module, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	collections := mongodb.NewCollectionAdmin(db, log)
	indexes := mongodb.NewIndexManager(mongodb.NewDatabaseIndexViews(db), log)
	records := mongodb.NewRecordStore(db)
	migrator := usecase.NewMigrator(collections, indexes, records, bus, log)
	handler := migrationhttp.NewMigrationHandler(migrator, log)

	return &Module{
		migrator: migrator,
		indexes:  indexes,
		handler:  handler,
		logger:   log.WithComponent("migration-module"),
	}, nil
}

// RegisterRoutes registers the admin endpoints behind the given middleware.
func (m *Module) RegisterRoutes(router fiber.Router, admin *auth.AdminMiddleware) {
	group := router.Group("", admin.RequireOperator())
	m.handler.RegisterRoutes(group)
}

// Migrator returns the migrator for callers outside the HTTP surface.
func (m *Module) Migrator() usecase.MigratorInterface {
	return m.migrator
}

// EnsureReferenceIndex creates a non-unique index on a child reference field.
// The name follows the migrator's reference index convention so a later
// migration run recognizes the index as its own.
func (m *Module) EnsureReferenceIndex(ctx context.Context, collection, fieldPath string) error {
	return m.indexes.EnsureIndex(ctx, collection,
		[]model.IndexKey{{Field: fieldPath, Direction: 1}}, false, "idx_"+fieldPath)
}
