package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"refguard/internal/integrity"
	"refguard/internal/migration"
	"refguard/internal/shared/audit"
	"refguard/internal/shared/auth"
	"refguard/internal/shared/eventbus"
	"refguard/internal/shared/logger"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container owns module construction order, the shared infrastructure and
// the backing connections' lifecycle.
type Container struct {
	mu sync.RWMutex
	// Module instances
	IntegrityModule *integrity.Module
	MigrationModule *migration.Module
	// Shared infrastructure
	EventBus  *eventbus.EventBus
	AuditSink *audit.RedisAuditSink
	TokenSvc  *auth.TokenService
	// Database connections
	MongoDB *mongo.Database
	Redis   *redis.Client
	// Logger
	Logger logger.Logger
}

// NewContainer creates a new DI container
func NewContainer() *Container {
	return &Container{}
}

// InitializeShared wires the logger, event bus and, when a Redis client is
// given, the audit sink. A nil Redis client disables auditing rather than
// failing startup.
func (c *Container) InitializeShared(redisClient *redis.Client, streamMaxLength int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Logger == nil {
		c.Logger = logger.NewLogger()
	}
	c.EventBus = eventbus.NewEventBus(c.Logger)

	if redisClient != nil {
		c.Redis = redisClient
		c.AuditSink = audit.NewRedisAuditSink(redisClient, c.Logger, streamMaxLength)
		c.AuditSink.Register(c.EventBus)
	}
}

// InitializeAuth initializes the admin token service.
func (c *Container) InitializeAuth(cfg *auth.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tokenSvc, err := auth.NewTokenService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}
	c.TokenSvc = tokenSvc
	return nil
}

// InitializeIntegrity initializes the integrity module.
func (c *Container) InitializeIntegrity(mongoDB *mongo.Database) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.EventBus == nil {
		return fmt.Errorf("shared infrastructure must be initialized before the integrity module")
	}

	c.MongoDB = mongoDB
	module, err := integrity.NewModule(mongoDB, nil, c.EventBus, c.Logger, nil)
	if err != nil {
		return fmt.Errorf("failed to create integrity module: %w", err)
	}
	c.IntegrityModule = module
	return nil
}

// InitializeMigration initializes the migration module.
func (c *Container) InitializeMigration() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.MongoDB == nil {
		return fmt.Errorf("MongoDB must be initialized before the migration module")
	}
	if c.EventBus == nil {
		return fmt.Errorf("shared infrastructure must be initialized before the migration module")
	}

	module, err := migration.NewModule(c.MongoDB, c.EventBus, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to create migration module: %w", err)
	}
	c.MigrationModule = module
	return nil
}

// EnsureReferenceIndexes indexes every catalog child field through the
// migration module's index manager. Both modules must be initialized.
func (c *Container) EnsureReferenceIndexes(ctx context.Context) error {
	c.mu.RLock()
	integrityModule := c.IntegrityModule
	migrationModule := c.MigrationModule
	c.mu.RUnlock()

	if integrityModule == nil || migrationModule == nil {
		return fmt.Errorf("integrity and migration modules must be initialized before ensuring indexes")
	}
	return integrityModule.EnsureReferenceIndexes(ctx, migrationModule)
}

// GetIntegrityModule returns the integrity module instance
func (c *Container) GetIntegrityModule() *integrity.Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.IntegrityModule
}

// GetMigrationModule returns the migration module instance
func (c *Container) GetMigrationModule() *migration.Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MigrationModule
}

// AdminMiddleware returns the middleware guarding the migration endpoints.
func (c *Container) AdminMiddleware() *auth.AdminMiddleware {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return auth.NewAdminMiddleware(c.TokenSvc)
}

// HealthCheck performs health checks on the backing connections
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.MongoDB != nil {
		if err := c.MongoDB.Client().Ping(ctx, nil); err != nil {
			return fmt.Errorf("MongoDB health check failed: %w", err)
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("Redis health check failed: %w", err)
		}
	}

	return nil
}

// Cleanup tears modules down in reverse initialization order and closes the
// Redis client. The Mongo client is owned by the caller that connected it.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.MigrationModule = nil
	c.IntegrityModule = nil

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Redis = nil
			return fmt.Errorf("failed to close Redis client: %w", err)
		}
		c.Redis = nil
	}

	return nil
}

// Close gracefully shuts down all services in the container with timeout
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Cleanup(ctx); err != nil && c.Logger != nil {
		c.Logger.Warn("Cleanup errors occurred", "error", err)
	}
	return nil
}
