package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"refguard/internal/di"
	"refguard/internal/shared/audit"
	"refguard/internal/shared/auth"
	"refguard/internal/shared/logger"

	"github.com/caarlos0/env/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string `env:"SERVER_HOST" envDefault:"localhost"`
	Port         string `env:"SERVER_PORT" envDefault:"3000"`
	DatabaseName string `env:"MONGODB_DATABASE" envDefault:"refguard"`
	AuditEnabled bool   `env:"AUDIT_ENABLED" envDefault:"true"`
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	serverCfg := &ServerConfig{}
	if err := env.Parse(serverCfg); err != nil {
		log.Fatalf("Failed to load server configuration: %v", err)
	}

	appLogger := logger.NewLogger()
	appLogger.Info("Application configuration loaded successfully")

	container := di.NewContainer()
	container.Logger = appLogger
	defer func() {
		if err := container.Close(); err != nil {
			appLogger.Error("Failed to close container", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
		appLogger.Warn("MONGODB_URI not set, using default", "uri", mongoURI)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			appLogger.Error("Failed to disconnect MongoDB", "error", err)
		}
	}()

	if err := mongoClient.Ping(ctx, nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	appLogger.Info("MongoDB connection established successfully")

	// Audit sink is optional: the service runs without Redis, it just loses
	// the replayable trail.
	var auditClient *redis.Client
	var streamMaxLength int64
	if serverCfg.AuditEnabled {
		redisCfg, err := audit.LoadRedisConfig()
		if err != nil {
			log.Fatalf("Failed to load audit redis configuration: %v", err)
		}
		streamMaxLength = redisCfg.StreamMaxLength
		auditClient = audit.NewRedisClient(redisCfg)
		if err := auditClient.Ping(ctx).Err(); err != nil {
			appLogger.Warn("Audit Redis unreachable, continuing without audit trail", "error", err)
			auditClient = nil
		}
	}
	container.InitializeShared(auditClient, streamMaxLength)

	authConfig, err := auth.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load auth configuration: %v", err)
	}
	if err := container.InitializeAuth(authConfig); err != nil {
		log.Fatalf("Failed to initialize admin auth: %v", err)
	}

	mongoDB := mongoClient.Database(serverCfg.DatabaseName)

	if err := container.InitializeIntegrity(mongoDB); err != nil {
		log.Fatalf("Failed to initialize integrity module: %v", err)
	}
	appLogger.Info("Integrity module initialized successfully")

	if err := container.InitializeMigration(); err != nil {
		log.Fatalf("Failed to initialize migration module: %v", err)
	}
	appLogger.Info("Migration module initialized successfully")

	if err := container.EnsureReferenceIndexes(ctx); err != nil {
		appLogger.Warn("Failed to ensure reference indexes", "error", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "RefGuard API v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			appLogger.Error("HTTP error", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal Server Error",
			})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		healthCtx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
		defer cancel()

		if err := container.HealthCheck(healthCtx); err != nil {
			appLogger.Error("Health check failed", "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  "UNHEALTHY",
				"error":   err.Error(),
				"message": "One or more services are unhealthy",
			})
		}

		return c.JSON(fiber.Map{
			"status":    "HEALTHY",
			"message":   "RefGuard API is running",
			"timestamp": time.Now().UTC(),
			"modules": fiber.Map{
				"integrity": "initialized",
				"migration": "initialized",
			},
		})
	})

	api := app.Group("/api/v1")
	container.GetIntegrityModule().RegisterRoutes(api)
	appLogger.Info("Integrity routes registered")

	container.GetMigrationModule().RegisterRoutes(api, container.AdminMiddleware())
	appLogger.Info("Migration routes registered")

	serverAddr := fmt.Sprintf("%s:%s", serverCfg.Host, serverCfg.Port)
	appLogger.Info("All modules initialized, starting HTTP server", "addr", serverAddr)

	serverShutdown := make(chan error, 1)
	go func() {
		serverShutdown <- app.Listen(serverAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverShutdown:
		if err != nil {
			log.Fatalf("Server startup failed: %v", err)
		}
	case sig := <-quit:
		appLogger.Info("Received shutdown signal", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", "error", err)
		}

		appLogger.Info("HTTP server stopped")
	}
}
