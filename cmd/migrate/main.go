package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"os"
	"time"

	"refguard/internal/migration"
	migrationusecase "refguard/internal/migration/usecase"
	"refguard/internal/shared/errors"
	"refguard/internal/shared/eventbus"
	"refguard/internal/shared/logger"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Exit codes: 0 success, 2 degraded run (partial rewrite or failed
// validation, backup retained), 1 everything else.
const (
	exitOK       = 0
	exitError    = 1
	exitDegraded = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		collection = flag.String("collection", "", "collection to migrate")
		oldField   = flag.String("old-field", "", "legacy identity field to remove")
		newField   = flag.String("new-field", "", "new identity field to enforce")
		refField   = flag.String("ref-field", "", "new reference field to index")
		batchSize  = flag.Int64("batch-size", 100, "documents rewritten per page")
		mongoURI   = flag.String("mongo-uri", "", "MongoDB connection string (defaults to MONGODB_URI)")
		database   = flag.String("database", "", "database name (defaults to MONGODB_DATABASE or refguard)")
		timeout    = flag.Duration("timeout", 30*time.Minute, "overall run timeout")
	)
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return exitError
	}
	defer zapLogger.Sync()

	if err := godotenv.Load(); err != nil {
		zapLogger.Debug("No .env file loaded", zap.Error(err))
	}

	uri := *mongoURI
	if uri == "" {
		uri = os.Getenv("MONGODB_URI")
	}
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	dbName := *database
	if dbName == "" {
		dbName = os.Getenv("MONGODB_DATABASE")
	}
	if dbName == "" {
		dbName = "refguard"
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		zapLogger.Error("Failed to connect to MongoDB", zap.String("uri", uri), zap.Error(err))
		return exitError
	}
	defer client.Disconnect(context.Background())

	if err := client.Ping(ctx, nil); err != nil {
		zapLogger.Error("Failed to ping MongoDB", zap.String("uri", uri), zap.Error(err))
		return exitError
	}

	appLogger := logger.NewLogger()
	bus := eventbus.NewEventBus(appLogger)
	module, err := migration.NewModule(client.Database(dbName), bus, appLogger)
	if err != nil {
		zapLogger.Error("Failed to initialize migration module", zap.Error(err))
		return exitError
	}

	req := migrationusecase.MigrationRequest{
		Collection:        *collection,
		OldIdentityField:  *oldField,
		NewIdentityField:  *newField,
		NewReferenceField: *refField,
		BatchSize:         *batchSize,
	}

	zapLogger.Info("Starting migration",
		zap.String("collection", req.Collection),
		zap.String("oldField", req.OldIdentityField),
		zap.String("newField", req.NewIdentityField),
		zap.Int64("batchSize", req.BatchSize))

	record, runErr := module.Migrator().Run(ctx, req)
	if record != nil {
		zapLogger.Info("Migration finished",
			zap.String("outcome", string(record.Outcome)),
			zap.Int64("total", record.TotalDocuments),
			zap.Int64("migrated", record.MigratedCount),
			zap.Int64("errors", record.ErrorCount),
			zap.String("backup", record.BackupCollection),
			zap.Bool("validationPassed", record.ValidationPassed))
	}

	if runErr == nil {
		return exitOK
	}

	switch {
	case errors.IsInvalidInput(runErr):
		fmt.Fprintf(os.Stderr, "invalid request: %v\n", runErr)
		flag.Usage()
		return exitError
	case isDegraded(runErr):
		zapLogger.Warn("Migration completed degraded, backup retained", zap.Error(runErr))
		return exitDegraded
	default:
		zapLogger.Error("Migration failed", zap.Error(runErr))
		return exitError
	}
}

func isDegraded(err error) bool {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Type == errors.ErrorTypeMigrationPartial ||
		appErr.Type == errors.ErrorTypeMigrationValidationFailed
}
