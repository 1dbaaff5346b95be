package http

import (
	"refguard/internal/migration/usecase"
	"refguard/internal/shared/errors"
	"refguard/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// MigrationHandler exposes the migrator to operators. Routes registered here
// are expected to sit behind the admin auth middleware; a run blocks the
// request until the final stage reports.
type MigrationHandler struct {
	Migrator usecase.MigratorInterface
	Log      logger.Logger
}

// NewMigrationHandler creates a new migration HTTP handler
func NewMigrationHandler(migrator usecase.MigratorInterface, log logger.Logger) *MigrationHandler {
	return &MigrationHandler{Migrator: migrator, Log: log}
}

// RegisterRoutes mounts the migration endpoints on the given router.
func (h *MigrationHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/admin/migrations", h.RunMigration)
	router.Get("/admin/migrations/:collection", h.LatestMigration)
}

// RunMigration executes a composite-key migration synchronously and returns
// the full record. Degraded outcomes still carry the record so the operator
// sees counts and the backup collection name alongside the error.
func (h *MigrationHandler) RunMigration(c *fiber.Ctx) error {
	var req usecase.MigrationRequest
	if err := c.BodyParser(&req); err != nil {
		h.Log.Error("Failed to parse migration request body", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request_body",
			"message": "Failed to parse request body",
		})
	}

	h.Log.Info("Migration requested via HTTP",
		"collection", req.Collection,
		"oldField", req.OldIdentityField,
		"newField", req.NewIdentityField)

	record, err := h.Migrator.Run(c.UserContext(), req)
	if err != nil {
		status := errors.HTTPStatus(err)
		code := "migration_failed"
		switch {
		case errors.IsInvalidInput(err):
			code = "invalid_input"
		case errors.IsIndexConflict(err):
			code = "index_conflict"
		case errors.IsConflict(err):
			code = "migration_in_progress"
		case errors.IsMigrationAbort(err):
			code = "migration_aborted"
		}
		body := fiber.Map{
			"error":   code,
			"message": err.Error(),
		}
		if record != nil {
			body["record"] = record
		}
		return c.Status(status).JSON(body)
	}

	return c.JSON(record)
}

// LatestMigration returns the most recent record for a collection.
func (h *MigrationHandler) LatestMigration(c *fiber.Ctx) error {
	collection := c.Params("collection")

	record, err := h.Migrator.LatestRecord(c.UserContext(), collection)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   "not_found",
				"message": "no migration recorded for collection " + collection,
			})
		}
		h.Log.Error("Failed to load migration record", "collection", collection, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}

	return c.JSON(record)
}
