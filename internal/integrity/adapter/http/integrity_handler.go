package http

import (
	"refguard/internal/integrity/usecase"
	"refguard/internal/shared/errors"
	"refguard/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// IntegrityHandler exposes the validator on the entity-mutation path. The
// storage layer calls these endpoints immediately before a delete or
// identity-changing update commits.
type IntegrityHandler struct {
	Validator usecase.IntegrityValidatorInterface
	Log       logger.Logger
}

// NewIntegrityHandler creates a new integrity HTTP handler
func NewIntegrityHandler(validator usecase.IntegrityValidatorInterface, log logger.Logger) *IntegrityHandler {
	return &IntegrityHandler{Validator: validator, Log: log}
}

// RegisterRoutes mounts the validation endpoints on the given router.
func (h *IntegrityHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/integrity/:parentType/:id/validate-delete", h.ValidateDelete)
	router.Post("/integrity/:parentType/validate-identity-change", h.ValidateIdentityChange)
}

// ValidateDelete returns 200 with the verdict when deletion is allowed, 409
// with the blocking list when refused, 500 when a probe failed.
func (h *IntegrityHandler) ValidateDelete(c *fiber.Ctx) error {
	parentType := c.Params("parentType")
	parentID := c.Params("id")
	h.Log.Debug("Validating deletion via HTTP", "parentType", parentType, "parentID", parentID)

	verdict, err := h.Validator.ValidateDeletion(c.UserContext(), parentType, parentID)
	if err != nil {
		return h.verdictError(c, err)
	}

	if !verdict.Allowed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":              "referential_integrity_violation",
			"message":            verdict.Explanation(),
			"allowed":            false,
			"blockingReferences": verdict.BlockingReferences,
		})
	}
	return c.JSON(verdict)
}

type identityChangeRequest struct {
	OldID string `json:"oldId"`
	NewID string `json:"newId"`
}

// ValidateIdentityChange runs the deletion check against the old id; see the
// validator for the optional new-id collision probe.
func (h *IntegrityHandler) ValidateIdentityChange(c *fiber.Ctx) error {
	parentType := c.Params("parentType")

	var req identityChangeRequest
	if err := c.BodyParser(&req); err != nil {
		h.Log.Error("Failed to parse request body", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request_body",
			"message": "Failed to parse request body",
		})
	}

	verdict, err := h.Validator.ValidateIdentityChange(c.UserContext(), parentType, req.OldID, req.NewID)
	if err != nil {
		return h.verdictError(c, err)
	}

	if !verdict.Allowed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":              "referential_integrity_violation",
			"message":            verdict.Explanation(),
			"allowed":            false,
			"blockingReferences": verdict.BlockingReferences,
		})
	}
	return c.JSON(verdict)
}

func (h *IntegrityHandler) verdictError(c *fiber.Ctx, err error) error {
	status := errors.HTTPStatus(err)
	code := "validation_failed"
	switch {
	case errors.IsInvalidInput(err):
		code = "invalid_input"
	case errors.IsProbeFailed(err):
		code = "probe_failed"
		h.Log.Error("Integrity validation failed closed", "error", err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": err.Error(),
	})
}
