package auth

import (
	"context"
	"strings"

	"refguard/internal/shared/contextkeys"

	"github.com/gofiber/fiber/v2"
)

// TokenValidator validates admin tokens for the middleware.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// AdminMiddleware guards migration endpoints with bearer tokens.
type AdminMiddleware struct {
	tokens TokenValidator
}

// NewAdminMiddleware creates a new admin middleware
func NewAdminMiddleware(tokens TokenValidator) *AdminMiddleware {
	return &AdminMiddleware{tokens: tokens}
}

// RequireOperator returns middleware that requires a valid admin token. The
// operator id from the claims is injected into the request context so the
// migrator logs who ran the migration.
func (m *AdminMiddleware) RequireOperator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := m.extractToken(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		claims, err := m.tokens.ValidateToken(c.Context(), token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		ctx := context.WithValue(c.UserContext(), contextkeys.OperatorIDKey, claims.OperatorID)
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// extractToken extracts the bearer token from the Authorization header.
func (m *AdminMiddleware) extractToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer "), nil
	}
	return "", fiber.NewError(fiber.StatusUnauthorized, "No authentication token found")
}
