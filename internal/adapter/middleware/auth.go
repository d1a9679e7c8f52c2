package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BatiOli9/IDDO/internal/core/domain"
	"github.com/BatiOli9/IDDO/internal/core/security"
)

const (
	principalKey = "principal"

	AdminTokenHeader = "X-Admin-Token"
)

// KeyStore finds the owner of a hashed API key.
type KeyStore interface {
	UserIDByKeyHash(ctx context.Context, keyHash string) (uuid.UUID, error)
}

// Protected authenticates "Authorization: Bearer iddo_live_..." and stores
// the caller's Principal for the handlers.
func Protected(keys KeyStore, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 1. Get token from header
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized(c, "Missing API Key")
		}
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return unauthorized(c, "Invalid Header Format")
		}

		// 2. Hash the key (we never compare plain text)
		hashedKey := security.HashKey(parts[1])

		// 3. Look it up
		userID, err := keys.UserIDByKeyHash(c.Context(), hashedKey)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				log.Error("API key lookup failed", zap.Error(err))
				return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
					"error": "could not verify credentials",
					"kind":  domain.KindPersistenceFailure,
				})
			}
			return unauthorized(c, "Invalid API Key")
		}

		// 4. Save principal so handlers know who is calling
		c.Locals(principalKey, security.Principal{UserID: userID})
		return c.Next()
	}
}

// PrincipalFrom returns the principal stored by Protected.
func PrincipalFrom(c *fiber.Ctx) (security.Principal, bool) {
	p, ok := c.Locals(principalKey).(security.Principal)
	return p, ok && p.Valid()
}

// AdminOnly gates the administrative projections behind a shared token.
// With no token configured the routes are closed.
func AdminOnly(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "admin endpoints are disabled"})
		}
		if !security.TokensEqual(c.Get(AdminTokenHeader), token) {
			return unauthorized(c, "Invalid admin token")
		}
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": msg, "kind": domain.KindUnauthenticated})
}
