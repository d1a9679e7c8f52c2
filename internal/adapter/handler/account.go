package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BatiOli9/IDDO/internal/core/domain"
	"github.com/BatiOli9/IDDO/internal/core/security"
)

type AccountStore interface {
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	Account(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	SaveAPIKey(ctx context.Context, userID uuid.UUID, keyHash, keyPrefix string) error
}

type AccountHandler struct {
	Repo AccountStore
	Log  *zap.Logger
}

// Balances handles GET /v1/balances.
func (h *AccountHandler) Balances(c *fiber.Ctx) error {
	accounts, err := h.Repo.ListAccounts(c.Context())
	if err != nil {
		h.Log.Error("List accounts failed", zap.Error(err))
		return notFoundOr500(c, err, "balances")
	}
	return c.JSON(fiber.Map{"accounts": accounts})
}

// Balance handles GET /v1/balances/:id.
func (h *AccountHandler) Balance(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid Account ID"})
	}
	acc, err := h.Repo.Account(c.Context(), accountID)
	if err != nil {
		return notFoundOr500(c, err, "account")
	}
	return c.JSON(acc)
}

// GenerateKey handles POST /v1/users/:id/keys.
func (h *AccountHandler) GenerateKey(c *fiber.Ctx) error {
	// 1. Parse user id
	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid User ID format"})
	}

	// 2. Generate secure key
	realKey, keyHash, err := security.GenerateAPIKey()
	if err != nil {
		h.Log.Error("Crypto error generating key", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Crypto error"})
	}

	// 3. Save hash
	prefix := realKey[:len(security.KeyPrefix)+4]
	if err := h.Repo.SaveAPIKey(c.Context(), userID, keyHash, prefix); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		h.Log.Error("Failed to save API key", zap.Stringer("user_id", userID), zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save key"})
	}

	h.Log.Info("🔑 API Key Generated", zap.Stringer("user_id", userID), zap.String("prefix", prefix))

	// 4. Show key to the caller (once only)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"api_key": realKey,
		"warning": "Save this now! We won't show it again.",
	})
}
