package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/BatiOli9/IDDO/internal/core/domain"
)

const IdempotencyHeader = "Idempotency-Key"

// ResponseStore keeps the first response produced for an idempotency key.
// A reserved key with no response yet loads with status 0.
type ResponseStore interface {
	// ReserveKey claims key for one in-flight request. It reports false when
	// the key is already reserved or answered.
	ReserveKey(ctx context.Context, key string) (bool, error)
	// ReleaseKey drops a reservation that never got a response.
	ReleaseKey(ctx context.Context, key string) error
	LoadResponse(ctx context.Context, key string) (int, []byte, error)
	SaveResponse(ctx context.Context, key string, status int, body []byte) error
}

// Idempotency replays the stored response when a client retries a request
// with the same Idempotency-Key. Keys are scoped to the caller. A retry that
// arrives while the first request is still running gets 409. Server errors
// are not stored, so the client may retry them.
func Idempotency(store ResponseStore, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 1. Get key from header
		key := c.Get(IdempotencyHeader)
		if key == "" {
			return c.Next()
		}
		if p, ok := PrincipalFrom(c); ok {
			key = p.UserID.String() + ":" + key
		}

		// 2. Claim the key before doing any work
		reserved, err := store.ReserveKey(c.Context(), key)
		if err != nil {
			log.Error("Idempotency reservation failed", zap.String("key", key), zap.Error(err))
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"error": "could not record idempotency key",
				"kind":  domain.KindPersistenceFailure,
			})
		}

		// 3. Replay if we have seen it
		if !reserved {
			status, body, err := store.LoadResponse(c.Context(), key)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				log.Error("Idempotency lookup failed", zap.String("key", key), zap.Error(err))
			}
			if err != nil || status == 0 {
				return c.Status(http.StatusConflict).JSON(fiber.Map{
					"error": "a request with this Idempotency-Key is still in progress",
				})
			}
			log.Info("🛑 Idempotency hit, returning stored response", zap.String("key", key))
			c.Set("X-Idempotency-Hit", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(status).Send(body)
		}

		// 4. Run the handler
		if err := c.Next(); err != nil {
			release(c.Context(), store, key, log)
			return err
		}

		// 5. Save the result
		resStatus := c.Response().StatusCode()
		if resStatus >= fiber.StatusInternalServerError {
			release(c.Context(), store, key, log)
			return nil
		}
		resBody := append([]byte(nil), c.Response().Body()...)
		if err := store.SaveResponse(c.Context(), key, resStatus, resBody); err != nil {
			log.Error("❌ Failed to save idempotency key", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
}

func release(ctx context.Context, store ResponseStore, key string, log *zap.Logger) {
	if err := store.ReleaseKey(ctx, key); err != nil {
		log.Error("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}
