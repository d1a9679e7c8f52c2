package handler

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/BatiOli9/IDDO/internal/core/domain"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type VoucherStore interface {
	GetVoucher(ctx context.Context, name string) ([]byte, string, error)
}

type PublicHandler struct {
	Store    Pinger
	Vouchers VoucherStore
	Log      *zap.Logger
}

// Index handles GET /.
func (h *PublicHandler) Index(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "IDDO API is running"})
}

// Health handles GET /healthz.
func (h *PublicHandler) Health(c *fiber.Ctx) error {
	if err := h.Store.Ping(c.Context()); err != nil {
		h.Log.Warn("Health check failed", zap.Error(err))
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type ValidateCVURequest struct {
	CVU string `json:"cvu" validate:"required"`
}

// ValidateCVU handles POST /v1/cvu/validate. It checks the format only.
func (h *PublicHandler) ValidateCVU(c *fiber.Ctx) error {
	var req ValidateCVURequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if !domain.ValidCVU(req.CVU) {
		return fail(c, domain.NewError(domain.KindInvalidFormat, "CVU must contain exactly 22 numeric digits"))
	}
	return c.JSON(fiber.Map{"valid": true, "cvu": req.CVU})
}

// Voucher handles GET /v1/vouchers/:name.
func (h *PublicHandler) Voucher(c *fiber.Ctx) error {
	body, contentType, err := h.Vouchers.GetVoucher(c.Context(), c.Params("name"))
	if err != nil {
		return notFoundOr500(c, err, "voucher")
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Status(http.StatusOK).Send(body)
}
