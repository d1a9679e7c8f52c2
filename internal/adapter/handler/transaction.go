package handler

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/BatiOli9/IDDO/internal/adapter/middleware"
	"github.com/BatiOli9/IDDO/internal/core/domain"
	"github.com/BatiOli9/IDDO/internal/core/security"
	"github.com/BatiOli9/IDDO/internal/core/transfer"
)

// Transfers is the transfer engine as seen by HTTP.
type Transfers interface {
	TransferByCVU(ctx context.Context, p security.Principal, amount decimal.Decimal, cvu string) (*transfer.Result, error)
	TransferByAlias(ctx context.Context, p security.Principal, amount decimal.Decimal, alias string) (*transfer.Result, error)
}

// TransactionReader serves the transaction projections.
type TransactionReader interface {
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	ListTransactionsBySender(ctx context.Context, senderID uuid.UUID) ([]domain.Transaction, error)
}

type TransactionHandler struct {
	Engine Transfers
	Repo   TransactionReader
	Log    *zap.Logger
}

// Request models. Amount accepts a JSON number or a numeric string.
type TransferByCVURequest struct {
	Amount decimal.Decimal `json:"amount"`
	CVU    string          `json:"cvu" validate:"required"`
}

type TransferByAliasRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Alias  string          `json:"alias" validate:"required,max=64"`
}

type TransferResponse struct {
	Status         string             `json:"status"`
	Transaction    domain.Transaction `json:"transaction"`
	VoucherURL     *string            `json:"voucher_url"`
	VoucherPending bool               `json:"voucher_pending"`
}

// CreateByCVU handles POST /v1/transactions.
func (h *TransactionHandler) CreateByCVU(c *fiber.Ctx) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return fail(c, domain.NewError(domain.KindUnauthenticated, "sender identity is required"))
	}
	var req TransferByCVURequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}

	res, err := h.Engine.TransferByCVU(c.Context(), p, req.Amount, req.CVU)
	return h.respond(c, res, err)
}

// CreateByAlias handles POST /v1/transactions/alias.
func (h *TransactionHandler) CreateByAlias(c *fiber.Ctx) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return fail(c, domain.NewError(domain.KindUnauthenticated, "sender identity is required"))
	}
	var req TransferByAliasRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}

	res, err := h.Engine.TransferByAlias(c.Context(), p, req.Amount, req.Alias)
	return h.respond(c, res, err)
}

func (h *TransactionHandler) respond(c *fiber.Ctx, res *transfer.Result, err error) error {
	if err != nil {
		if StatusFor(domain.KindOf(err)) >= http.StatusInternalServerError {
			h.Log.Error("Transfer failed", zap.Error(err))
		}
		return fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(TransferResponse{
		Status:         "success",
		Transaction:    res.Transaction,
		VoucherURL:     res.Transaction.VoucherURL,
		VoucherPending: res.VoucherPending,
	})
}

// List handles GET /v1/transactions.
func (h *TransactionHandler) List(c *fiber.Ctx) error {
	txs, err := h.Repo.ListTransactions(c.Context())
	if err != nil {
		h.Log.Error("List transactions failed", zap.Error(err))
		return notFoundOr500(c, err, "transactions")
	}
	return c.JSON(fiber.Map{"transactions": txs})
}

// ListBySender handles GET /v1/transactions/user/:id.
func (h *TransactionHandler) ListBySender(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid User ID"})
	}
	txs, err := h.Repo.ListTransactionsBySender(c.Context(), userID)
	if err != nil {
		h.Log.Error("List transactions by sender failed", zap.Stringer("user_id", userID), zap.Error(err))
		return notFoundOr500(c, err, "transactions")
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return c.JSON(fiber.Map{"transactions": txs})
}
