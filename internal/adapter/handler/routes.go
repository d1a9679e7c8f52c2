package handler

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/BatiOli9/IDDO/internal/adapter/middleware"
)

// Store is everything the HTTP layer reads or writes directly.
type Store interface {
	Pinger
	VoucherStore
	TransactionReader
	AccountStore
	middleware.KeyStore
	middleware.ResponseStore
}

type Deps struct {
	Engine     Transfers
	Store      Store
	AdminToken string
	Log        *zap.Logger
}

// Register mounts every route on app.
func Register(app *fiber.App, d Deps) {
	public := &PublicHandler{Store: d.Store, Vouchers: d.Store, Log: d.Log}
	transactions := &TransactionHandler{Engine: d.Engine, Repo: d.Store, Log: d.Log}
	accounts := &AccountHandler{Repo: d.Store, Log: d.Log}

	// Public
	app.Get("/", public.Index)
	app.Get("/healthz", public.Health)

	api := app.Group("/v1")
	api.Post("/cvu/validate", public.ValidateCVU)
	api.Get("/vouchers/:name", public.Voucher)

	// Admin projections
	admin := middleware.AdminOnly(d.AdminToken)
	api.Get("/transactions", admin, transactions.List)
	api.Get("/transactions/user/:id", admin, transactions.ListBySender)
	api.Get("/balances", admin, accounts.Balances)
	api.Get("/balances/:id", admin, accounts.Balance)
	api.Post("/users/:id/keys", admin, accounts.GenerateKey)

	// Authenticated transfers
	auth := middleware.Protected(d.Store, d.Log)
	idem := middleware.Idempotency(d.Store, d.Log)
	api.Post("/transactions", auth, idem, transactions.CreateByCVU)
	api.Post("/transactions/alias", auth, idem, transactions.CreateByAlias)
}

// ErrorHandler renders errors that escape the handlers as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	msg := "internal error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
