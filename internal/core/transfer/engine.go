// Package transfer moves funds between IDDO accounts. It validates the
// request, resolves the recipient, applies guardian limits, commits the
// balance change atomically and then hands voucher generation and guardian
// notification to background workers.
package transfer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BatiOli9/IDDO/internal/core/domain"
	"github.com/BatiOli9/IDDO/internal/core/identity"
	"github.com/BatiOli9/IDDO/internal/core/limits"
	"github.com/BatiOli9/IDDO/internal/core/notifications"
	"github.com/BatiOli9/IDDO/internal/core/security"
	"github.com/BatiOli9/IDDO/internal/core/worker"
)

// Store is the ledger the engine runs against.
type Store interface {
	identity.Directory
	limits.Ledger
	AccountByUser(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	// ApplyTransfer debits, credits and records the transaction as one
	// atomic unit, re-checking funds and the daily cap inside it.
	ApplyTransfer(ctx context.Context, in domain.TransferIntent) (*domain.Transaction, error)
	AttachVoucher(ctx context.Context, transactionID uuid.UUID, ref string) error
	GuardianOf(ctx context.Context, childID uuid.UUID) (*domain.GuardianLink, error)
}

type VoucherGenerator interface {
	Generate(ctx context.Context, d domain.VoucherDetails) (string, error)
}

// Dispatcher runs post-commit work off the request path.
type Dispatcher interface {
	Submit(job worker.Job) error
}

type Options struct {
	// MaxAttempts bounds how often the atomic step is retried on conflict.
	MaxAttempts  uint
	RetryInitial time.Duration
	RetryMax     time.Duration
	// VoucherWait is how long a request waits for the voucher reference
	// before answering without it.
	VoucherWait time.Duration
	// SideEffectRetry applies to voucher generation and each notification.
	SideEffectRetry worker.RetryPolicy
}

// Result is a committed transfer. VoucherPending is true when the voucher
// was still being generated when the response was built.
type Result struct {
	Transaction    domain.Transaction `json:"transaction"`
	VoucherPending bool               `json:"voucher_pending"`
}

type Engine struct {
	store      Store
	resolver   *identity.Resolver
	policy     *limits.Policy
	vouchers   VoucherGenerator
	notifier   notifications.Notifier
	dispatcher Dispatcher
	log        *zap.Logger
	tracer     trace.Tracer
	opts       Options
}

func NewEngine(
	store Store,
	policy *limits.Policy,
	vouchers VoucherGenerator,
	notifier notifications.Notifier,
	dispatcher Dispatcher,
	log *zap.Logger,
	opts Options,
) *Engine {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 1
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = 10 * time.Millisecond
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 200 * time.Millisecond
	}
	return &Engine{
		store:      store,
		resolver:   identity.NewResolver(store),
		policy:     policy,
		vouchers:   vouchers,
		notifier:   notifier,
		dispatcher: dispatcher,
		log:        log,
		tracer:     otel.Tracer("github.com/BatiOli9/IDDO/internal/core/transfer"),
		opts:       opts,
	}
}

// TransferByCVU sends amount from the principal to the owner of cvu.
func (e *Engine) TransferByCVU(ctx context.Context, p security.Principal, amount decimal.Decimal, cvu string) (*Result, error) {
	if err := validateRequest(p, amount, cvu, "cvu"); err != nil {
		return nil, err
	}
	receiver, err := e.resolver.ResolveByCVU(ctx, cvu)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, p, amount, receiver)
}

// TransferByAlias sends amount from the principal to the owner of alias.
func (e *Engine) TransferByAlias(ctx context.Context, p security.Principal, amount decimal.Decimal, alias string) (*Result, error) {
	if err := validateRequest(p, amount, alias, "alias"); err != nil {
		return nil, err
	}
	receiver, err := e.resolver.ResolveByAlias(ctx, alias)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, p, amount, receiver)
}

func validateRequest(p security.Principal, amount decimal.Decimal, recipient, field string) error {
	if !p.Valid() {
		return domain.NewError(domain.KindUnauthenticated, "sender identity is required")
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.WrapError(domain.KindInvalidInput, err.Error(), err)
	}
	if strings.TrimSpace(recipient) == "" {
		return domain.NewError(domain.KindInvalidInput, field+" is required")
	}
	return nil
}

// execute runs everything after the recipient is known. Both entry points
// share it.
func (e *Engine) execute(ctx context.Context, p security.Principal, amount decimal.Decimal, receiver *domain.User) (res *Result, err error) {
	ctx, span := e.tracer.Start(ctx, "transfer.execute", trace.WithAttributes(
		attribute.String("transfer.sender_id", p.UserID.String()),
		attribute.String("transfer.receiver_id", receiver.ID.String()),
		attribute.String("transfer.amount", amount.StringFixed(domain.MaxScale)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(domain.KindOf(err)))
		}
		span.End()
	}()

	// 1. Self-transfer guard
	if receiver.ID == p.UserID {
		return nil, domain.NewError(domain.KindSelfTransfer, "cannot transfer to your own account")
	}

	// 2. Guardian limits
	decision, err := e.policy.Evaluate(ctx, p.UserID, amount)
	if err != nil {
		return nil, err
	}
	sender := decision.Sender
	if !decision.Allowed {
		if sender.IsMinor {
			e.notifyLimitLater(*sender, *receiver, amount, decision.LimitKind, decision.Limit)
		}
		e.log.Info("Transfer blocked by limit",
			zap.Stringer("sender_id", sender.ID),
			zap.String("limit_kind", string(decision.LimitKind)),
			zap.String("amount", amount.StringFixed(domain.MaxScale)),
		)
		return nil, decision.Err()
	}

	// 3. Both accounts must exist
	senderAcc, err := e.store.AccountByUser(ctx, sender.ID)
	if err != nil {
		return nil, accountError(err, "sender")
	}
	if _, err := e.store.AccountByUser(ctx, receiver.ID); err != nil {
		return nil, accountError(err, "receiver")
	}

	// 4. Early sufficiency check. The store checks again under lock.
	if senderAcc.Balance.LessThan(amount) {
		return nil, domain.NewError(domain.KindInsufficientFunds, "insufficient balance")
	}

	// 5. Atomic debit + credit + insert
	tx, err := e.apply(ctx, domain.TransferIntent{
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Amount:     amount,
		DailyCap:   decision.DailyCap(),
		At:         decision.At,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDailyLimitExceeded) && sender.IsMinor && sender.PerDayLimit != nil {
			e.notifyLimitLater(*sender, *receiver, amount, domain.LimitPerDay, *sender.PerDayLimit)
		}
		return nil, commitError(err)
	}

	e.log.Info("✅ Transfer committed",
		zap.Stringer("transaction_id", tx.ID),
		zap.Stringer("sender_id", tx.SenderID),
		zap.Stringer("receiver_id", tx.ReceiverID),
		zap.String("amount", tx.Amount.StringFixed(domain.MaxScale)),
	)
	span.SetAttributes(attribute.String("transfer.transaction_id", tx.ID.String()))

	// 6. Voucher + guardian notice, after commit
	res = &Result{Transaction: *tx}
	if ref, pending := e.afterCommit(ctx, *tx, *sender, *receiver); ref != "" {
		res.Transaction.VoucherURL = &ref
	} else {
		res.VoucherPending = pending
	}
	return res, nil
}

// apply retries the atomic step while the store reports a conflict.
func (e *Engine) apply(ctx context.Context, in domain.TransferIntent) (*domain.Transaction, error) {
	ctx, span := e.tracer.Start(ctx, "transfer.apply")
	defer span.End()

	attempt := 0
	policy := worker.RetryPolicy{Attempts: e.opts.MaxAttempts, Initial: e.opts.RetryInitial, Max: e.opts.RetryMax}
	tx, err := worker.Retry(ctx, policy, func(ctx context.Context) (*domain.Transaction, error) {
		attempt++
		tx, err := e.store.ApplyTransfer(ctx, in)
		if err == nil {
			return tx, nil
		}
		if errors.Is(err, domain.ErrConflict) {
			e.log.Warn("Transfer conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		return nil, backoff.Permanent(err)
	})
	span.SetAttributes(attribute.Int("transfer.attempts", attempt))
	if err != nil {
		span.RecordError(err)
	}
	return tx, err
}

func accountError(err error, side string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.WrapError(domain.KindAccountNotFound, side+" account not found", err)
	}
	return domain.WrapError(domain.KindPersistenceFailure, "could not load "+side+" account", err)
}

func commitError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return domain.WrapError(domain.KindInsufficientFunds, "insufficient balance", err)
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		e := domain.LimitError(domain.LimitPerDay, "amount exceeds the daily limit")
		e.Err = err
		return e
	case errors.Is(err, domain.ErrNotFound):
		return domain.WrapError(domain.KindAccountNotFound, "account not found", err)
	default:
		return domain.WrapError(domain.KindPersistenceFailure, "transfer could not be completed", err)
	}
}
