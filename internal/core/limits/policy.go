// Package limits decides whether a sender may move a given amount, based on
// the per-transaction and per-day limits guardians set on minor accounts.
package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BatiOli9/IDDO/internal/core/domain"
)

// Ledger is the read side of the ledger store the policy needs.
type Ledger interface {
	User(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// SumSentSince totals the amounts sent by userID in [from, to).
	SumSentSince(ctx context.Context, userID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
}

// Decision is the outcome of evaluating one proposed transfer.
type Decision struct {
	Allowed   bool
	LimitKind domain.LimitKind
	Reason    string
	// Limit is the configured limit that was hit (zero when allowed or when
	// no limit is configured).
	Limit decimal.Decimal
	// SentInWindow is what the sender had already sent today. Only filled
	// when a per-day limit is configured.
	SentInWindow decimal.Decimal
	Sender       *domain.User
	// At is the instant the decision was made. The window is the day of At,
	// and the transaction must be stamped with it.
	At     time.Time
	Window Window
}

// DailyCap returns the per-day limit the store must re-check inside the
// atomic transfer, or nil when the sender has none.
func (d Decision) DailyCap() *domain.DailyCap {
	if d.Sender == nil || !d.Sender.IsMinor || d.Sender.PerDayLimit == nil {
		return nil
	}
	return &domain.DailyCap{Limit: *d.Sender.PerDayLimit, From: d.Window.From, To: d.Window.To}
}

type Policy struct {
	ledger Ledger
	loc    *time.Location
	now    func() time.Time
}

type Option func(*Policy)

// WithClock replaces time.Now as the policy's time source.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

func NewPolicy(ledger Ledger, loc *time.Location, opts ...Option) *Policy {
	if loc == nil {
		loc = time.UTC
	}
	p := &Policy{ledger: ledger, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Now returns the policy's current time.
func (p *Policy) Now() time.Time {
	return p.now()
}

// Evaluate applies the limit rules in order. A minor without a
// per-transaction limit may never transfer.
func (p *Policy) Evaluate(ctx context.Context, senderID uuid.UUID, amount decimal.Decimal) (Decision, error) {
	// 1. Load sender
	sender, err := p.ledger.User(ctx, senderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Decision{}, domain.WrapError(domain.KindSenderNotFound, "sender does not exist", err)
		}
		return Decision{}, domain.WrapError(domain.KindPersistenceFailure, "could not load sender", err)
	}

	now := p.now()
	d := Decision{Sender: sender, At: now, Window: DayWindow(now, p.loc)}

	// 2. Adults have no limits
	if !sender.IsMinor {
		d.Allowed = true
		return d, nil
	}

	// 3. Fail closed when no limit was configured
	if sender.PerTransactionLimit == nil {
		d.LimitKind = domain.LimitNotConfigured
		d.Reason = "no limit configured for this account"
		return d, nil
	}

	// 4. Per-transaction limit
	if amount.GreaterThan(*sender.PerTransactionLimit) {
		d.LimitKind = domain.LimitPerTransaction
		d.Limit = *sender.PerTransactionLimit
		d.Reason = fmt.Sprintf("amount exceeds the per-transaction limit of %s", d.Limit.StringFixed(domain.MaxScale))
		return d, nil
	}

	// 5. Per-day cumulative limit
	if sender.PerDayLimit != nil {
		sent, err := p.ledger.SumSentSince(ctx, sender.ID, d.Window.From, d.Window.To)
		if err != nil {
			return Decision{}, domain.WrapError(domain.KindPersistenceFailure, "could not compute daily total", err)
		}
		d.SentInWindow = sent
		if sent.Add(amount).GreaterThan(*sender.PerDayLimit) {
			d.LimitKind = domain.LimitPerDay
			d.Limit = *sender.PerDayLimit
			d.Reason = fmt.Sprintf("amount exceeds the daily limit of %s (already sent %s today)",
				d.Limit.StringFixed(domain.MaxScale), sent.StringFixed(domain.MaxScale))
			return d, nil
		}
	}

	// 6. Allowed
	d.Allowed = true
	return d, nil
}

// Err converts a rejected decision into a LIMIT_EXCEEDED error.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return domain.LimitError(d.LimitKind, d.Reason)
}
