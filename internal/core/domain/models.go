package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is an account holder. Minors carry guardian-imposed limits.
type User struct {
	ID                  uuid.UUID        `json:"id"`
	Name                string           `json:"name"`
	CVU                 string           `json:"cvu"`
	Alias               string           `json:"alias,omitempty"`
	Email               string           `json:"email"`
	DNI                 string           `json:"dni,omitempty"`
	IsMinor             bool             `json:"is_minor"`
	PerTransactionLimit *decimal.Decimal `json:"per_transaction_limit,omitempty"`
	PerDayLimit         *decimal.Decimal `json:"per_day_limit,omitempty"`
}

// GuardianLink ties a minor (child) to the guardian who receives notices.
type GuardianLink struct {
	ChildID  uuid.UUID `json:"child_id"`
	ParentID uuid.UUID `json:"parent_id"`
}

// Account holds the balance of exactly one user. Balance never goes negative.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// Transaction is the audit record of one committed transfer.
// VoucherURL is set once, after the voucher has been generated.
type Transaction struct {
	ID         uuid.UUID       `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	SenderID   uuid.UUID       `json:"sender_id"`
	ReceiverID uuid.UUID       `json:"receiver_id"`
	CreatedAt  time.Time       `json:"created_at"`
	VoucherURL *string         `json:"voucher_url"`
}

// DailyCap is the per-day limit re-checked inside the atomic transfer.
// Window is half-open: [From, To).
type DailyCap struct {
	Limit decimal.Decimal
	From  time.Time
	To    time.Time
}

// Covers reports whether t falls inside the cap's window.
func (c DailyCap) Covers(t time.Time) bool {
	return !t.Before(c.From) && t.Before(c.To)
}

// TransferIntent is everything the store needs to move funds atomically.
type TransferIntent struct {
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Amount     decimal.Decimal
	// DailyCap is nil for senders without a per-day limit.
	DailyCap *DailyCap
	// At stamps the transaction row. Zero means "store clock".
	At time.Time
}

// VoucherDetails feeds the voucher renderer.
type VoucherDetails struct {
	Transaction Transaction
	Sender      User
	Receiver    User
}
