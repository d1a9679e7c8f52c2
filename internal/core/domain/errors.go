package domain

import (
	"errors"
	"fmt"
)

// Store level sentinels. Stores wrap these; the transfer engine turns them
// into *Error values with a Kind.
var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDailyLimitExceeded = errors.New("daily limit exceeded")
	ErrConflict           = errors.New("concurrent update conflict")
	ErrOutsideWindow      = errors.New("transfer time outside its daily window")
)

// Kind classifies why a transfer was rejected.
type Kind string

const (
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindInvalidFormat      Kind = "INVALID_FORMAT"
	KindRecipientNotFound  Kind = "RECIPIENT_NOT_FOUND"
	KindSelfTransfer       Kind = "SELF_TRANSFER"
	KindLimitExceeded      Kind = "LIMIT_EXCEEDED"
	KindAccountNotFound    Kind = "ACCOUNT_NOT_FOUND"
	KindInsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	KindPersistenceFailure Kind = "PERSISTENCE_FAILURE"
	KindSenderNotFound     Kind = "SENDER_NOT_FOUND"
	KindUnauthenticated    Kind = "UNAUTHENTICATED"
)

// LimitKind names the limit a rejected transfer ran into.
type LimitKind string

const (
	LimitPerTransaction LimitKind = "PER_TRANSACTION"
	LimitPerDay         LimitKind = "PER_DAY"
	LimitNotConfigured  LimitKind = "NO_LIMIT_CONFIGURED"
)

// Error is a rejected transfer. Message is safe to show to the client.
type Error struct {
	Kind      Kind
	LimitKind LimitKind
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a rejection of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// WrapError builds a rejection that keeps the underlying cause.
func WrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// LimitError builds a LIMIT_EXCEEDED rejection.
func LimitError(limit LimitKind, msg string) *Error {
	return &Error{Kind: KindLimitExceeded, LimitKind: limit, Message: msg}
}

// KindOf extracts the Kind of err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
