package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/BatiOli9/IDDO/internal/core/domain"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateCheckViolation       = "23514"
	sqlStateForeignKeyViolation  = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == sqlStateForeignKeyViolation
}

// classify maps Postgres failures onto the ledger's sentinel errors.
func classify(err error) error {
	switch pgCode(err) {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case sqlStateCheckViolation:
		return fmt.Errorf("%w: %v", domain.ErrInsufficientFunds, err)
	}
	return err
}

// ApplyTransfer moves funds inside one database transaction. Both account
// rows are locked in id order so two opposite transfers cannot deadlock each
// other, and funds and the daily cap are checked against the locked state.
func (s *Store) ApplyTransfer(ctx context.Context, in domain.TransferIntent) (_ *domain.Transaction, err error) {
	ctx, span := s.tracer.Start(ctx, "storage.ApplyTransfer")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "apply transfer")
		}
		span.End()
	}()

	if err := domain.ValidateAmount(in.Amount); err != nil {
		return nil, err
	}

	// 1. Begin
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	// 2. Lock both accounts, always in the same order
	rows, err := tx.Query(ctx, `
		SELECT user_id, balance FROM accounts
		WHERE user_id IN ($1, $2)
		ORDER BY id
		FOR UPDATE`, in.SenderID, in.ReceiverID)
	if err != nil {
		return nil, classify(fmt.Errorf("lock accounts: %w", err))
	}
	balances := make(map[uuid.UUID]decimal.Decimal, 2)
	for rows.Next() {
		var (
			userID  uuid.UUID
			balance decimal.Decimal
		)
		if err := rows.Scan(&userID, &balance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan account: %w", err)
		}
		balances[userID] = balance
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("lock accounts: %w", err))
	}

	senderBalance, ok := balances[in.SenderID]
	if !ok {
		return nil, fmt.Errorf("sender account: %w", domain.ErrNotFound)
	}
	if _, ok := balances[in.ReceiverID]; !ok {
		return nil, fmt.Errorf("receiver account: %w", domain.ErrNotFound)
	}

	// 3. Daily cap, counted while the sender row is locked
	if dc := in.DailyCap; dc != nil {
		at := in.At
		if at.IsZero() {
			at = time.Now()
		}
		if !dc.Covers(at) {
			return nil, fmt.Errorf("%w: %s", domain.ErrOutsideWindow, at.Format(time.RFC3339Nano))
		}
		sent, err := sumSent(ctx, tx, in.SenderID, dc.From, dc.To)
		if err != nil {
			return nil, classify(err)
		}
		if sent.Add(in.Amount).GreaterThan(dc.Limit) {
			return nil, fmt.Errorf("%w: sent %s of %s", domain.ErrDailyLimitExceeded,
				sent.StringFixed(domain.MaxScale), dc.Limit.StringFixed(domain.MaxScale))
		}
	}

	// 4. Funds
	if _, err := domain.Debit(senderBalance, in.Amount); err != nil {
		return nil, err
	}

	// 5. Debit, credit, record
	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance - $1 WHERE user_id = $2`, in.Amount, in.SenderID); err != nil {
		return nil, classify(fmt.Errorf("debit sender: %w", err))
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance + $1 WHERE user_id = $2`, in.Amount, in.ReceiverID); err != nil {
		return nil, classify(fmt.Errorf("credit receiver: %w", err))
	}

	var at *time.Time
	if !in.At.IsZero() {
		at = &in.At
	}
	record := domain.Transaction{Amount: in.Amount, SenderID: in.SenderID, ReceiverID: in.ReceiverID}
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (amount, sender_id, receiver_id, created_at)
		VALUES ($1, $2, $3, COALESCE($4::timestamptz, now()))
		RETURNING id, created_at`, in.Amount, in.SenderID, in.ReceiverID, at).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, classify(fmt.Errorf("insert transaction: %w", err))
	}

	// 6. Commit
	if err := tx.Commit(ctx); err != nil {
		return nil, classify(fmt.Errorf("commit transfer: %w", err))
	}
	span.SetAttributes(attribute.String("transaction.id", record.ID.String()))
	return &record, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func sumSent(ctx context.Context, q querier, userID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE sender_id = $1 AND created_at >= $2 AND created_at < $3`, userID, from, to).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum sent: %w", err)
	}
	return total, nil
}

// SumSentSince totals what userID sent in [from, to).
func (s *Store) SumSentSince(ctx context.Context, userID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	return sumSent(ctx, s.db, userID, from, to)
}

func (s *Store) AttachVoucher(ctx context.Context, transactionID uuid.UUID, ref string) error {
	tag, err := s.db.Exec(ctx, `UPDATE transactions SET voucher_url = $1 WHERE id = $2`, ref, transactionID)
	if err != nil {
		return fmt.Errorf("attach voucher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, domain.ErrNotFound)
	}
	return nil
}

const transactionColumns = `id, amount, sender_id, receiver_id, created_at, voucher_url`

func (s *Store) listTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []domain.Transaction{}
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.Amount, &t.SenderID, &t.ReceiverID, &t.CreatedAt, &t.VoucherURL); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *Store) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.listTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY created_at`)
}

func (s *Store) ListTransactionsBySender(ctx context.Context, senderID uuid.UUID) ([]domain.Transaction, error) {
	return s.listTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE sender_id = $1 ORDER BY created_at`, senderID)
}
