package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/BatiOli9/IDDO/internal/core/domain"
)

// Store is the Postgres ledger. One pool is shared by all requests; each
// transfer borrows a connection for its own database transaction.
type Store struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db, tracer: otel.Tracer("github.com/BatiOli9/IDDO/internal/adapter/storage")}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

const userColumns = `id, name, cvu, COALESCE(alias, ''), email, COALESCE(dni, ''), is_minor, per_transaction_limit, per_day_limit`

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u             domain.User
		perTx, perDay decimal.NullDecimal
	)
	if err := row.Scan(&u.ID, &u.Name, &u.CVU, &u.Alias, &u.Email, &u.DNI, &u.IsMinor, &perTx, &perDay); err != nil {
		return nil, err
	}
	if perTx.Valid {
		u.PerTransactionLimit = &perTx.Decimal
	}
	if perDay.Valid {
		u.PerDayLimit = &perDay.Decimal
	}
	return &u, nil
}

// notFound turns pgx.ErrNoRows into domain.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *Store) User(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user "+id.String())
	}
	return u, nil
}

func (s *Store) UserByCVU(ctx context.Context, cvu string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE cvu = $1`, cvu))
	if err != nil {
		return nil, notFound(err, "cvu "+cvu)
	}
	return u, nil
}

func (s *Store) UserByAlias(ctx context.Context, aliasLower string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(alias) = $1`, aliasLower))
	if err != nil {
		return nil, notFound(err, "alias "+aliasLower)
	}
	return u, nil
}

func (s *Store) GuardianOf(ctx context.Context, childID uuid.UUID) (*domain.GuardianLink, error) {
	link := domain.GuardianLink{ChildID: childID}
	err := s.db.QueryRow(ctx, `SELECT parent_id FROM guardian_links WHERE child_id = $1`, childID).Scan(&link.ParentID)
	if err != nil {
		return nil, notFound(err, "guardian of "+childID.String())
	}
	return &link, nil
}

const accountColumns = `id, user_id, balance, created_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var acc domain.Account
	if err := row.Scan(&acc.ID, &acc.UserID, &acc.Balance, &acc.CreatedAt); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *Store) AccountByUser(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	acc, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound(err, "account of user "+userID.String())
	}
	return acc, nil
}

func (s *Store) Account(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	acc, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "account "+id.String())
	}
	return acc, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// SaveAPIKey stores the hashed key for the user.
func (s *Store) SaveAPIKey(ctx context.Context, userID uuid.UUID, keyHash, keyPrefix string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO api_keys (user_id, key_hash, key_prefix) VALUES ($1, $2, $3)`,
		userID, keyHash, keyPrefix)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}

func (s *Store) UserIDByKeyHash(ctx context.Context, keyHash string) (uuid.UUID, error) {
	var id uuid.UUID
	if err := s.db.QueryRow(ctx, `SELECT user_id FROM api_keys WHERE key_hash = $1`, keyHash).Scan(&id); err != nil {
		return uuid.Nil, notFound(err, "api key")
	}
	return id, nil
}
