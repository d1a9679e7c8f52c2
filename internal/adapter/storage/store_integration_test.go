//go:build integration

package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/BatiOli9/IDDO/internal/core/domain"
)

func setupStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("iddo"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, Migrate(dsn, zap.NewNop()))
	require.NoError(t, Migrate(dsn, zap.NewNop()), "migrating twice is a no-op")

	pool, err := ConnectDB(ctx, dsn, 20, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewStore(pool), pool
}

func insertUser(t *testing.T, pool *pgxpool.Pool, u domain.User, balance string) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	var alias, perTx, perDay any
	if u.Alias != "" {
		alias = u.Alias
	}
	if u.PerTransactionLimit != nil {
		perTx = *u.PerTransactionLimit
	}
	if u.PerDayLimit != nil {
		perDay = *u.PerDayLimit
	}

	var id uuid.UUID
	err := pool.QueryRow(ctx, `
		INSERT INTO users (name, cvu, alias, email, is_minor, per_transaction_limit, per_day_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		u.Name, u.CVU, alias, u.Email, u.IsMinor, perTx, perDay).Scan(&id)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `INSERT INTO accounts (user_id, balance) VALUES ($1, $2)`, id, decimal.RequireFromString(balance))
	require.NoError(t, err)
	return id
}

func mustBalance(t *testing.T, s *Store, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	acc, err := s.AccountByUser(context.Background(), userID)
	require.NoError(t, err)
	return acc.Balance
}

func TestIntegration_Store(t *testing.T) {
	s, pool := setupStore(t)
	ctx := context.Background()

	limit := decimal.RequireFromString("500")
	daily := decimal.RequireFromString("1000")
	ana := insertUser(t, pool, domain.User{Name: "Ana", CVU: "0000003100010000000001", Alias: "Ana.Iddo", Email: "ana@example.com"}, "1000")
	beto := insertUser(t, pool, domain.User{Name: "Beto", CVU: "0000003100010000000002", Email: "beto@example.com"}, "0")
	tomi := insertUser(t, pool, domain.User{Name: "Tomi", CVU: "0000003100010000000003", IsMinor: true,
		PerTransactionLimit: &limit, PerDayLimit: &daily}, "5000")
	_, err := pool.Exec(ctx, `INSERT INTO guardian_links (child_id, parent_id) VALUES ($1, $2)`, tomi, ana)
	require.NoError(t, err)

	t.Run("lookups", func(t *testing.T) {
		u, err := s.UserByAlias(ctx, "ana.iddo")
		require.NoError(t, err)
		assert.Equal(t, ana, u.ID)
		assert.Nil(t, u.PerDayLimit)

		u, err = s.UserByCVU(ctx, "0000003100010000000003")
		require.NoError(t, err)
		assert.True(t, u.IsMinor)
		require.NotNil(t, u.PerTransactionLimit)
		assert.True(t, limit.Equal(*u.PerTransactionLimit))

		_, err = s.UserByCVU(ctx, "1234567890123456789012")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		link, err := s.GuardianOf(ctx, tomi)
		require.NoError(t, err)
		assert.Equal(t, ana, link.ParentID)

		_, err = s.GuardianOf(ctx, beto)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("apply transfer", func(t *testing.T) {
		at := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
		tx, err := s.ApplyTransfer(ctx, domain.TransferIntent{
			SenderID: ana, ReceiverID: beto, Amount: decimal.RequireFromString("250.25"), At: at,
		})
		require.NoError(t, err)
		assert.True(t, tx.CreatedAt.Equal(at))
		assert.True(t, decimal.RequireFromString("749.75").Equal(mustBalance(t, s, ana)))
		assert.True(t, decimal.RequireFromString("250.25").Equal(mustBalance(t, s, beto)))

		require.NoError(t, s.AttachVoucher(ctx, tx.ID, "http://localhost/v1/vouchers/x.txt"))
		txs, err := s.ListTransactionsBySender(ctx, ana)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		require.NotNil(t, txs[0].VoucherURL)

		_, err = s.ApplyTransfer(ctx, domain.TransferIntent{SenderID: beto, ReceiverID: ana, Amount: decimal.RequireFromString("1000")})
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.True(t, decimal.RequireFromString("250.25").Equal(mustBalance(t, s, beto)))

		assert.ErrorIs(t, s.AttachVoucher(ctx, uuid.New(), "x"), domain.ErrNotFound)
	})

	t.Run("concurrent transfers serialize", func(t *testing.T) {
		before := mustBalance(t, s, ana).Add(mustBalance(t, s, beto))

		var (
			wg       sync.WaitGroup
			ok, poor atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				from, to := ana, beto
				if i%2 == 1 {
					from, to = beto, ana
				}
				_, err := s.ApplyTransfer(ctx, domain.TransferIntent{SenderID: from, ReceiverID: to, Amount: decimal.RequireFromString("100")})
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, domain.ErrInsufficientFunds):
					poor.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(8), ok.Load()+poor.Load())
		after := mustBalance(t, s, ana).Add(mustBalance(t, s, beto))
		assert.True(t, before.Equal(after), "money is conserved: %s vs %s", before, after)
	})

	t.Run("daily cap is enforced under concurrency", func(t *testing.T) {
		now := time.Date(2026, 5, 3, 15, 0, 0, 0, time.UTC)
		dc := &domain.DailyCap{Limit: daily, From: now.Truncate(24 * time.Hour), To: now.Truncate(24 * time.Hour).Add(24 * time.Hour)}

		var (
			wg      sync.WaitGroup
			ok      atomic.Int32
			limited atomic.Int32
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.ApplyTransfer(ctx, domain.TransferIntent{
					SenderID: tomi, ReceiverID: beto, Amount: decimal.RequireFromString("300"), DailyCap: dc, At: now,
				})
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, domain.ErrDailyLimitExceeded):
					limited.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(3), ok.Load())
		assert.Equal(t, int32(7), limited.Load())
		sent, err := s.SumSentSince(ctx, tomi, dc.From, dc.To)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("900").Equal(sent), sent.String())

		_, err = s.ApplyTransfer(ctx, domain.TransferIntent{
			SenderID: tomi, ReceiverID: beto, Amount: decimal.RequireFromString("1"), DailyCap: dc, At: dc.To,
		})
		assert.ErrorIs(t, err, domain.ErrOutsideWindow)
	})

	t.Run("api keys, idempotency and vouchers", func(t *testing.T) {
		require.NoError(t, s.SaveAPIKey(ctx, ana, "hash-1", "iddo_live_ab"))
		id, err := s.UserIDByKeyHash(ctx, "hash-1")
		require.NoError(t, err)
		assert.Equal(t, ana, id)
		assert.ErrorIs(t, s.SaveAPIKey(ctx, uuid.New(), "hash-2", "iddo_live_cd"), domain.ErrNotFound)

		_, _, err = s.LoadResponse(ctx, "k1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		require.NoError(t, s.SaveResponse(ctx, "k1", 201, []byte(`{"a":1}`)))
		require.NoError(t, s.SaveResponse(ctx, "k1", 500, []byte(`{}`)))
		status, body, err := s.LoadResponse(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, 201, status)
		assert.JSONEq(t, `{"a":1}`, string(body))

		ok, err := s.ReserveKey(ctx, "k2")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.ReserveKey(ctx, "k2")
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, s.ReleaseKey(ctx, "k2"))
		ok, err = s.ReserveKey(ctx, "k2")
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, s.SaveResponse(ctx, "k2", 400, []byte(`{"b":2}`)))
		require.NoError(t, s.ReleaseKey(ctx, "k2"))
		status, _, err = s.LoadResponse(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, 400, status)

		require.NoError(t, s.PutVoucher(ctx, "v.txt", "text/plain", []byte("hola")))
		b, ct, err := s.GetVoucher(ctx, "v.txt")
		require.NoError(t, err)
		assert.Equal(t, "hola", string(b))
		assert.Equal(t, "text/plain", ct)
	})
}
