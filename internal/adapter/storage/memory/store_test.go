package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatiOli9/IDDO/internal/core/domain"
	"github.com/BatiOli9/IDDO/internal/core/security"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAddUserValidation(t *testing.T) {
	s := New()

	_, err := s.AddUser(domain.User{Name: "a", CVU: "123"}, decimal.Zero)
	assert.Error(t, err)

	_, err = s.AddUser(domain.User{Name: "a", CVU: "0000000000000000000001"}, dec("-1"))
	assert.Error(t, err)

	_, err = s.AddUser(domain.User{Name: "a", CVU: "0000000000000000000001", Alias: "Dup"}, decimal.Zero)
	require.NoError(t, err)
	_, err = s.AddUser(domain.User{Name: "b", CVU: "0000000000000000000002", Alias: " dup "}, decimal.Zero)
	assert.Error(t, err, "aliases collide case-insensitively")
	_, err = s.AddUser(domain.User{Name: "c", CVU: "0000000000000000000001"}, decimal.Zero)
	assert.Error(t, err, "CVUs are unique")

	u, err := s.UserByAlias(context.Background(), "dup")
	require.NoError(t, err)
	assert.Equal(t, "a", u.Name)
}

func TestApplyTransfer(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, err := s.AddUser(domain.User{Name: "a", CVU: "0000000000000000000001"}, dec("100"))
	require.NoError(t, err)
	b, err := s.AddUser(domain.User{Name: "b", CVU: "0000000000000000000002"}, dec("0"))
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	tx, err := s.ApplyTransfer(ctx, domain.TransferIntent{SenderID: a.UserID, ReceiverID: b.UserID, Amount: dec("60"), At: at})
	require.NoError(t, err)
	assert.True(t, tx.CreatedAt.Equal(at))

	_, err = s.ApplyTransfer(ctx, domain.TransferIntent{SenderID: a.UserID, ReceiverID: b.UserID, Amount: dec("60")})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	dc := &domain.DailyCap{Limit: dec("70"), From: at.Truncate(24 * time.Hour), To: at.Truncate(24 * time.Hour).Add(24 * time.Hour)}
	_, err = s.ApplyTransfer(ctx, domain.TransferIntent{SenderID: a.UserID, ReceiverID: b.UserID, Amount: dec("20"), DailyCap: dc, At: at})
	assert.ErrorIs(t, err, domain.ErrDailyLimitExceeded)
	_, err = s.ApplyTransfer(ctx, domain.TransferIntent{SenderID: a.UserID, ReceiverID: b.UserID, Amount: dec("10"), DailyCap: dc, At: at})
	require.NoError(t, err)

	_, err = s.ApplyTransfer(ctx, domain.TransferIntent{SenderID: a.UserID, ReceiverID: uuid.New(), Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	accA, err := s.AccountByUser(ctx, a.UserID)
	require.NoError(t, err)
	accB, err := s.AccountByUser(ctx, b.UserID)
	require.NoError(t, err)
	assert.True(t, dec("30").Equal(accA.Balance))
	assert.True(t, dec("70").Equal(accB.Balance))

	sent, err := s.SumSentSince(ctx, a.UserID, dc.From, dc.To)
	require.NoError(t, err)
	assert.True(t, dec("70").Equal(sent))

	require.NoError(t, s.AttachVoucher(ctx, tx.ID, "ref"))
	assert.ErrorIs(t, s.AttachVoucher(ctx, uuid.New(), "ref"), domain.ErrNotFound)
}

func TestApplyTransferTimeSource(t *testing.T) {
	s := New()
	ctx := context.Background()
	clock := time.Date(2026, 3, 4, 23, 59, 59, 0, time.UTC)
	s.SetClock(func() time.Time { return clock })

	a, err := s.AddUser(domain.User{Name: "a", CVU: "0000000000000000000001"}, dec("100"))
	require.NoError(t, err)
	b, err := s.AddUser(domain.User{Name: "b", CVU: "0000000000000000000002"}, dec("0"))
	require.NoError(t, err)

	tx, err := s.ApplyTransfer(ctx, domain.TransferIntent{SenderID: a.UserID, ReceiverID: b.UserID, Amount: dec("1")})
	require.NoError(t, err)
	assert.True(t, tx.CreatedAt.Equal(clock), "zero At uses the store clock")

	today := clock.Truncate(24 * time.Hour)
	dc := &domain.DailyCap{Limit: dec("50"), From: today, To: today.Add(24 * time.Hour)}
	_, err = s.ApplyTransfer(ctx, domain.TransferIntent{SenderID: a.UserID, ReceiverID: b.UserID, Amount: dec("1"), DailyCap: dc, At: dc.To})
	assert.ErrorIs(t, err, domain.ErrOutsideWindow)

	clock = dc.To.Add(time.Second)
	_, err = s.ApplyTransfer(ctx, domain.TransferIntent{SenderID: a.UserID, ReceiverID: b.UserID, Amount: dec("1"), DailyCap: dc})
	assert.ErrorIs(t, err, domain.ErrOutsideWindow)

	acc, err := s.AccountByUser(ctx, a.UserID)
	require.NoError(t, err)
	assert.True(t, dec("99").Equal(acc.Balance), "rejected transfers move nothing")
}

func TestIdempotencyKeepsFirstResponse(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, _, err := s.LoadResponse(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.SaveResponse(ctx, "k", 201, []byte("first")))
	require.NoError(t, s.SaveResponse(ctx, "k", 400, []byte("second")))
	status, body, err := s.LoadResponse(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 201, status)
	assert.Equal(t, "first", string(body))
}

func TestIdempotencyReservation(t *testing.T) {
	s := New()
	ctx := context.Background()

	ok, err := s.ReserveKey(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ReserveKey(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "second caller loses")

	status, _, err := s.LoadResponse(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, status, "reserved but unanswered")

	require.NoError(t, s.ReleaseKey(ctx, "k"))
	ok, err = s.ReserveKey(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "released keys can be claimed again")

	require.NoError(t, s.SaveResponse(ctx, "k", 201, []byte("done")))
	require.NoError(t, s.ReleaseKey(ctx, "k"))
	status, body, err := s.LoadResponse(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 201, status, "answered keys survive release")
	assert.Equal(t, "done", string(body))
}

func TestSeedDemo(t *testing.T) {
	s := New()
	ctx := context.Background()

	demo, err := SeedDemo(ctx, s)
	require.NoError(t, err)
	require.Len(t, demo.Users, 4)

	tomi := demo.Users[2]
	assert.True(t, tomi.IsMinor)
	link, err := s.GuardianOf(ctx, tomi.ID)
	require.NoError(t, err)
	assert.Equal(t, demo.Users[3].ID, link.ParentID)

	id, err := s.UserIDByKeyHash(ctx, security.HashKey(demo.Keys[tomi.Name]))
	require.NoError(t, err)
	assert.Equal(t, tomi.ID, id)
}
