package limits

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatiOli9/IDDO/internal/adapter/storage/memory"
	"github.com/BatiOli9/IDDO/internal/core/domain"
)

var buenosAires = time.FixedZone("ART", -3*60*60)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func ptr(v int64) *decimal.Decimal {
	d := dec(v)
	return &d
}

type fixture struct {
	store  *memory.Store
	policy *Policy
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 10, 19, 15, 30, 0, 0, buenosAires)
	store := memory.New()
	return &fixture{
		store:  store,
		now:    now,
		policy: NewPolicy(store, buenosAires, WithClock(func() time.Time { return now })),
	}
}

func (f *fixture) addUser(t *testing.T, cvu string, u domain.User) domain.User {
	t.Helper()
	u.ID = uuid.New()
	u.CVU = cvu
	_, err := f.store.AddUser(u, dec(10_000))
	require.NoError(t, err)
	return u
}

func (f *fixture) sent(sender domain.User, amount int64, at time.Time) {
	f.store.RecordTransaction(domain.Transaction{SenderID: sender.ID, ReceiverID: uuid.New(), Amount: dec(amount), CreatedAt: at})
}

func TestAdultIsAlwaysAllowed(t *testing.T) {
	f := newFixture(t)
	adult := f.addUser(t, "1000000000000000000001", domain.User{Name: "Adult"})

	d, err := f.policy.Evaluate(context.Background(), adult.ID, dec(1_000_000))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Nil(t, d.DailyCap())
	assert.NoError(t, d.Err())
}

func TestMinorWithoutLimitFailsClosed(t *testing.T) {
	f := newFixture(t)
	minor := f.addUser(t, "1000000000000000000002", domain.User{Name: "Kid", IsMinor: true})

	d, err := f.policy.Evaluate(context.Background(), minor.ID, dec(1))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.LimitNotConfigured, d.LimitKind)
	assert.Equal(t, domain.KindLimitExceeded, domain.KindOf(d.Err()))
}

func TestPerTransactionBoundary(t *testing.T) {
	f := newFixture(t)
	minor := f.addUser(t, "1000000000000000000003", domain.User{IsMinor: true, PerTransactionLimit: ptr(500)})

	d, err := f.policy.Evaluate(context.Background(), minor.ID, dec(500))
	require.NoError(t, err)
	assert.True(t, d.Allowed, "amount equal to the limit is allowed")

	d, err = f.policy.Evaluate(context.Background(), minor.ID, decimal.RequireFromString("500.01"))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.LimitPerTransaction, d.LimitKind)
	assert.True(t, d.Limit.Equal(dec(500)))
}

func TestPerDayLimit(t *testing.T) {
	f := newFixture(t)
	minor := f.addUser(t, "1000000000000000000004", domain.User{IsMinor: true, PerTransactionLimit: ptr(500), PerDayLimit: ptr(1000)})
	f.sent(minor, 600, f.now.Add(-2*time.Hour))

	d, err := f.policy.Evaluate(context.Background(), minor.ID, dec(500))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.LimitPerDay, d.LimitKind)
	assert.True(t, d.SentInWindow.Equal(dec(600)))

	d, err = f.policy.Evaluate(context.Background(), minor.ID, dec(300))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	dc := d.DailyCap()
	require.NotNil(t, dc)
	assert.True(t, dc.Limit.Equal(dec(1000)))
	assert.Equal(t, d.Window.From, dc.From)
	assert.True(t, d.At.Equal(f.now))
	assert.True(t, dc.Covers(d.At))
}

func TestDecisionReadsTheClockOnce(t *testing.T) {
	store := memory.New()
	first := time.Date(2026, 10, 19, 23, 59, 59, 999_000_000, buenosAires)
	reads := 0
	policy := NewPolicy(store, buenosAires, WithClock(func() time.Time {
		reads++
		return first.Add(time.Duration(reads-1) * time.Millisecond)
	}))
	minor := domain.User{ID: uuid.New(), CVU: "1000000000000000000009", IsMinor: true, PerTransactionLimit: ptr(500), PerDayLimit: ptr(1000)}
	_, err := store.AddUser(minor, dec(10_000))
	require.NoError(t, err)

	d, err := policy.Evaluate(context.Background(), minor.ID, dec(100))
	require.NoError(t, err)
	require.True(t, d.Allowed)
	assert.Equal(t, 1, reads)
	assert.True(t, d.At.Equal(first))
	assert.True(t, d.DailyCap().Covers(d.At))
	assert.False(t, d.DailyCap().Covers(first.Add(time.Millisecond)), "next millisecond is tomorrow")
}

func TestPerDayIgnoresYesterday(t *testing.T) {
	f := newFixture(t)
	minor := f.addUser(t, "1000000000000000000005", domain.User{IsMinor: true, PerTransactionLimit: ptr(500), PerDayLimit: ptr(1000)})

	midnight := time.Date(2026, 10, 19, 0, 0, 0, 0, buenosAires)
	f.sent(minor, 900, midnight.Add(-time.Nanosecond)) // yesterday
	f.sent(minor, 100, midnight)                       // today, at the inclusive lower bound

	d, err := f.policy.Evaluate(context.Background(), minor.ID, dec(500))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.SentInWindow.Equal(dec(100)))
}

func TestUnknownSender(t *testing.T) {
	f := newFixture(t)

	_, err := f.policy.Evaluate(context.Background(), uuid.New(), dec(1))
	assert.Equal(t, domain.KindSenderNotFound, domain.KindOf(err))
}

func TestDayWindow(t *testing.T) {
	now := time.Date(2026, 10, 19, 23, 59, 59, 0, buenosAires)
	w := DayWindow(now, buenosAires)

	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, buenosAires), w.From)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, buenosAires), w.To)
	assert.True(t, w.Contains(w.From))
	assert.False(t, w.Contains(w.To))
	assert.True(t, w.Contains(now))

	// 02:00 UTC is still the previous day in Buenos Aires.
	utc := time.Date(2026, 10, 20, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, 19, DayWindow(utc, buenosAires).From.Day())
	assert.Equal(t, 20, DayWindow(utc, time.UTC).From.Day())
}
