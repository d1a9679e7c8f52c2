package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidCVU(t *testing.T) {
	cases := map[string]bool{
		"1234567890123456789012":  true,
		"0000000000000000000000":  true,
		"123":                     false,
		"":                        false,
		"12345678901234567890123": false,
		"123456789012345678901a":  false,
		" 1234567890123456789012": false,
	}
	for cvu, want := range cases {
		assert.Equal(t, want, ValidCVU(cvu), "ValidCVU(%q)", cvu)
	}
}

func TestNormalizeAlias(t *testing.T) {
	assert.Equal(t, "sol.luna.mar", NormalizeAlias("  Sol.LUNA.mar "))
	assert.Equal(t, NormalizeAlias("PERRO.GATO"), NormalizeAlias("perro.gato"))
}

func TestValidateAmount(t *testing.T) {
	require.NoError(t, ValidateAmount(decimal.RequireFromString("0.01")))
	require.NoError(t, ValidateAmount(decimal.RequireFromString("150.50")))
	require.NoError(t, ValidateAmount(decimal.RequireFromString("10.500")))

	assert.Error(t, ValidateAmount(decimal.Zero))
	assert.Error(t, ValidateAmount(decimal.RequireFromString("-1")))
	assert.Error(t, ValidateAmount(decimal.RequireFromString("1.001")))
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount("300")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(300)))

	_, err = ParseAmount("abc")
	assert.Error(t, err)
	_, err = ParseAmount("0")
	assert.Error(t, err)
}

func TestDebit(t *testing.T) {
	left, err := Debit(decimal.NewFromInt(100), decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, left.IsZero())

	_, err = Debit(decimal.NewFromInt(99), decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", LimitError(LimitPerDay, "daily limit reached"))
	assert.Equal(t, KindLimitExceeded, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))

	cause := errors.New("disk on fire")
	wrapped := WrapError(KindPersistenceFailure, "could not save", cause)
	assert.ErrorIs(t, wrapped, cause)
}

func TestFormatARS(t *testing.T) {
	got := FormatARS(decimal.RequireFromString("12345.5"))
	assert.True(t, strings.HasPrefix(got, "$ "), got)
	assert.True(t, strings.HasSuffix(got, "345,50"), got)
}

func TestFormatLocal(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	at := time.Date(2026, 3, 9, 2, 4, 5, 0, time.UTC)
	assert.Equal(t, "08/03/2026 23:04:05", FormatLocal(at, loc))
	assert.Equal(t, "09/03/2026 02:04:05", FormatLocal(at, nil))
}
