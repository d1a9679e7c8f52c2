package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "log", cfg.Notifier)
	assert.Equal(t, 3*time.Second, cfg.VoucherWait)
	assert.Equal(t, uint(5), cfg.TransferMaxAttempts)
	assert.Equal(t, "America/Argentina/Buenos_Aires", cfg.Timezone)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("VOUCHER_WAIT", "250ms")
	t.Setenv("NOTIFIER", "amqp")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.VoucherWait)
	assert.Equal(t, "amqp", cfg.Notifier)
}

func TestLoadRejectsWebhookWithoutURL(t *testing.T) {
	t.Setenv("NOTIFIER", "webhook")
	t.Setenv("WEBHOOK_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBHOOK_URL")
}

func TestLoadRejectsUnknownNotifier(t *testing.T) {
	t.Setenv("NOTIFIER", "pigeon")

	_, err := Load()
	require.Error(t, err)
}

func TestLocation(t *testing.T) {
	cfg := &Config{Timezone: "UTC"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	cfg.Timezone = "Mars/Olympus_Mons"
	_, err = cfg.Location()
	assert.Error(t, err)
}
