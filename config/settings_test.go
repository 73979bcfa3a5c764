package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, s.Mediator.MaxMessageAge)
	assert.Equal(t, 24*time.Hour, s.OrderExpiration())
	assert.Equal(t, 15*time.Minute, s.TakenExpiration())

	s, err = LoadSettings(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Lightning.PaymentAttempts)
}

func TestLoadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	data := `
[mediator]
fee = 0.01
pow = 4
max_message_age = "30s"

[lightning]
payment_attempts = 5
payment_retries_interval = "2m"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 0.01, s.Mediator.Fee)
	assert.Equal(t, 4, s.Mediator.Pow)
	assert.Equal(t, 30*time.Second, s.Mediator.MaxMessageAge)
	assert.Equal(t, 5, s.Lightning.PaymentAttempts)
	assert.Equal(t, 2*time.Minute, s.Lightning.PaymentRetriesInterval)
	// не заданные ключи сохраняют значения по умолчанию
	assert.Equal(t, 24, s.Mediator.ExpirationHours)
}

func TestLoadSettingsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("[mediator]\nfee = 1.5\n"), 0o600))
	_, err := LoadSettings(path)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Setenv("DB_DSN", "file::memory:")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("SETTINGS_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.TokenTypeTTL["access"])
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTypeTTL["refresh"])
	assert.NotNil(t, cfg.Settings)

	t.Setenv("ACCESS_TOKEN_TTL", "soon")
	_, err = Load()
	assert.Error(t, err)
}
