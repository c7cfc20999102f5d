package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(PathEnv, "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.False(t, cfg.PostgresEnabled())
	assert.Equal(t, "@hourly", cfg.Scheduler.YieldSchedule)
	assert.Equal(t, time.Minute, cfg.Reconcile.Interval)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
database:
  dsn: postgres://ledger@localhost/ledger?sslmode=disable
payment:
  base_url: http://payments.local
  timeout: 3s
scheduler:
  enabled: false
http:
  allowed_origins: ["https://app.example", " "]
rates_file: rates.yaml
`)
	t.Setenv("LEDGER_PORT", "9191")
	t.Setenv("LEDGER_RECONCILE_INTERVAL", "30s")
	t.Setenv("LEDGER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.True(t, cfg.PostgresEnabled())
	assert.Equal(t, "http://payments.local", cfg.Payment.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Payment.Timeout)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, []string{"https://app.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "rates.yaml", cfg.RatesFile)
}

func TestLoadPathFromEnv(t *testing.T) {
	path := writeConfig(t, "redis:\n  addr: localhost:6379\n")
	t.Setenv(PathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.RedisEnabled())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "server: [broken"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "server:\n  port: 70000\n"))
	require.ErrorContains(t, err, "out of range")

	_, err = Load(writeConfig(t, "reconcile:\n  enabled: true\n  interval: 0s\n"))
	require.ErrorContains(t, err, "reconcile.interval")
}
