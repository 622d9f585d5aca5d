package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routine-planner/internal/service"
)

func noEnvFile(t *testing.T) Options {
	return Options{EnvFile: filepath.Join(t.TempDir(), "missing.env")}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "routine_planner.db", cfg.Database.URL)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, 14, cfg.Reconcile.HorizonDays)
	assert.Equal(t, service.StaleKeep, cfg.Reconcile.StalePolicy)
	assert.Equal(t, "00:15", cfg.Jobs.SweepAt)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.Timeout)
	assert.Empty(t, cfg.Telegram.Token)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PLANNER_DATABASE_DRIVER", "postgres")
	t.Setenv("PLANNER_DATABASE_URL", "postgres://planner@localhost/planner")
	t.Setenv("PLANNER_TIMEZONE", "Europe/Berlin")
	t.Setenv("PLANNER_RECONCILE_HORIZON_DAYS", "30")
	t.Setenv("PLANNER_RECONCILE_STALE_POLICY", "PRUNE")
	t.Setenv("PLANNER_JOBS_TIMEOUT", "90s")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
	assert.Equal(t, 30, cfg.Reconcile.HorizonDays)
	assert.Equal(t, service.StalePrune, cfg.Reconcile.StalePolicy)
	assert.Equal(t, 90*time.Second, cfg.Jobs.Timeout)
}

func TestLoadDotEnvAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PLANNER_TELEGRAM_TOKEN=abc:123\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PLANNER_TELEGRAM_TOKEN") })

	cfgFile := filepath.Join(dir, "planner.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("http:\n  addr: \":9090\"\njobs:\n  digest_at: \"06:30\"\n"), 0o600))

	cfg, err := Load(Options{ConfigFile: cfgFile, EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "abc:123", cfg.Telegram.Token)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "06:30", cfg.Jobs.DigestAt)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"driver", "PLANNER_DATABASE_DRIVER", "mysql"},
		{"timezone", "PLANNER_TIMEZONE", "Mars/Olympus"},
		{"horizon", "PLANNER_RECONCILE_HORIZON_DAYS", "0"},
		{"stale policy", "PLANNER_RECONCILE_STALE_POLICY", "forget"},
		{"job time", "PLANNER_JOBS_SWEEP_AT", "25:00"},
		{"log level", "PLANNER_LOG_LEVEL", "chatty"},
		{"log format", "PLANNER_LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load(noEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestPostgresNeedsURL(t *testing.T) {
	t.Setenv("PLANNER_DATABASE_DRIVER", "postgres")
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "planner.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("database:\n  url: \"\"\n"), 0o600))

	_, err := Load(Options{ConfigFile: cfgFile, EnvFile: filepath.Join(dir, "none")})
	assert.ErrorContains(t, err, "database.url")
}
