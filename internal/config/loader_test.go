package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://worker:pw@localhost:5432/lembra")
	t.Setenv("WORKER_SECRET", "super-secret-token-1")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 4, cfg.Database.MaxConns)
	assert.Equal(t, 15*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 7, cfg.Scheduler.ScanWindowDays)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.MatchTolerance)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.DedupWindow)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.DispatchTolerance)
	assert.Equal(t, []string{"*"}, cfg.Security.CorsAllowedOrigins)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9090")
	t.Setenv("SCAN_WINDOW_DAYS", "14")
	t.Setenv("MATCH_TOLERANCE", "10m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 14, cfg.Scheduler.ScanWindowDays)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.MatchTolerance)
}

func TestLoadConfigMissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WORKER_SECRET", "super-secret-token-1")

	_, err := LoadConfig()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoadConfigShortWorkerSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://worker:pw@localhost:5432/lembra")
	t.Setenv("WORKER_SECRET", "short")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsUnknownEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "sandbox")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigBadDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MATCH_TOLERANCE", "five minutes")

	_, err := LoadConfig()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrParsing, cfgErr.Type)
}

func TestLoadConfigRedactsSecrets(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.NotContains(t, cfg.Database.URL.String(), "pw")
	assert.NotContains(t, cfg.Worker.Secret.String(), "super")
	assert.Equal(t, "postgres://worker:pw@localhost:5432/lembra", cfg.Database.URL.Unmask())
}
