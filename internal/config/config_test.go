package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Parse registers on the global flag set, so it can only run once per test
// binary; everything it needs to prove lives in this one test.
func TestParseEnvOverrides(t *testing.T) {
	stateDir := t.TempDir()
	t.Setenv("ADMINTASK_ADDR", "127.0.0.1:9090")
	t.Setenv("ADMINTASK_AUTH_TOKEN", "tok")
	t.Setenv("ADMINTASK_INVOKE_SECRET", "sec")
	t.Setenv("ADMINTASK_BASE_INTERVAL", "2s")
	t.Setenv("ADMINTASK_PENALTY_CEILING", "16")
	t.Setenv("ADMINTASK_POPULATE_LOOKAHEAD", "90s")
	t.Setenv("ADMINTASK_RETENTION_MAX_AGE", "48h")
	t.Setenv("ADMINTASK_STATE_DIR", stateDir)
	t.Setenv("ADMINTASK_MODE", "both")
	t.Setenv("ADMINTASK_BARK_ENABLED", "true")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, "tok", cfg.Server.AuthToken)
	assert.Equal(t, "sec", cfg.Invoke.Secret)
	assert.Equal(t, 2*time.Second, cfg.Runner.BaseInterval)
	assert.Equal(t, 16, cfg.Runner.PenaltyCeiling)
	assert.Equal(t, 90*time.Second, cfg.Runner.PopulateLookahead)
	assert.Equal(t, 48*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, stateDir, cfg.StateDir)
	assert.Equal(t, "both", cfg.Mode)
	assert.True(t, cfg.Bark.Enabled)

	// Untouched settings keep their defaults.
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ShutdownGrace)
}
