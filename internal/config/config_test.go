package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "workspace", cfg.WorkspacePath)
	assert.Equal(t, 30*time.Second, cfg.StepTimeout())
	assert.Equal(t, "localhost:8000", cfg.Addr())
	assert.Equal(t, "agent.events", cfg.NATSSubject)
	assert.True(t, cfg.AutoInstallPacks)
	assert.False(t, cfg.RestrictCodeExecution)
	assert.Equal(t, 50, cfg.MaxSteps)
	assert.InDelta(t, 2.0, cfg.StepRate, 0.001)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PROCESS_TIMEOUT", "5")
	t.Setenv("PORT", "9001")
	t.Setenv("RESTRICT_CODE_EXECUTION", "true")
	t.Setenv("DATABASE_URL", "postgres://agent@localhost/agent")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.StepTimeout())
	assert.Equal(t, 9001, cfg.Port)
	assert.True(t, cfg.RestrictCodeExecution)
	assert.Equal(t, "postgres://agent@localhost/agent", cfg.DatabaseURL)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: 0.0.0.0\nmax_steps: 7\nlog_level: debug\n"), 0o644))
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 7, cfg.MaxSteps)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("PROCESS_TIMEOUT", "0")
	t.Setenv("PORT", "70000")

	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorContains(t, err, "process_timeout")
	assert.ErrorContains(t, err, "port")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
