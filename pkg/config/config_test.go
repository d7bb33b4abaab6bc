package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icecake0141/nwrunner/pkg/logger"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"), logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, Default().ListenAddr, cfg.ListenAddr)
	assert.Equal(t, WorkerModeSimulated, cfg.WorkerMode)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nwrunner.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_addr":":9000","history_limit":50}`), 0o600))

	cfg, err := Load(context.Background(), path, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 50, cfg.HistoryLimit)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nwrunner.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_addr":":9000"}`), 0o600))

	t.Setenv("NWRUNNER_LISTEN_ADDR", ":7777")
	t.Setenv("NWRUNNER_WORKER_MODE", "ssh")

	cfg, err := Load(context.Background(), path, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, WorkerMode("ssh"), cfg.WorkerMode)
}

func TestLoad_EnvCommaSeparatedSlice(t *testing.T) {
	t.Setenv("NWRUNNER_CORS_ALLOWED_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load(context.Background(), "", logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSAllowedOrigins)
}
