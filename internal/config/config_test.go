package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "raibid:jobs", cfg.Redis.Stream)
	assert.Equal(t, "golang:1.24-alpine", cfg.Agents.BuildImage)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("RAIBID_SERVER_PORT", "9999")
	t.Setenv("RAIBID_LOG_LEVEL", "debug")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	t.Setenv("RAIBID_SERVER_PORT", "9999")

	port := 7000
	cfg, err := Load(Options{ServerPort: &port})
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoad_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  stream: custom-stream\n"), 0o644))

	cfg, err := Load(Options{FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, "custom-stream", cfg.Redis.Stream)
	// Untouched fields keep their defaults.
	assert.Equal(t, "raibid-agents", cfg.Redis.ConsumerGroup)
}

func TestLoad_InvalidEnvInt(t *testing.T) {
	t.Setenv("RAIBID_SERVER_PORT", "not-a-number")

	_, err := Load(Options{})
	assert.Error(t, err)
}
