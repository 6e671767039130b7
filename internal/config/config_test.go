package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_limit: 9\ndefault_epochs: 20\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.BatchLimit)
	assert.Equal(t, 20, cfg.DefaultEpochs)
	assert.Equal(t, Defaults().PollIntervalSeconds, cfg.PollIntervalSeconds, "unset keys keep their default")
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_limit: 9\n"), 0o644))

	t.Setenv("BATCH_LIMIT", "42")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.BatchLimit)
}

func TestPollInterval_ConvertsSecondsToDuration(t *testing.T) {
	cfg := AgentConfig{PollIntervalSeconds: 15}
	assert.Equal(t, 15e9, float64(cfg.PollInterval()))
}
