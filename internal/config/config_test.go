package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "tasks.yaml", cfg.TasksFile)
	assert.Equal(t, 10, cfg.MaxConcurrency)
	assert.False(t, cfg.ContinueOnError)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, ".overture/history.db", cfg.History.DBPath)
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
max_concurrency: 4
log_level: debug
watch_debounce: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.WatchDebounce)
	// Untouched keys keep their defaults.
	assert.Equal(t, "tasks.yaml", cfg.TasksFile)
	assert.True(t, cfg.History.Enabled)
}

func TestLoadConfigHistorySection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
history:
  enabled: false
  max_runs: 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// enabled: false is explicitly present, so it overrides the default.
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, 50, cfg.History.MaxRuns)
	assert.Equal(t, ".overture/history.db", cfg.History.DBPath)
	assert.Equal(t, 90, cfg.History.KeepRunsDays)
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("watch_debounce: soon\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch_debounce")
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_concurrency: ]["), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".overture"), 0o755))
	content := "tasks_file: pipelines.yaml\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".overture", "config.yaml"), []byte(content), 0o644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "pipelines.yaml", cfg.TasksFile)
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()

	file := "other.yaml"
	conc := 2
	cont := true
	cfg.MergeWithFlags(&file, &conc, &cont, nil)

	assert.Equal(t, "other.yaml", cfg.TasksFile)
	assert.Equal(t, 2, cfg.MaxConcurrency)
	assert.True(t, cfg.ContinueOnError)
	assert.Equal(t, "info", cfg.LogLevel)
}
