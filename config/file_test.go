package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pevans/ventricle/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: point HOME at a temp dir
func setTestHome(t *testing.T) string {
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := setTestHome(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".ventricle", "pulses"), cfg.PulsesDir)
	assert.Equal(t, filepath.Join(home, ".ventricle", "records.db"), cfg.Storage.RecordsDSN)
	assert.Equal(t, filepath.Join(home, ".ventricle", "items"), cfg.Storage.ItemsDir)
	assert.Equal(t, time.Minute, cfg.Scheduler.TickInterval)
	assert.Equal(t, 1, cfg.Scheduler.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, fetch.DefaultUserAgent, cfg.Fetch.UserAgent)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.API.Enabled)
	assert.Equal(t, "127.0.0.1:7474", cfg.API.Addr)
}

func TestLoad_DefaultFileInHome(t *testing.T) {
	home := setTestHome(t)
	dir := filepath.Join(home, ".ventricle")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
pulses_dir: /srv/pulses
scheduler:
  tick_interval: 30s
`), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/pulses", cfg.PulsesDir)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.Debounce, "unset keys keep defaults")
}

func TestLoad_ExplicitFile(t *testing.T) {
	setTestHome(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  records_dsn: /data/records.db
api:
  enabled: true
  addr: ":9000"
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/records.db", cfg.Storage.RecordsDSN)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, ":9000", cfg.API.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	setTestHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  concurrency: 2\n"), 0o600))

	t.Setenv("VENTRICLE_SCHEDULER_CONCURRENCY", "4")
	t.Setenv("VENTRICLE_FETCH_TIMEOUT", "5s")
	t.Setenv("VENTRICLE_PULSES_DIR", "/env/pulses")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Scheduler.Concurrency, "environment beats the file")
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "/env/pulses", cfg.PulsesDir)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	setTestHome(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	setTestHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler: [unterminated"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidTickInterval(t *testing.T) {
	setTestHome(t)
	t.Setenv("VENTRICLE_SCHEDULER_TICK_INTERVAL", "0s")

	_, err := Load("")
	assert.ErrorContains(t, err, "tick_interval")
}

func TestLoad_ConcurrencyFloor(t *testing.T) {
	setTestHome(t)
	t.Setenv("VENTRICLE_SCHEDULER_CONCURRENCY", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Scheduler.Concurrency)
}

func TestWriteDefaultConfigFile(t *testing.T) {
	home := setTestHome(t)
	path := filepath.Join(home, ".ventricle", "config.yaml")

	written, err := WriteDefaultConfigFile("", false)
	require.NoError(t, err)
	assert.True(t, written)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Scheduler.TickInterval, "the written file round-trips")

	require.NoError(t, os.WriteFile(path, []byte("pulses_dir: /mine\n"), 0o600))
	written, err = WriteDefaultConfigFile("", false)
	require.NoError(t, err)
	assert.False(t, written, "existing files are kept")

	written, err = WriteDefaultConfigFile("", true)
	require.NoError(t, err)
	assert.True(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "~/.ventricle/pulses")
}

func TestExpandHome(t *testing.T) {
	home := setTestHome(t)

	got, err := ExpandHome("~/x/y")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y"), got)

	got, err = ExpandHome("/abs/~/z")
	require.NoError(t, err)
	assert.Equal(t, "/abs/~/z", got)
}
