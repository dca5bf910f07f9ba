package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Listen, cfg.Listen)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Selectors, again.Selectors)
	assert.Equal(t, cfg.Timings, again.Timings)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
url: https://example.test/schedule
selectors:
  slot: ".cell"
timings:
  open_timeout: 2s
  event_delay: 0s
basic_auth:
  username: admin
  password: secret
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.test/schedule", cfg.URL)
	assert.Equal(t, ".cell", cfg.Selectors.Slot)
	assert.Equal(t, "#schedule-editor", cfg.Selectors.Editor)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)

	tm, err := cfg.FillTimings()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, tm.OpenTimeout)
	assert.Equal(t, 5*time.Second, tm.CloseTimeout)
	assert.Equal(t, 100*time.Millisecond, tm.PollInterval)
	assert.Equal(t, time.Duration(0), tm.EventDelay)
}

func TestLoadRejectsBadTimings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "timings:\n  open_timeout: soon\n  poll_interval: 0s\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timings.open_timeout")
	assert.Contains(t, err.Error(), "timings.poll_interval")
}

func TestFillTimingsAcceptsDays(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timings.CloseTimeout = "1d"
	tm, err := cfg.FillTimings()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, tm.CloseTimeout)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.DumpDir = "/tmp/dumps"
	cfg.Browser.RemoteURL = "ws://127.0.0.1:9222"
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/dumps", got.DumpDir)
	assert.Equal(t, "ws://127.0.0.1:9222", got.Browser.RemoteURL)
}

func TestSaveReplacesFileAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: old\n"), 0o644))

	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), header))
	assert.Contains(t, string(data), "password: secret")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Only the config itself is left; the temp file was renamed over it.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "config.yaml", entries[0].Name())
}

func TestLocationFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Not/AZone"
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "config.yaml"), nil))
}
