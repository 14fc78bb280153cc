package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"FLOW_BIND_ADDR", "FLOW_ENGINE", "FLOW_SESSION_BACKEND", "FLOW_PORT_CANDIDATES", "FLOW_AUTOSAVE_INTERVAL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8190", cfg.BindAddr)
	assert.Equal(t, "headless", cfg.Engine)
	assert.Equal(t, "file", cfg.SessionBackend)
	assert.Equal(t, 5*time.Minute, cfg.AutoSaveInterval)
	assert.Len(t, cfg.PortCandidates, 3)
	assert.Equal(t, "http://127.0.0.1:9220", cfg.CDPURL())
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FLOW_ENGINE", "Playwright")
	t.Setenv("FLOW_SESSION_BACKEND", "sqlite")
	t.Setenv("FLOW_PORT_CANDIDATES", " 127.0.0.1:9000, ,127.0.0.1:9001")
	t.Setenv("FLOW_SAVE_RETRY_DELAY", "1s")
	t.Setenv("FLOW_SAVE_RETRIES", "0")
	t.Setenv("FLOW_RESTORE_ON_START", "true")
	t.Setenv("FLOW_RATE_LIMIT_RPS", "2.5")
	t.Setenv("CHROMIUM_CDP_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "playwright", cfg.Engine)
	assert.Equal(t, "sqlite", cfg.SessionBackend)
	assert.Equal(t, []string{"127.0.0.1:9000", "127.0.0.1:9001"}, cfg.PortCandidates)
	assert.Equal(t, time.Second, cfg.SaveRetryDelay)
	assert.Equal(t, 1, cfg.SaveRetries)
	assert.True(t, cfg.RestoreOnStart)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 1e-9)
	assert.Equal(t, 9220, cfg.CDPPort)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	// godotenv never overrides a variable that is already set, even to "".
	t.Setenv("FLOW_JOURNAL_DIR", "")
	require.NoError(t, os.Unsetenv("FLOW_JOURNAL_DIR"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FLOW_JOURNAL_DIR=/var/flow/journal\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/flow/journal", cfg.JournalDir)
}

func TestLoadRejectsUnknownEngine(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FLOW_ENGINE", "gecko")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("FLOW_ENGINE", "")
	t.Setenv("FLOW_SESSION_BACKEND", "s3")
	_, err = Load()
	require.Error(t, err)
}

func writeLayout(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadLayout(t *testing.T) {
	path := writeLayout(t, `
windows:
  - kind: normal
    bounds: {x: 10, y: 20, width: 1024, height: 768}
    spaces:
      - name: Work
        groups:
          - {name: Docs, color: blue, collapsed: true}
        tabs:
          - {url: "https://example.com", pinned: true, active: true}
          - {url: "https://go.dev", group: Docs}
  - spaces:
      - name: Personal
        profile: home
        tabs:
          - url: "https://news.example"
`)
	layout, err := LoadLayout(path)
	require.NoError(t, err)
	require.Len(t, layout.Windows, 2)

	w := layout.Windows[0]
	assert.Equal(t, LayoutBounds{X: 10, Y: 20, Width: 1024, Height: 768}, w.Bounds)
	require.Len(t, w.Spaces[0].Tabs, 2)
	assert.True(t, w.Spaces[0].Tabs[0].Pinned)
	assert.Equal(t, "Docs", w.Spaces[0].Tabs[1].Group)
	assert.True(t, w.Spaces[0].Groups[0].Collapsed)
	assert.Equal(t, "home", layout.Windows[1].Spaces[0].Profile)
}

func TestLoadLayoutMissingFile(t *testing.T) {
	_, err := LoadLayout(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadLayoutValidation(t *testing.T) {
	cases := map[string]string{
		"no windows":    "windows: []\n",
		"no spaces":     "windows:\n  - kind: normal\n",
		"bad kind":      "windows:\n  - kind: dialog\n    spaces: [{name: a}]\n",
		"missing url":   "windows:\n  - spaces:\n      - tabs: [{title: x}]\n",
		"unknown group": "windows:\n  - spaces:\n      - tabs: [{url: a, group: nope}]\n",
		"dup group":     "windows:\n  - spaces:\n      - groups: [{name: a}, {name: a}]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadLayout(writeLayout(t, body))
			assert.Error(t, err)
		})
	}
}
