package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Session.Target)
	assert.Equal(t, 5*time.Second, cfg.Poll.DiscoveryInterval)
	assert.Equal(t, "/api/approve-claims", cfg.Backend.ApprovePath)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CLAIMDESK_SESSION_TARGET", "lanz-2026-03-01")
	t.Setenv("CLAIMDESK_POLL_DISCOVERY_INTERVAL", "2s")
	t.Setenv("CLAIMDESK_DISPATCH_BATCH_SIZE", "3")
	t.Setenv("CLAIMDESK_BACKEND_HTTPS_PROXY", "http://proxy:3128")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	v := viper.New()
	setupEnv(v)
	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "lanz-2026-03-01", cfg.Session.Target)
	assert.Equal(t, 2*time.Second, cfg.Poll.DiscoveryInterval)
	assert.Equal(t, 3, cfg.Dispatch.BatchSize)
	assert.Equal(t, "http://proxy:3128", cfg.Backend.HTTPSProxy)
	assert.Equal(t, "sk-test", cfg.Extract.APIKey)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session:
  target: maischberger
poll:
  results_interval: 30s
cache:
  enabled: false
`), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "maischberger", cfg.Session.Target)
	assert.Equal(t, 30*time.Second, cfg.Poll.ResultsInterval)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Poll.DiscoveryInterval, "unset keys keep defaults")
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, writeDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# claimdesk configuration")
	assert.Contains(t, string(data), "base_url: http://localhost:5000")
	assert.NotContains(t, string(data), "api_key")

	err = writeDefaultConfig(path)
	assert.ErrorContains(t, err, "already exists")
}

func TestSplitOrder(t *testing.T) {
	assert.Equal(t, []string{"Anna", "Bob"}, splitOrder(" Anna , ,Bob"))
	assert.Nil(t, splitOrder(""))
}

func TestExportCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ep1", r.URL.Query().Get("episode"))
		_, _ = fmt.Fprint(w, `[{"id": 1, "sprecher": "Anna", "behauptung": "X", "consistency": "hoch", "begruendung": "Ja."}]`)
	}))
	defer srv.Close()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("CLAIMDESK_BACKEND_BASE_URL", srv.URL)
	out := filepath.Join(t.TempDir(), "ep1.md")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"export", "--target", "ep1", "--md", out, "--log-level", "error"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, buf.String(), "1 results exported")

	md, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(md), "## Anna")
	assert.Contains(t, string(md), "✅ Belegt")
}
