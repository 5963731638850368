package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCRAPINIUM_URL", "ws://example.com/ws")
	t.Setenv("SCRAPINIUM_TOKEN", "secret")
	t.Setenv("SCRAPINIUM_MAX_RETRIES", "3")
	t.Setenv("SCRAPINIUM_POLL_INTERVAL", "7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ws://example.com/ws", cfg.ServerURL)
	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
	assert.Equal(t, 7*time.Second, cfg.PollInterval)
	assert.Equal(t, "http://example.com", cfg.APIURL, "API URL derived from ws URL")
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
url: ws://file.example/ws
token: from-file
maxRetries: 9
listLimit: 25
`), 0o600))

	t.Setenv("SCRAPINIUM_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://file.example/ws", cfg.ServerURL)
	assert.Equal(t, "from-env", cfg.Token, "env must override file")
	assert.Equal(t, 9, cfg.MaxReconnectAttempts)
	assert.Equal(t, 25, cfg.ListLimit)
}

func TestLoadRequiresServerURL(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServerURL = "http://not-a-ws-url"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ServerURL = "ws://ok/ws"
	cfg.PongTimeout = cfg.PingInterval
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ServerURL = "ws://ok/ws"
	cfg.MaxReconnectAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadRejectsBadEnvNumbers(t *testing.T) {
	t.Setenv("SCRAPINIUM_URL", "ws://example.com/ws")
	t.Setenv("SCRAPINIUM_PING_INTERVAL", "fast")

	_, err := Load("")
	assert.Error(t, err)
}

func TestDeriveAPIURL(t *testing.T) {
	assert.Equal(t, "https://host.example", DeriveAPIURL("wss://host.example/ws"))
	assert.Equal(t, "http://host.example:8080", DeriveAPIURL("ws://host.example:8080/ws"))
	assert.Equal(t, "http://host.example", DeriveAPIURL("ws://host.example/"))
}
