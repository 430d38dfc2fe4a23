package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resock/pkg/socket"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resock.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, socket.DefaultMaxReconnectAttempts, cfg.MaxReconnectAttempts)
	assert.Equal(t, socket.DefaultReconnectDelay, cfg.ReconnectDelay)
	assert.Equal(t, socket.DefaultHandshakeTimeout, cfg.HandshakeTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Endpoint)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
endpoint = "wss://stream.example.com/ws"
max_reconnect_attempts = 3
reconnect_delay = "250ms"
handshake_timeout = "2s"
ping_interval = "15s"
pong_wait = "30s"
compression = true
send_rate_limit = 10
log_level = "debug"

[headers]
Authorization = "Bearer token"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://stream.example.com/ws", cfg.Endpoint)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
	assert.Equal(t, 2*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 15*time.Second, cfg.PingInterval)
	assert.Equal(t, 30*time.Second, cfg.PongWait)
	assert.True(t, cfg.Compression)
	assert.Equal(t, 10, cfg.SendRateLimit)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "Bearer token", cfg.Headers["Authorization"])
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
endpoint = "ws://file.example.com"
max_reconnect_attempts = 3
`)
	t.Setenv("RESOCK_ENDPOINT", "ws://env.example.com")
	t.Setenv("RESOCK_RECONNECT_DELAY", "5s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://env.example.com", cfg.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestConfig_SocketConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Endpoint = "ws://localhost:8080/ws/echo"
	cfg.Headers = map[string]string{"X-Client": "resock"}
	cfg.SendRateLimit = 5

	sc, err := cfg.SocketConfig()
	require.NoError(t, err)

	assert.Equal(t, cfg.Endpoint, sc.Endpoint)
	assert.Equal(t, "resock", sc.Header.Get("X-Client"))
	assert.Equal(t, 5, sc.SendRateLimit)
	assert.Equal(t, time.Second, sc.SendRatePeriod)
}

func TestConfig_SocketConfigInvalidEndpoint(t *testing.T) {
	cfg := defaultConfig()
	cfg.Endpoint = "http://localhost:8080"

	_, err := cfg.SocketConfig()
	require.Error(t, err)
	assert.ErrorIs(t, err, socket.ErrInvalidEndpoint)
}
