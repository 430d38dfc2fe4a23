package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"resock/pkg/socket"
)

// EnvPrefix is the prefix of environment variables read by the CLI.
const EnvPrefix = "RESOCK_"

// Config is the CLI configuration.
// Priority: flags > environment variables > config file > defaults.
type Config struct {
	Endpoint             string            `koanf:"endpoint"`
	MaxReconnectAttempts int               `koanf:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration     `koanf:"reconnect_delay"`
	HandshakeTimeout     time.Duration     `koanf:"handshake_timeout"`
	PingInterval         time.Duration     `koanf:"ping_interval"`
	PongWait             time.Duration     `koanf:"pong_wait"`
	Headers              map[string]string `koanf:"headers"`
	Compression          bool              `koanf:"compression"`
	SendRateLimit        int               `koanf:"send_rate_limit"`
	SendRatePeriod       time.Duration     `koanf:"send_rate_period"`
	LogLevel             string            `koanf:"log_level"`
	MetricsAddr          string            `koanf:"metrics_addr"`
}

func defaultConfig() *Config {
	return &Config{
		MaxReconnectAttempts: socket.DefaultMaxReconnectAttempts,
		ReconnectDelay:       socket.DefaultReconnectDelay,
		HandshakeTimeout:     socket.DefaultHandshakeTimeout,
		PingInterval:         socket.DefaultPingInterval,
		PongWait:             socket.DefaultPongWait,
		SendRatePeriod:       time.Second,
		LogLevel:             "info",
	}
}

// LoadConfig loads configuration from an optional TOML file and RESOCK_ environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// SocketConfig converts the CLI configuration into a validated client configuration.
func (c *Config) SocketConfig() (*socket.Config, error) {
	sc := socket.DefaultConfig(c.Endpoint).
		WithReconnect(c.MaxReconnectAttempts, c.ReconnectDelay).
		WithHandshakeTimeout(c.HandshakeTimeout).
		WithKeepalive(c.PingInterval, c.PongWait).
		WithCompression(c.Compression).
		WithSendRateLimit(c.SendRateLimit, c.SendRatePeriod).
		WithLogLevel(c.LogLevel)
	for key, value := range c.Headers {
		sc.WithHeader(key, value)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return sc, nil
}
