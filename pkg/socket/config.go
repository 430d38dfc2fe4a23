package socket

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultMaxReconnectAttempts is the reconnect budget used when none is set.
	DefaultMaxReconnectAttempts = 5
	// DefaultReconnectDelay is the fixed delay before each reconnect attempt.
	DefaultReconnectDelay = time.Second
	// DefaultHandshakeTimeout bounds each opening handshake.
	DefaultHandshakeTimeout = 5 * time.Second
	// DefaultPingInterval is the time between keepalive pings.
	DefaultPingInterval = 10 * time.Second
	// DefaultPongWait is how long past a ping interval a silent socket is kept.
	DefaultPongWait = 20 * time.Second
)

// Config contains all configuration options for a Client.
type Config struct {
	// Endpoint is the ws:// or wss:// URL to connect to.
	Endpoint string `json:"endpoint" validate:"required,wsurl"`

	// MaxReconnectAttempts caps automatic reconnects between two successful opens.
	// Zero selects DefaultMaxReconnectAttempts.
	MaxReconnectAttempts int `json:"max_reconnect_attempts" validate:"min=0"`
	// ReconnectDelay is the fixed wait before each reconnect attempt.
	ReconnectDelay time.Duration `json:"reconnect_delay" validate:"min=1ms"`

	HandshakeTimeout time.Duration `json:"handshake_timeout" validate:"min=0"`
	Header           http.Header   `json:"-"`
	Compression      bool          `json:"compression"`

	// PingInterval and PongWait drive keepalive. A socket that receives nothing for
	// PingInterval+PongWait is treated as dead, which closes it and starts a reconnect.
	PingInterval time.Duration `json:"ping_interval" validate:"min=0"`
	PongWait     time.Duration `json:"pong_wait" validate:"min=0"`

	// SendRateLimit caps outbound messages per SendRatePeriod. Zero disables pacing.
	SendRateLimit  int           `json:"send_rate_limit" validate:"min=0"`
	SendRatePeriod time.Duration `json:"send_rate_period" validate:"min=0"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config for endpoint with 5 reconnect attempts spaced 1s apart.
func DefaultConfig(endpoint string) *Config {
	return &Config{
		Endpoint:             endpoint,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectDelay:       DefaultReconnectDelay,
		HandshakeTimeout:     DefaultHandshakeTimeout,
		PingInterval:         DefaultPingInterval,
		PongWait:             DefaultPongWait,
		SendRatePeriod:       time.Second,
		LogLevel:             "info",
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("wsurl", func(fl validator.FieldLevel) bool {
		return isWebsocketURL(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register wsurl validation: %v", err))
	}
	return v
}

func isWebsocketURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "ws" || u.Scheme == "wss") && u.Host != ""
}

// Validate checks the configuration. Endpoint failures wrap ErrInvalidEndpoint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "Endpoint" {
					err = fmt.Errorf("%w %q: %w", ErrInvalidEndpoint, c.Endpoint, err)
					break
				}
			}
		}
		return NewSocketError(ErrorKindConfig, "validate", c.Endpoint, err)
	}
	if c.SendRateLimit > 0 && c.SendRatePeriod <= 0 {
		return NewSocketError(ErrorKindConfig, "validate", c.Endpoint,
			errors.New("SendRatePeriod must be positive when SendRateLimit is set"))
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongWait == 0 {
		c.PongWait = DefaultPongWait
	}
	if c.SendRateLimit > 0 && c.SendRatePeriod == 0 {
		c.SendRatePeriod = time.Second
	}
}

// WithReconnect sets the reconnect budget and fixed delay and returns the config for chaining.
func (c *Config) WithReconnect(maxAttempts int, delay time.Duration) *Config {
	c.MaxReconnectAttempts = maxAttempts
	c.ReconnectDelay = delay
	return c
}

// WithHandshakeTimeout sets the handshake timeout and returns the config for chaining.
func (c *Config) WithHandshakeTimeout(timeout time.Duration) *Config {
	c.HandshakeTimeout = timeout
	return c
}

// WithKeepalive sets the ping interval and pong wait and returns the config for chaining.
func (c *Config) WithKeepalive(pingInterval, pongWait time.Duration) *Config {
	c.PingInterval = pingInterval
	c.PongWait = pongWait
	return c
}

// WithHeader adds a handshake header and returns the config for chaining.
func (c *Config) WithHeader(key, value string) *Config {
	if c.Header == nil {
		c.Header = http.Header{}
	}
	c.Header.Add(key, value)
	return c
}

// WithCompression enables or disables permessage-deflate and returns the config for chaining.
func (c *Config) WithCompression(enabled bool) *Config {
	c.Compression = enabled
	return c
}

// WithSendRateLimit sets outbound pacing and returns the config for chaining.
func (c *Config) WithSendRateLimit(messages int, period time.Duration) *Config {
	c.SendRateLimit = messages
	c.SendRatePeriod = period
	return c
}

// WithLogLevel sets the client log level and returns the config for chaining.
func (c *Config) WithLogLevel(level string) *Config {
	c.LogLevel = level
	return c
}
