package socket

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"resock/internal/budget"
	"resock/internal/metrics"
	"resock/internal/ratelimit"
	"resock/internal/transport"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDialer replaces the default gws dialer.
func WithDialer(dialer transport.Dialer) Option {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// WithScheduler replaces the timer used for reconnect delays.
// The scheduler must never run f synchronously from AfterFunc.
func WithScheduler(s Scheduler) Option {
	return func(c *Client) {
		c.sched = s
	}
}

// WithMetrics records client activity on the given collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client keeps one logical connection to an endpoint alive across underlying
// socket failures, up to a bounded number of fixed-delay reconnect attempts.
type Client struct {
	config  Config
	handler Handler
	dialer  transport.Dialer
	sched   Scheduler
	logger  zerolog.Logger
	metrics *metrics.Collector
	budget  *budget.Budget
	limiter *ratelimit.Limiter
	state   state

	mu        sync.Mutex
	conn      transport.Conn
	gen       uint64
	stopTimer func() bool
	cancel    context.CancelFunc
	ctx       context.Context
}

// New creates a Client for cfg. No connection is made until Connect.
func New(cfg Config, handler Handler, opts ...Option) (*Client, error) {
	if handler == nil {
		return nil, NewSocketError(ErrorKindConfig, "new", cfg.Endpoint, ErrNilHandler)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:  cfg,
		handler: handler,
		sched:   timerScheduler{},
		logger:  zerolog.Nop(),
		budget:  budget.New(cfg.MaxReconnectAttempts),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.LogLevel != "" {
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err == nil {
			c.logger = c.logger.Level(level)
		}
	}
	c.logger = c.logger.With().Str("url", cfg.Endpoint).Logger()

	if c.dialer == nil {
		dialer := transport.NewGWSDialer(transport.WSConfig{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Header:           cfg.Header,
			Compression:      cfg.Compression,
			PingInterval:     cfg.PingInterval,
			PongWait:         cfg.PongWait,
		})
		dialer.SetLogger(c.logger)
		c.dialer = dialer
	}
	if cfg.SendRateLimit > 0 {
		c.limiter = ratelimit.New(cfg.SendRateLimit, cfg.SendRatePeriod)
	}

	c.setState(StateIdle)
	return c, nil
}

// Endpoint returns the configured endpoint.
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	return c.state.Load()
}

// IsOpen returns true if an underlying socket is open.
func (c *Client) IsOpen() bool {
	return c.state.Load() == StateOpen
}

// ReconnectAttempts returns the attempts spent since the last successful open.
func (c *Client) ReconnectAttempts() int {
	return c.budget.Attempts()
}

// MaxReconnectAttempts returns the effective reconnect budget, with defaults applied.
func (c *Client) MaxReconnectAttempts() int {
	return c.budget.Max()
}

// Connect starts a new connection lifecycle: the reconnect budget is restored,
// any previous socket or pending reconnect is discarded, and a socket is dialed.
//
// A dial failure is reported to the handler and enters the reconnect procedure
// like any other close. The failure is also returned for information; the
// client keeps retrying in the background regardless.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	old := c.detachLocked()
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	lifecycle := c.ctx
	c.budget.Reset()
	c.setState(StateConnecting)
	gen := c.gen
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	// The first dial stops on either the caller's ctx or Close.
	dialCtx, cancel := context.WithCancel(lifecycle)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	c.logger.Info().Msg("connecting websocket")
	return c.dial(dialCtx, gen)
}

// Close tears down the underlying socket and cancels any pending reconnect.
// It never triggers a reconnect. Calling Connect afterwards starts over.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state.Load() == StateClosed {
		c.mu.Unlock()
		return nil
	}
	old := c.detachLocked()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.setState(StateClosed)
	c.mu.Unlock()

	c.logger.Info().Msg("websocket closed")

	if old != nil {
		if err := old.Close(); err != nil {
			return NewSocketError(ErrorKindTransport, "close", c.config.Endpoint, err)
		}
	}
	return nil
}

// Send encodes v as JSON and writes it as one text message. When no socket is
// open the message is logged and dropped; the returned error is informational.
func (c *Client) Send(v any) error {
	conn, err := c.openConn()
	if err != nil {
		return err
	}

	data, err := sonic.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode message")
		c.metrics.Dropped("encode_failed")
		return NewSocketError(ErrorKindSend, "send", c.config.Endpoint, fmt.Errorf("marshal json: %w", err))
	}
	return c.write(conn, data)
}

// SendRaw writes data, which must already be text, as one message.
func (c *Client) SendRaw(data []byte) error {
	conn, err := c.openConn()
	if err != nil {
		return err
	}
	return c.write(conn, data)
}

func (c *Client) openConn() (transport.Conn, error) {
	c.mu.Lock()
	conn := c.conn
	open := c.state.Load() == StateOpen
	c.mu.Unlock()

	if conn == nil || !open {
		c.logger.Error().Str("state", c.State().String()).Msg("websocket is not connected")
		c.metrics.Dropped("not_connected")
		return nil, NewSocketError(ErrorKindSend, "send", c.config.Endpoint, ErrNotConnected)
	}
	return conn, nil
}

func (c *Client) write(conn transport.Conn, data []byte) error {
	if c.limiter != nil && !c.limiter.Allow() {
		c.logger.Warn().Msg("send rate limit exceeded, dropping message")
		c.metrics.Dropped("rate_limited")
		return NewSocketError(ErrorKindSend, "send", c.config.Endpoint, ErrRateLimited)
	}
	if err := conn.WriteText(data); err != nil {
		c.logger.Error().Err(err).Str("conn_id", conn.ID()).Msg("failed to write message")
		c.metrics.Dropped("write_failed")
		return NewSocketError(ErrorKindSend, "send", c.config.Endpoint, err)
	}
	c.metrics.Sent()
	return nil
}

// detachLocked invalidates the current socket generation, stops a pending
// reconnect and returns the socket that was owned, if any.
func (c *Client) detachLocked() transport.Conn {
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	c.gen++
	old := c.conn
	c.conn = nil
	return old
}

func (c *Client) setState(st ConnState) {
	c.state.Store(st)
	c.metrics.SetState(int(st))
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Client) dial(ctx context.Context, gen uint64) error {
	conn, err := c.dialer.Dial(ctx, c.config.Endpoint, &socketEvents{client: c, gen: gen})

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}
	if err != nil {
		c.mu.Unlock()
		serr := NewSocketError(ErrorKindTransport, "dial", c.config.Endpoint, err)
		c.handleError(gen, serr)
		c.handleClose(gen, serr)
		return serr
	}
	c.conn = conn
	c.mu.Unlock()

	conn.Start()
	return nil
}

func (c *Client) redial(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.stopTimer = nil
	c.gen++
	gen = c.gen
	ctx := c.ctx
	c.setState(StateConnecting)
	c.mu.Unlock()

	c.logger.Info().
		Int("attempt", c.budget.Attempts()).
		Int("max_attempts", c.budget.Max()).
		Msg("attempting reconnect")

	_ = c.dial(ctx, gen)
}

func (c *Client) handleOpen(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.budget.Reset()
	c.setState(StateOpen)
	connID := ""
	if c.conn != nil {
		connID = c.conn.ID()
	}
	c.mu.Unlock()

	c.metrics.Opened()
	c.logger.Info().Str("conn_id", connID).Msg("websocket connected")
	c.handler.OnOpen()
}

func (c *Client) handleMessage(gen uint64, data []byte) {
	if !c.current(gen) {
		return
	}
	c.metrics.Received()
	c.logger.Debug().Str("data", string(data)).Msg("received websocket message")
	c.handler.OnMessage(data)
}

func (c *Client) handleError(gen uint64, err error) {
	if !c.current(gen) {
		return
	}
	if kindOf(err) == ErrorKindUnknown {
		err = NewSocketError(ErrorKindTransport, "read", c.config.Endpoint, err)
	}
	c.metrics.Errored()
	c.logger.Error().Err(err).Msg("websocket error")
	c.handler.OnError(err)
}

func (c *Client) handleClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.metrics.Closed()

	attempt, ok := c.budget.Acquire()
	if !ok {
		c.setState(StateExhausted)
		c.mu.Unlock()

		c.metrics.Exhausted()
		c.logger.Error().
			Int("attempts", attempt).
			Err(ErrMaxAttemptsReached).
			Msg("max reconnect attempts reached")
		c.handler.OnMaxAttemptsReached()
		return
	}

	c.setState(StateWaiting)
	c.stopTimer = c.sched.AfterFunc(c.config.ReconnectDelay, func() {
		c.redial(gen)
	})
	c.mu.Unlock()

	c.metrics.ReconnectScheduled(attempt)
	c.logger.Warn().
		Err(err).
		Int("attempt", attempt).
		Dur("wait", c.config.ReconnectDelay).
		Msg("websocket disconnected, reconnect scheduled")
}

type socketEvents struct {
	client *Client
	gen    uint64
}

func (e *socketEvents) OnOpen() {
	e.client.handleOpen(e.gen)
}

func (e *socketEvents) OnMessage(data []byte) {
	e.client.handleMessage(e.gen, data)
}

func (e *socketEvents) OnError(err error) {
	e.client.handleError(e.gen, err)
}

func (e *socketEvents) OnClose(err error) {
	e.client.handleClose(e.gen, err)
}
