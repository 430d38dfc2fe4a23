package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"
)

// Events receives the reactions of one underlying socket. Calls for a single
// socket are made sequentially from its read goroutine.
type Events interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
	OnClose(err error)
}

// Conn is one underlying socket instance.
type Conn interface {
	// ID identifies the socket in logs.
	ID() string
	// Start begins delivering events. OnOpen is the first event delivered.
	Start()
	// WriteText sends one text frame.
	WriteText(data []byte) error
	// Close tears the socket down. The resulting OnClose carries a nil error.
	Close() error
}

// Dialer opens underlying sockets.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, events Events) (Conn, error)
}

// WSConfig holds handshake options for GWSDialer.
type WSConfig struct {
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration
	// Header is sent with the opening handshake.
	Header http.Header
	// Compression enables permessage-deflate negotiation.
	Compression bool
	// PingInterval is the duration between ping frames sent to keep the connection alive.
	PingInterval time.Duration
	// PongWait is how long past PingInterval the socket may stay silent before it is considered dead.
	PongWait time.Duration
}

// GWSDialer dials websocket connections with lxzan/gws.
type GWSDialer struct {
	config WSConfig
	logger zerolog.Logger
}

// NewGWSDialer creates a dialer. Zero durations default to a 5s handshake
// timeout, a 10s ping interval and a 20s pong wait.
func NewGWSDialer(config WSConfig) *GWSDialer {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 5 * time.Second
	}
	if config.PingInterval == 0 {
		config.PingInterval = 10 * time.Second
	}
	if config.PongWait == 0 {
		config.PongWait = 20 * time.Second
	}
	return &GWSDialer{
		config: config,
		logger: zerolog.Nop(),
	}
}

func (d *GWSDialer) SetLogger(logger zerolog.Logger) {
	d.logger = logger
}

// Dial performs the opening handshake. The returned Conn delivers no events
// until Start is called.
func (d *GWSDialer) Dial(ctx context.Context, endpoint string, events Events) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn := &wsConn{
		id:           uuid.NewString(),
		events:       events,
		pingInterval: d.config.PingInterval,
		pongWait:     d.config.PongWait,
		done:         make(chan struct{}),
	}
	conn.logger = d.logger.With().Str("conn_id", conn.id).Logger()

	netDialer := &contextDialer{ctx: ctx}
	socket, _, err := gws.NewClient(&wsEventHandler{conn: conn}, &gws.ClientOption{
		Addr:             endpoint,
		RequestHeader:    d.config.Header.Clone(),
		HandshakeTimeout: d.config.HandshakeTimeout,
		PermessageDeflate: gws.PermessageDeflate{
			Enabled: d.config.Compression,
		},
		NewDialer: func() (gws.Dialer, error) {
			return netDialer, nil
		},
	})
	if !netDialer.release() && err == nil {
		_ = socket.NetConn().Close()
		err = context.Cause(ctx)
	}
	if err != nil {
		if ctx.Err() != nil {
			err = context.Cause(ctx)
		}
		return nil, fmt.Errorf("connect websocket: %w", err)
	}
	conn.socket = socket

	conn.logger.Debug().Str("url", endpoint).Msg("websocket handshake complete")
	return conn, nil
}

// contextDialer ties the whole handshake to ctx: the TCP dial honours it, and
// a cancellation before release closes the dialed conn so a stalled upgrade
// fails at once.
type contextDialer struct {
	ctx    context.Context
	dialer net.Dialer
	stop   func() bool
}

func (d *contextDialer) Dial(network, addr string) (net.Conn, error) {
	conn, err := d.dialer.DialContext(d.ctx, network, addr)
	if err != nil {
		return nil, err
	}
	d.stop = context.AfterFunc(d.ctx, func() {
		_ = conn.Close()
	})
	return conn, nil
}

// release detaches the dialed conn from ctx. It returns false if ctx was
// cancelled first and the conn has been closed.
func (d *contextDialer) release() bool {
	if d.stop == nil {
		return true
	}
	return d.stop()
}

type wsConn struct {
	id     string
	socket *gws.Conn
	events Events
	logger zerolog.Logger

	pingInterval time.Duration
	pongWait     time.Duration

	startOnce sync.Once
	closing   atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) Start() {
	c.startOnce.Do(func() {
		go c.socket.ReadLoop()
	})
}

func (c *wsConn) WriteText(data []byte) error {
	if c.closing.Load() {
		return net.ErrClosed
	}
	return c.socket.WriteMessage(gws.OpcodeText, data)
}

// extendDeadline pushes the socket deadline out by one ping interval plus the
// pong wait. A peer silent for longer fails the read loop with a timeout.
func (c *wsConn) extendDeadline() {
	_ = c.socket.SetDeadline(time.Now().Add(c.pingInterval + c.pongWait))
}

func (c *wsConn) keepalive() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.socket.WritePing(nil); err != nil {
				c.logger.Debug().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *wsConn) stopKeepalive() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

func (c *wsConn) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	c.stopKeepalive()
	c.socket.WriteClose(1000, nil)
	if err := c.socket.NetConn().Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

type wsEventHandler struct {
	conn *wsConn
}

func (h *wsEventHandler) OnOpen(socket *gws.Conn) {
	h.conn.extendDeadline()
	go h.conn.keepalive()
	h.conn.events.OnOpen()
}

func (h *wsEventHandler) OnClose(socket *gws.Conn, err error) {
	h.conn.stopKeepalive()
	if h.conn.closing.Load() {
		h.conn.events.OnClose(nil)
		return
	}
	if !isNormalClosure(err) {
		h.conn.logger.Debug().Err(err).Msg("websocket closed abnormally")
		h.conn.events.OnError(err)
	}
	h.conn.events.OnClose(err)
}

func (h *wsEventHandler) OnPing(socket *gws.Conn, payload []byte) {
	h.conn.extendDeadline()
	_ = socket.WritePong(payload)
}

func (h *wsEventHandler) OnPong(socket *gws.Conn, payload []byte) {
	h.conn.extendDeadline()
}

func (h *wsEventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	h.conn.extendDeadline()

	// the message buffer is pooled and reused after Close
	data := append([]byte(nil), message.Bytes()...)
	h.conn.events.OnMessage(data)
}

func isNormalClosure(err error) bool {
	if err == nil {
		return true
	}
	var closeErr *gws.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == 1000 || closeErr.Code == 1001
	}
	return false
}
