package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lxzan/gws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverHandler struct {
	gws.BuiltinEventHandler
	onOpen func(socket *gws.Conn)
	// pong answers client pings; without it the server never writes unprompted.
	pong bool
}

func (h *serverHandler) OnPing(socket *gws.Conn, payload []byte) {
	if h.pong {
		_ = socket.WritePong(payload)
	}
}

func (h *serverHandler) OnOpen(socket *gws.Conn) {
	if h.onOpen != nil {
		h.onOpen(socket)
	}
}

func (h *serverHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	_ = socket.WriteMessage(message.Opcode, message.Bytes())
}

func newTestServer(t *testing.T, handler *serverHandler, check func(r *http.Request)) string {
	t.Helper()
	upgrader := gws.NewUpgrader(handler, &gws.ServerOption{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		socket, err := upgrader.Upgrade(w, r)
		if err != nil {
			return
		}
		go socket.ReadLoop()
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

type recordingEvents struct {
	opened   chan struct{}
	messages chan []byte
	errs     chan error
	closed   chan error
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{
		opened:   make(chan struct{}, 1),
		messages: make(chan []byte, 16),
		errs:     make(chan error, 4),
		closed:   make(chan error, 1),
	}
}

func (e *recordingEvents) OnOpen() { e.opened <- struct{}{} }
func (e *recordingEvents) OnMessage(data []byte) { e.messages <- data }
func (e *recordingEvents) OnError(err error) { e.errs <- err }
func (e *recordingEvents) OnClose(err error) { e.closed <- err }

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestNewGWSDialer_Defaults(t *testing.T) {
	dialer := NewGWSDialer(WSConfig{})

	assert.NotNil(t, dialer)
	assert.Equal(t, 5*time.Second, dialer.config.HandshakeTimeout)
	assert.Equal(t, 10*time.Second, dialer.config.PingInterval)
	assert.Equal(t, 20*time.Second, dialer.config.PongWait)
}

func TestGWSDialer_EchoRoundTrip(t *testing.T) {
	url := newTestServer(t, &serverHandler{}, nil)
	events := newRecordingEvents()

	conn, err := NewGWSDialer(WSConfig{}).Dial(context.Background(), url, events)
	require.NoError(t, err)
	defer conn.Close()

	assert.NotEmpty(t, conn.ID())

	conn.Start()
	waitFor(t, events.opened)

	require.NoError(t, conn.WriteText([]byte(`{"a":1}`)))
	assert.Equal(t, `{"a":1}`, string(waitFor(t, events.messages)))
}

func TestGWSDialer_SendsHeader(t *testing.T) {
	got := make(chan string, 1)
	url := newTestServer(t, &serverHandler{}, func(r *http.Request) {
		got <- r.Header.Get("X-Client")
	})

	header := http.Header{}
	header.Set("X-Client", "resock")

	conn, err := NewGWSDialer(WSConfig{Header: header}).Dial(context.Background(), url, newRecordingEvents())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "resock", waitFor(t, got))
}

func TestGWSDialer_DialRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	_, err := NewGWSDialer(WSConfig{HandshakeTimeout: time.Second}).Dial(context.Background(), url, newRecordingEvents())
	assert.Error(t, err)
}

func TestGWSDialer_ContextCancelled(t *testing.T) {
	url := newTestServer(t, &serverHandler{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGWSDialer(WSConfig{}).Dial(ctx, url, newRecordingEvents())
	assert.ErrorIs(t, err, context.Canceled)
}

// newStalledListener accepts TCP connections but never answers the upgrade.
func newStalledListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()
	return "ws://" + ln.Addr().String() + "/ws"
}

func TestGWSDialer_CancelAbortsStalledHandshake(t *testing.T) {
	url := newStalledListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := NewGWSDialer(WSConfig{HandshakeTimeout: 5 * time.Second}).Dial(ctx, url, newRecordingEvents())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGWSDialer_LocalCloseIsNotAnError(t *testing.T) {
	url := newTestServer(t, &serverHandler{}, nil)
	events := newRecordingEvents()

	conn, err := NewGWSDialer(WSConfig{}).Dial(context.Background(), url, events)
	require.NoError(t, err)
	conn.Start()
	waitFor(t, events.opened)

	require.NoError(t, conn.Close())
	assert.NoError(t, waitFor(t, events.closed))
	assert.Empty(t, events.errs)

	assert.Error(t, conn.WriteText([]byte("late")))
	assert.NoError(t, conn.Close())
}

func TestGWSDialer_ServerNormalClose(t *testing.T) {
	url := newTestServer(t, &serverHandler{onOpen: func(socket *gws.Conn) {
		socket.WriteClose(1000, []byte("bye"))
	}}, nil)
	events := newRecordingEvents()

	conn, err := NewGWSDialer(WSConfig{}).Dial(context.Background(), url, events)
	require.NoError(t, err)
	conn.Start()

	waitFor(t, events.closed)
	assert.Empty(t, events.errs)
}

func TestGWSDialer_ServerDropIsAnError(t *testing.T) {
	url := newTestServer(t, &serverHandler{onOpen: func(socket *gws.Conn) {
		_ = socket.NetConn().Close()
	}}, nil)
	events := newRecordingEvents()

	conn, err := NewGWSDialer(WSConfig{}).Dial(context.Background(), url, events)
	require.NoError(t, err)
	conn.Start()

	assert.Error(t, waitFor(t, events.errs))
	assert.Error(t, waitFor(t, events.closed))
}

func TestGWSDialer_SilentPeerTimesOut(t *testing.T) {
	url := newTestServer(t, &serverHandler{}, nil)
	events := newRecordingEvents()

	dialer := NewGWSDialer(WSConfig{PingInterval: 20 * time.Millisecond, PongWait: 50 * time.Millisecond})
	conn, err := dialer.Dial(context.Background(), url, events)
	require.NoError(t, err)
	conn.Start()
	waitFor(t, events.opened)

	assert.Error(t, waitFor(t, events.errs))
	assert.Error(t, waitFor(t, events.closed))
}

func TestGWSDialer_PongsKeepConnectionAlive(t *testing.T) {
	url := newTestServer(t, &serverHandler{pong: true}, nil)
	events := newRecordingEvents()

	dialer := NewGWSDialer(WSConfig{PingInterval: 20 * time.Millisecond, PongWait: 50 * time.Millisecond})
	conn, err := dialer.Dial(context.Background(), url, events)
	require.NoError(t, err)
	defer conn.Close()
	conn.Start()
	waitFor(t, events.opened)

	time.Sleep(300 * time.Millisecond)

	assert.Empty(t, events.errs)
	assert.Empty(t, events.closed)
	require.NoError(t, conn.WriteText([]byte("still here")))
	assert.Equal(t, "still here", string(waitFor(t, events.messages)))
}

func TestIsNormalClosure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"normal", &gws.CloseError{Code: 1000}, true},
		{"going_away", &gws.CloseError{Code: 1001}, true},
		{"protocol_error", &gws.CloseError{Code: 1002}, false},
		{"other", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNormalClosure(tt.err))
		})
	}
}
