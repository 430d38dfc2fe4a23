package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"resock/internal/metrics"
	"resock/pkg/socket"
)

var rootCmd = &cobra.Command{
	Use:   "resock",
	Short: "Reconnecting websocket client",
}

var connectCmd = &cobra.Command{
	Use:   "connect [endpoint]",
	Short: "Connect to a websocket endpoint, print inbound messages and send stdin lines",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConnect,
}

var (
	flagConfigPath       string
	flagMaxAttempts      int
	flagReconnectDelay   time.Duration
	flagHandshakeTimeout time.Duration
	flagPingInterval     time.Duration
	flagPongWait         time.Duration
	flagHeaders          []string
	flagRateLimit        int
	flagLogLevel         string
	flagMetricsAddr      string
)

func init() {
	flags := connectCmd.Flags()
	flags.StringVar(&flagConfigPath, "config", "", "optional TOML config file")
	flags.IntVar(&flagMaxAttempts, "max-attempts", socket.DefaultMaxReconnectAttempts, "reconnect attempts between two successful opens")
	flags.DurationVar(&flagReconnectDelay, "reconnect-delay", socket.DefaultReconnectDelay, "fixed delay before each reconnect attempt")
	flags.DurationVar(&flagHandshakeTimeout, "handshake-timeout", socket.DefaultHandshakeTimeout, "opening handshake timeout")
	flags.DurationVar(&flagPingInterval, "ping-interval", socket.DefaultPingInterval, "keepalive ping interval")
	flags.DurationVar(&flagPongWait, "pong-wait", socket.DefaultPongWait, "silence tolerated past a ping interval before reconnecting")
	flags.StringArrayVar(&flagHeaders, "header", nil, "handshake header as 'Key: Value' (repeatable)")
	flags.IntVar(&flagRateLimit, "rate-limit", 0, "max outbound messages per second (0 = unlimited)")
	flags.StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(connectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(flagConfigPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg, args); err != nil {
		return err
	}
	sc, err := cfg.SocketConfig()
	if err != nil {
		return err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector, err = metrics.NewCollector(reg, sc.Endpoint)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	stream := socket.NewEventStream(256)
	client, err := socket.New(*sc, stream, socket.WithLogger(logger), socket.WithMetrics(collector))
	if err != nil {
		return err
	}
	defer stream.Close()
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial connect failed, retrying in background")
	}

	go pumpStdin(ctx, cmd.InOrStdin(), client, logger)

	return printEvents(ctx, cmd.OutOrStdout(), stream, client.MaxReconnectAttempts())
}

func applyFlags(cmd *cobra.Command, cfg *Config, args []string) error {
	flags := cmd.Flags()
	if len(args) == 1 {
		cfg.Endpoint = args[0]
	}
	if flags.Changed("max-attempts") {
		cfg.MaxReconnectAttempts = flagMaxAttempts
	}
	if flags.Changed("reconnect-delay") {
		cfg.ReconnectDelay = flagReconnectDelay
	}
	if flags.Changed("handshake-timeout") {
		cfg.HandshakeTimeout = flagHandshakeTimeout
	}
	if flags.Changed("ping-interval") {
		cfg.PingInterval = flagPingInterval
	}
	if flags.Changed("pong-wait") {
		cfg.PongWait = flagPongWait
	}
	if flags.Changed("rate-limit") {
		cfg.SendRateLimit = flagRateLimit
		cfg.SendRatePeriod = time.Second
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = flagMetricsAddr
	}
	for _, h := range flagHeaders {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q, expected 'Key: Value'", h)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		cfg.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if cfg.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}

// pumpStdin sends each non-empty input line. Valid JSON goes out as is,
// anything else is sent as a JSON string.
func pumpStdin(ctx context.Context, in io.Reader, client *socket.Client, logger zerolog.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		payload, err := payloadFor(scanner.Text())
		if err != nil {
			logger.Error().Err(err).Msg("failed to encode input line")
			continue
		}
		if payload == nil {
			continue
		}
		_ = client.SendRaw(payload)
	}
}

func payloadFor(line string) ([]byte, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if sonic.Valid([]byte(line)) {
		return []byte(line), nil
	}
	return sonic.Marshal(line)
}

func printEvents(ctx context.Context, out io.Writer, stream *socket.EventStream, maxAttempts int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-stream.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case socket.EventMessage:
				fmt.Fprintln(out, string(ev.Data))
			case socket.EventMaxAttemptsReached:
				return fmt.Errorf("gave up after %d reconnect attempts: %w", maxAttempts, socket.ErrMaxAttemptsReached)
			}
		}
	}
}
