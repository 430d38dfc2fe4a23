package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound messages on a socket.
type Limiter struct {
	limiter  *rate.Limiter
	messages int
	period   time.Duration
	metrics  *Metrics
}

// Metrics tracks statistics about limiter usage.
type Metrics struct {
	total   atomic.Int64
	allowed atomic.Int64
	denied  atomic.Int64
}

// New creates a Limiter allowing the given number of messages per period.
// The burst equals the message count, so a full period's worth may go out at once.
func New(messages int, period time.Duration) *Limiter {
	return &Limiter{
		limiter:  rate.NewLimiter(perSecond(messages, period), messages),
		messages: messages,
		period:   period,
		metrics:  &Metrics{},
	}
}

// Allow reports whether a message may be sent now.
func (l *Limiter) Allow() bool {
	l.metrics.total.Add(1)
	if l.limiter.Allow() {
		l.metrics.allowed.Add(1)
		return true
	}
	l.metrics.denied.Add(1)
	return false
}

// Wait blocks until a message may be sent or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.metrics.total.Add(1)
	if err := l.limiter.Wait(ctx); err != nil {
		l.metrics.denied.Add(1)
		return err
	}
	l.metrics.allowed.Add(1)
	return nil
}

// SetLimit updates the limit to the given number of messages per period.
func (l *Limiter) SetLimit(messages int, period time.Duration) {
	l.messages = messages
	l.period = period
	l.limiter.SetLimit(perSecond(messages, period))
	l.limiter.SetBurst(messages)
}

// Metrics returns a snapshot of the limiter statistics.
func (l *Limiter) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Total:   l.metrics.total.Load(),
		Allowed: l.metrics.allowed.Load(),
		Denied:  l.metrics.denied.Load(),
	}
}

// MetricsSnapshot is a point-in-time capture of limiter statistics.
type MetricsSnapshot struct {
	Total   int64
	Allowed int64
	Denied  int64
}

func perSecond(messages int, period time.Duration) rate.Limit {
	if period <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(messages) / period.Seconds())
}
