package budget

import (
	"sync"
	"sync/atomic"
)

// Budget caps the number of automatic reconnect attempts between two
// successful opens. Attempts never exceeds Max.
type Budget struct {
	mu       sync.Mutex
	max      int
	attempts int
	metrics  *Metrics
}

// Metrics tracks how the budget has been spent.
type Metrics struct {
	acquired atomic.Int64
	denied   atomic.Int64
	resets   atomic.Int64
}

// New creates a Budget allowing max attempts. A negative max is treated as zero.
func New(max int) *Budget {
	if max < 0 {
		max = 0
	}
	return &Budget{
		max:     max,
		metrics: &Metrics{},
	}
}

// Acquire spends one attempt. It returns the 1-based attempt number and true,
// or the current count and false once the budget is exhausted.
func (b *Budget) Acquire() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attempts >= b.max {
		b.metrics.denied.Add(1)
		return b.attempts, false
	}
	b.attempts++
	b.metrics.acquired.Add(1)
	return b.attempts, true
}

// Reset returns the budget to zero spent attempts.
func (b *Budget) Reset() {
	b.mu.Lock()
	b.attempts = 0
	b.mu.Unlock()
	b.metrics.resets.Add(1)
}

// Attempts returns the number of attempts spent since the last reset.
func (b *Budget) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Max returns the number of attempts allowed between resets.
func (b *Budget) Max() int {
	return b.max
}

// Exhausted reports whether no attempts remain.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts >= b.max
}

// Metrics returns a snapshot of budget usage.
func (b *Budget) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Acquired: b.metrics.acquired.Load(),
		Denied:   b.metrics.denied.Load(),
		Resets:   b.metrics.resets.Load(),
	}
}

// MetricsSnapshot is a point-in-time copy of budget usage counters.
type MetricsSnapshot struct {
	Acquired int64
	Denied   int64
	Resets   int64
}
