package socket

import "time"

// Scheduler runs deferred reconnect attempts.
type Scheduler interface {
	// AfterFunc runs f once after d. The returned func cancels the call if it
	// has not started and reports whether it did so.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}
