package socket

import "sync/atomic"

// ConnState represents the lifecycle state of a Client.
type ConnState int32

const (
	// StateIdle indicates Connect has not been called yet.
	StateIdle ConnState = iota
	// StateConnecting indicates an underlying socket is being dialed.
	StateConnecting
	// StateOpen indicates the underlying socket is open.
	StateOpen
	// StateWaiting indicates a reconnect is scheduled.
	StateWaiting
	// StateExhausted indicates the reconnect budget ran out. Only an explicit Connect leaves it.
	StateExhausted
	// StateClosed indicates Close was called.
	StateClosed
)

// String returns the string representation of the connection state.
func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateWaiting:
		return "waiting"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// state provides atomic access to a ConnState so reads never take the client lock.
type state struct {
	v atomic.Int32
}

func (s *state) Load() ConnState {
	return ConnState(s.v.Load())
}

func (s *state) Store(st ConnState) {
	s.v.Store(int32(st))
}
