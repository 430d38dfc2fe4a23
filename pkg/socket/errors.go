package socket

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind categorizes client errors.
type ErrorKind int

const (
	// ErrorKindUnknown indicates an unclassified error.
	ErrorKindUnknown ErrorKind = iota
	// ErrorKindTransport indicates a dial failure or an abnormal socket termination.
	ErrorKindTransport
	// ErrorKindSend indicates an outbound message was dropped.
	ErrorKindSend
	// ErrorKindBudget indicates the reconnect budget ran out.
	ErrorKindBudget
	// ErrorKindConfig indicates an invalid configuration.
	ErrorKindConfig
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransport:
		return "TRANSPORT"
	case ErrorKindSend:
		return "SEND"
	case ErrorKindBudget:
		return "BUDGET"
	case ErrorKindConfig:
		return "CONFIG"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors for common error conditions.
var (
	// ErrNotConnected is returned when sending without an open socket.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrRateLimited is returned when an outbound message exceeds the send rate limit.
	ErrRateLimited = errors.New("send rate limit exceeded")
	// ErrMaxAttemptsReached is reported when the reconnect budget is spent.
	ErrMaxAttemptsReached = errors.New("max reconnect attempts reached")
	// ErrInvalidEndpoint is returned for endpoints that are not ws:// or wss:// URLs.
	ErrInvalidEndpoint = errors.New("invalid websocket endpoint")
	// ErrNilHandler is returned when no handler is supplied.
	ErrNilHandler = errors.New("handler is nil")
)

// SocketError describes a failure on a Client with enough context to log it.
type SocketError struct {
	Kind      ErrorKind
	Op        string
	Endpoint  string
	Err       error
	Timestamp time.Time
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("[%s] %s %s: %v", e.Endpoint, e.Kind, e.Op, e.Err)
}

func (e *SocketError) Unwrap() error {
	return e.Err
}

// NewSocketError creates a SocketError stamped with the current time.
func NewSocketError(kind ErrorKind, op, endpoint string, err error) *SocketError {
	return &SocketError{
		Kind:      kind,
		Op:        op,
		Endpoint:  endpoint,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// IsTransportError returns true if err is a dial failure or abnormal socket termination.
func IsTransportError(err error) bool {
	return kindOf(err) == ErrorKindTransport
}

// IsSendError returns true if err reports a dropped outbound message.
func IsSendError(err error) bool {
	return kindOf(err) == ErrorKindSend
}

// IsBudgetError returns true if err reports a spent reconnect budget.
func IsBudgetError(err error) bool {
	return kindOf(err) == ErrorKindBudget
}

// IsConfigError returns true if err reports an invalid configuration.
func IsConfigError(err error) bool {
	return kindOf(err) == ErrorKindConfig
}

func kindOf(err error) ErrorKind {
	var se *SocketError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrorKindUnknown
}
