package socket

import (
	"iter"
	"sync"
	"time"
)

// Handler receives the events of a Client. Callbacks are never invoked while
// the client holds its lock, so a handler may call Send, Close or Connect.
type Handler interface {
	// OnOpen is called each time an underlying socket opens.
	OnOpen()
	// OnMessage is called with each inbound payload, unmodified.
	OnMessage(data []byte)
	// OnError is called for dial failures and abnormal terminations.
	OnError(err error)
	// OnMaxAttemptsReached is called once when the reconnect budget is spent.
	OnMaxAttemptsReached()
}

// HandlerFuncs adapts optional functions to a Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Open               func()
	Message            func(data []byte)
	Error              func(err error)
	MaxAttemptsReached func()
}

// OnOpen calls Open if set.
func (h HandlerFuncs) OnOpen() {
	if h.Open != nil {
		h.Open()
	}
}

// OnMessage calls Message if set.
func (h HandlerFuncs) OnMessage(data []byte) {
	if h.Message != nil {
		h.Message(data)
	}
}

// OnError calls Error if set.
func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

// OnMaxAttemptsReached calls MaxAttemptsReached if set.
func (h HandlerFuncs) OnMaxAttemptsReached() {
	if h.MaxAttemptsReached != nil {
		h.MaxAttemptsReached()
	}
}

// EventKind identifies the type of an Event.
type EventKind int

const (
	// EventOpen is emitted when an underlying socket opens.
	EventOpen EventKind = iota
	// EventMessage carries one inbound payload.
	EventMessage
	// EventError carries a transport failure.
	EventError
	// EventMaxAttemptsReached is emitted once when the reconnect budget is spent.
	EventMaxAttemptsReached
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventMaxAttemptsReached:
		return "max_attempts_reached"
	default:
		return "unknown"
	}
}

// Event is one client event delivered through an EventStream.
type Event struct {
	Kind EventKind
	// Data is set for EventMessage.
	Data []byte
	// Err is set for EventError.
	Err error
	// At is when the event was emitted.
	At time.Time
}

// EventStream is a Handler that delivers events on a channel. Delivery blocks
// the emitting goroutine until the event is consumed or the stream is closed.
type EventStream struct {
	ch     chan Event
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewEventStream creates an EventStream with the given channel capacity.
func NewEventStream(buffer int) *EventStream {
	if buffer < 0 {
		buffer = 0
	}
	return &EventStream{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
}

// Events returns the receive side of the stream. It is closed by Close.
func (s *EventStream) Events() <-chan Event {
	return s.ch
}

// All returns a sequence over the stream that ends when the stream is closed.
func (s *EventStream) All() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for ev := range s.ch {
			if !yield(ev) {
				return
			}
		}
	}
}

// Close stops delivery and closes the events channel. Pending emitters are released.
func (s *EventStream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// OnOpen emits EventOpen.
func (s *EventStream) OnOpen() {
	s.emit(Event{Kind: EventOpen})
}

// OnMessage emits EventMessage with data.
func (s *EventStream) OnMessage(data []byte) {
	s.emit(Event{Kind: EventMessage, Data: data})
}

// OnError emits EventError with err.
func (s *EventStream) OnError(err error) {
	s.emit(Event{Kind: EventError, Err: err})
}

// OnMaxAttemptsReached emits EventMaxAttemptsReached.
func (s *EventStream) OnMaxAttemptsReached() {
	s.emit(Event{Kind: EventMaxAttemptsReached})
}

func (s *EventStream) emit(ev Event) {
	ev.At = time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	case <-s.done:
	}
}
