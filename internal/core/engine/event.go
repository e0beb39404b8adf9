package engine

import (
	"sync"

	"github.com/wsbridge/wsbridge/internal/core/observability/log"
)

// EventType discriminates the records handed to the external sink.
type EventType string

const (
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
	EventMessage    EventType = "message"
)

// Source identifies which engine role produced an event.
type Source string

const (
	SourceServer Source = "server"
	SourceClient Source = "client"
)

// Event is the one stable record the engine produces for every
// connection-lifecycle and message occurrence. ClientID is the decimal
// registry id for server-side events and empty for client-side events;
// Message carries the decoded text and is empty for non-message events.
type Event struct {
	Type     EventType `json:"event_type"`
	Source   Source    `json:"source"`
	ClientID string    `json:"client_id"`
	Message  string    `json:"message"`
}

// Sink is the single external consumer of engine events. It has no
// concurrency contract of its own: the dispatcher guarantees it observes
// one event at a time.
type Sink interface {
	Deliver(Event)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Deliver(ev Event) { f(ev) }

// Dispatcher serializes event delivery to the sink. Per-connection
// ordering (connect, messages, disconnect) is preserved because each
// connection dispatches from a single goroutine; the mutex adds the
// process-wide one-at-a-time guarantee the sink relies on.
type Dispatcher struct {
	mu   sync.Mutex
	sink Sink
	lg   log.Log
}

func NewDispatcher(sink Sink, lg log.Log) *Dispatcher {
	return &Dispatcher{
		sink: sink,
		lg:   lg.With(log.String("component", "dispatcher")),
	}
}

// Dispatch hands one event to the sink. A nil sink drops events; a
// panicking sink is contained so it can never take a connection down.
func (d *Dispatcher) Dispatch(ev Event) {
	if d.sink == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			d.lg.Error("event sink panic", log.Any("panic", r), log.String("event_type", string(ev.Type)))
		}
	}()

	d.sink.Deliver(ev)
}
