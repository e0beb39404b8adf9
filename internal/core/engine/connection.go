package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wsbridge/wsbridge/internal/core/observability/log"
)

// ConnState tracks the connection lifecycle.
type ConnState int32

const (
	StateOpen ConnState = iota
	StateClosing
	StateClosed
)

// Close reasons recorded for logging and timeout detection.
const (
	CloseReasonLocal    = "local close"
	CloseReasonRemote   = "remote close"
	CloseReasonTimeout  = "read timeout"
	CloseReasonOverflow = "outbound queue overflow"
	CloseReasonWrite    = "write failed"
)

const controlWriteWait = 10 * time.Second

// Conn wraps one WebSocket transport with the engine's bookkeeping:
// bounded outbound queue, activity tracking and idempotent close.
// The write loop is the single writer of data frames; control frames go
// through WriteControl, which gorilla allows concurrently.
type Conn struct {
	id       uint64
	ws       *websocket.Conn
	outbound chan string

	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanoseconds
	closeReason  atomic.Value // string

	done      chan struct{}
	closeOnce sync.Once

	lg log.Log
}

func newConn(ws *websocket.Conn, queueSize int, lg log.Log) *Conn {
	c := &Conn{
		ws:       ws,
		outbound: make(chan string, queueSize),
		done:     make(chan struct{}),
		lg:       lg,
	}
	c.touch()
	return c
}

// ID returns the registry id; zero for the client-side connection.
func (c *Conn) ID() uint64 { return c.id }

// State returns the current lifecycle state.
func (c *Conn) State() ConnState { return ConnState(c.state.Load()) }

// Done is closed once the connection is fully closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// touch records frame activity; called on every received frame,
// including pings and pongs, and on successful writes.
func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// idleFor reports how long the connection has been silent.
func (c *Conn) idleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

// enqueue places an outbound payload on the bounded queue. A full queue
// means the peer cannot drain fast enough; the connection is treated as
// unhealthy and the caller is expected to close it.
func (c *Conn) enqueue(payload string) error {
	if c.State() != StateOpen {
		return ErrConnectionClosed
	}
	select {
	case c.outbound <- payload:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrQueueFull
	}
}

// writeLoop drains the outbound queue onto the transport. It is the
// only goroutine writing data frames. Exits when the queue closes via
// done or a write fails.
func (c *Conn) writeLoop() {
	for {
		select {
		case payload := <-c.outbound:
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				c.lg.Warn("write failed", log.Uint64("conn_id", c.id), log.Error(err))
				c.close(CloseReasonWrite)
				return
			}
		case <-c.done:
			return
		}
	}
}

// ping sends a transport-level ping control frame.
func (c *Conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait))
}

// close shuts the connection down exactly once, recording the first
// reason supplied. Closing the transport unblocks the read loop, which
// owns the disconnect bookkeeping.
func (c *Conn) close(reason string) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		c.closeReason.Store(reason)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.ws.Close()

		c.state.Store(int32(StateClosed))
		close(c.done)
	})
}

// reason returns the recorded close reason, if any.
func (c *Conn) reason() string {
	if r, ok := c.closeReason.Load().(string); ok {
		return r
	}
	return ""
}
