package engine

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// collector is a test sink buffering delivered events.
type collector struct {
	events chan Event
}

func newCollector() *collector {
	return &collector{events: make(chan Event, 128)}
}

func (c *collector) Deliver(ev Event) {
	c.events <- ev
}

// waitFor blocks until an event matching type and source arrives.
func (c *collector) waitFor(t *testing.T, evType EventType, source Source) Event {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-c.events:
			if ev.Type == evType && ev.Source == source {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s/%s event", source, evType)
			return Event{}
		}
	}
}

// expectNone asserts no event of the given type arrives within d.
func (c *collector) expectNone(t *testing.T, evType EventType, d time.Duration) {
	t.Helper()

	deadline := time.After(d)
	for {
		select {
		case ev := <-c.events:
			if ev.Type == evType {
				t.Fatalf("unexpected %s event: %+v", evType, ev)
			}
		case <-deadline:
			return
		}
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	cfg.ReconnectDelay = 50 * time.Millisecond
	return cfg
}

// freeAddr reserves an ephemeral port and releases it so a server can
// bind the same address later, which reconnect tests depend on.
func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}
