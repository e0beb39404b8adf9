package engine

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsbridge/wsbridge/internal/core/observability/log"
)

func TestDispatcher_SerializesDelivery(t *testing.T) {
	lg := log.New(log.LevelError)

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var got []Event

	d := NewDispatcher(SinkFunc(func(ev Event) {
		mu.Lock()
		inside++
		if inside > maxInside {
			maxInside = inside
		}
		got = append(got, ev)
		inside--
		mu.Unlock()
	}), lg)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(Event{Type: EventMessage, Source: SourceServer})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Len(t, got, 50)
}

func TestDispatcher_NilSinkDropsEvents(t *testing.T) {
	lg := log.New(log.LevelError)
	d := NewDispatcher(nil, lg)

	assert.NotPanics(t, func() {
		d.Dispatch(Event{Type: EventConnect, Source: SourceServer})
	})
}

func TestDispatcher_SinkPanicContained(t *testing.T) {
	lg := log.New(log.LevelError)

	calls := 0
	d := NewDispatcher(SinkFunc(func(ev Event) {
		calls++
		if calls == 1 {
			panic("sink blew up")
		}
	}), lg)

	assert.NotPanics(t, func() {
		d.Dispatch(Event{Type: EventMessage, Source: SourceClient})
	})

	// The dispatcher keeps working after a sink panic.
	d.Dispatch(Event{Type: EventMessage, Source: SourceClient})
	assert.Equal(t, 2, calls)
}

func TestEvent_JSONFieldNames(t *testing.T) {
	ev := Event{
		Type:     EventMessage,
		Source:   SourceServer,
		ClientID: "7",
		Message:  "hello",
	}

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "message", decoded["event_type"])
	assert.Equal(t, "server", decoded["source"])
	assert.Equal(t, "7", decoded["client_id"])
	assert.Equal(t, "hello", decoded["message"])
}
