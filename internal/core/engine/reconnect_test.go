package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wsbridge/wsbridge/internal/core/observability/log"
)

func TestReconnectSupervisor_RetriesUntilSuccess(t *testing.T) {
	lg := log.New(log.LevelError)
	delay := func() time.Duration { return 10 * time.Millisecond }

	var attempts atomic.Int32
	dial := func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("still down")
		}
		return nil
	}

	s := NewReconnectSupervisor(delay, dial, lg)
	s.Schedule()

	assert.Eventually(t, func() bool {
		return attempts.Load() == 3 && !s.Active()
	}, 2*time.Second, 5*time.Millisecond)

	// No further attempts after success.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestReconnectSupervisor_CancelStopsRetrying(t *testing.T) {
	lg := log.New(log.LevelError)
	delay := func() time.Duration { return 10 * time.Millisecond }

	var attempts atomic.Int32
	dial := func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("always down")
	}

	s := NewReconnectSupervisor(delay, dial, lg)
	s.Schedule()

	assert.Eventually(t, func() bool {
		return attempts.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Cancel()
	assert.False(t, s.Active())

	settled := attempts.Load()
	time.Sleep(100 * time.Millisecond)
	// At most one in-flight attempt finishes after Cancel.
	assert.LessOrEqual(t, attempts.Load(), settled+1)
}

func TestReconnectSupervisor_ScheduleIsIdempotent(t *testing.T) {
	lg := log.New(log.LevelError)
	delay := func() time.Duration { return 20 * time.Millisecond }

	var attempts atomic.Int32
	dial := func(ctx context.Context) error {
		attempts.Add(1)
		return nil
	}

	s := NewReconnectSupervisor(delay, dial, lg)
	s.Schedule()
	s.Schedule()
	s.Schedule()

	assert.Eventually(t, func() bool {
		return !s.Active()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestReconnectSupervisor_CancelBeforeFirstAttempt(t *testing.T) {
	lg := log.New(log.LevelError)
	delay := func() time.Duration { return 200 * time.Millisecond }

	var attempts atomic.Int32
	dial := func(ctx context.Context) error {
		attempts.Add(1)
		return nil
	}

	s := NewReconnectSupervisor(delay, dial, lg)
	s.Schedule()
	s.Cancel()

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, attempts.Load())
	assert.False(t, s.Active())
}
