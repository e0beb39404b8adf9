package engine

import (
	"context"
	"sync"
	"time"

	"github.com/wsbridge/wsbridge/internal/core/observability/log"
)

// ReconnectSupervisor drives retry timing after an established client
// connection is lost: one dial attempt per delay tick, indefinitely,
// until an attempt succeeds or Cancel fires. Failed attempts are logged
// but not surfaced; there is no caller to return them to.
type ReconnectSupervisor struct {
	delay func() time.Duration
	dial  func(context.Context) error
	lg    log.Log

	mu     sync.Mutex
	active bool
	cancel chan struct{}
}

func NewReconnectSupervisor(delay func() time.Duration, dial func(context.Context) error, lg log.Log) *ReconnectSupervisor {
	return &ReconnectSupervisor{
		delay: delay,
		dial:  dial,
		lg:    lg.With(log.String("component", "reconnect")),
	}
}

// Schedule starts the retry loop. A loop already in flight is left
// alone.
func (s *ReconnectSupervisor) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return
	}
	s.active = true
	s.cancel = make(chan struct{})
	go s.run(s.cancel)
}

// Cancel aborts a pending retry loop, including its in-flight timer.
func (s *ReconnectSupervisor) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	close(s.cancel)
	s.active = false
}

// Active reports whether a retry loop is running.
func (s *ReconnectSupervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *ReconnectSupervisor) run(cancel chan struct{}) {
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(s.delay())
		select {
		case <-timer.C:
		case <-cancel:
			timer.Stop()
			return
		}

		select {
		case <-cancel:
			return
		default:
		}

		s.lg.Info("reconnect attempt", log.Int("attempt", attempt))
		if err := s.dial(context.Background()); err != nil {
			s.lg.Warn("reconnect failed", log.Int("attempt", attempt), log.Error(err))
			continue
		}

		s.mu.Lock()
		if s.cancel == cancel {
			s.active = false
		}
		s.mu.Unlock()
		return
	}
}
