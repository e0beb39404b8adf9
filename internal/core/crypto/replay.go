package crypto

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ReplayGuard rejects ciphertexts whose embedded timestamp is outside
// the configured window or that have already been accepted within it.
// The seen set is keyed on xxhash64(nonce || timestamp) and pruned
// lazily on every check as the window slides. Safe for concurrent use.
type ReplayGuard struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[uint64]time.Time

	// test hook; defaults to time.Now
	now func() time.Time
}

// NewReplayGuard builds a guard with a symmetric window: a message is
// fresh when |now - timestamp| <= window.
func NewReplayGuard(window time.Duration) *ReplayGuard {
	if window < 0 {
		window = -window
	}
	return &ReplayGuard{
		window: window,
		seen:   make(map[uint64]time.Time),
		now:    time.Now,
	}
}

// SetWindow updates the window at runtime. Negative input is
// interpreted symmetrically.
func (g *ReplayGuard) SetWindow(window time.Duration) {
	if window < 0 {
		window = -window
	}
	g.mu.Lock()
	g.window = window
	g.mu.Unlock()
}

// Window returns the current window.
func (g *ReplayGuard) Window() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window
}

// Accept checks a (timestamp, nonce) pair and records it when fresh.
// Returns ErrStaleTimestamp when the timestamp falls outside the window
// and ErrDuplicateMessage when the pair was already accepted.
func (g *ReplayGuard) Accept(ts time.Time, nonce []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	drift := now.Sub(ts)
	if drift < 0 {
		drift = -drift
	}
	if drift > g.window {
		return fmt.Errorf("%w: drift %s exceeds %s", ErrStaleTimestamp, drift, g.window)
	}

	g.evictLocked(now)

	key := seenKey(ts, nonce)
	if _, dup := g.seen[key]; dup {
		return ErrDuplicateMessage
	}
	g.seen[key] = ts
	return nil
}

// Len reports the number of retained entries.
func (g *ReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

func (g *ReplayGuard) evictLocked(now time.Time) {
	horizon := now.Add(-g.window)
	for key, ts := range g.seen {
		if ts.Before(horizon) {
			delete(g.seen, key)
		}
	}
}

func seenKey(ts time.Time, nonce []byte) uint64 {
	var buf [timestampSize]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ts.UnixMilli()))

	h := xxhash.New()
	_, _ = h.Write(nonce)
	_, _ = h.Write(buf[:])
	return h.Sum64()
}
