package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayGuard_AcceptThenDuplicate(t *testing.T) {
	guard := NewReplayGuard(300 * time.Second)

	ts := time.Now()
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	require.NoError(t, guard.Accept(ts, nonce))
	assert.ErrorIs(t, guard.Accept(ts, nonce), ErrDuplicateMessage)
}

func TestReplayGuard_StaleTimestamp(t *testing.T) {
	guard := NewReplayGuard(300 * time.Second)

	old := time.Now().Add(-301 * time.Second)
	err := guard.Accept(old, []byte("nonce-000001"))
	assert.ErrorIs(t, err, ErrStaleTimestamp, "stale even on first submission")

	future := time.Now().Add(301 * time.Second)
	err = guard.Accept(future, []byte("nonce-000002"))
	assert.ErrorIs(t, err, ErrStaleTimestamp, "window is symmetric")
}

func TestReplayGuard_DistinctNoncesSameTimestamp(t *testing.T) {
	guard := NewReplayGuard(300 * time.Second)

	ts := time.Now()
	require.NoError(t, guard.Accept(ts, []byte("nonce-aaaaaa")))
	require.NoError(t, guard.Accept(ts, []byte("nonce-bbbbbb")))
}

func TestReplayGuard_EvictsOutsideWindow(t *testing.T) {
	guard := NewReplayGuard(10 * time.Second)

	base := time.Now()
	guard.now = func() time.Time { return base }

	require.NoError(t, guard.Accept(base, []byte("nonce-000001")))
	require.NoError(t, guard.Accept(base.Add(time.Second), []byte("nonce-000002")))
	assert.Equal(t, 2, guard.Len())

	// Slide the clock: the first entry falls out of the retained window
	// and the pair becomes acceptable again if its timestamp were fresh,
	// but a replay with the original old timestamp is stale anyway.
	guard.now = func() time.Time { return base.Add(15 * time.Second) }

	require.NoError(t, guard.Accept(base.Add(14*time.Second), []byte("nonce-000003")))
	assert.Equal(t, 2, guard.Len(), "entries older than the window are pruned")
}

func TestReplayGuard_NegativeWindowNormalized(t *testing.T) {
	guard := NewReplayGuard(-30 * time.Second)
	assert.Equal(t, 30*time.Second, guard.Window())

	guard.SetWindow(-10 * time.Second)
	assert.Equal(t, 10*time.Second, guard.Window())
}

func TestReplayGuard_ZeroWindow(t *testing.T) {
	guard := NewReplayGuard(0)

	base := time.Now()
	guard.now = func() time.Time { return base }

	require.NoError(t, guard.Accept(base, []byte("nonce-000001")))
	assert.ErrorIs(t, guard.Accept(base.Add(time.Millisecond), []byte("nonce-000002")), ErrStaleTimestamp)
}

func TestReplayGuard_EndToEndWithCodec(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)
	guard := NewReplayGuard(300 * time.Second)

	encoded, err := codec.SealText("Hello World")
	require.NoError(t, err)

	env, err := codec.OpenText(encoded)
	require.NoError(t, err)
	require.NoError(t, guard.Accept(env.Timestamp, env.Nonce[:]))
	assert.Equal(t, "Hello World", string(env.Plaintext))

	// Replaying the identical ciphertext yields a rejection, not plaintext.
	env, err = codec.OpenText(encoded)
	require.NoError(t, err)
	assert.ErrorIs(t, guard.Accept(env.Timestamp, env.Nonce[:]), ErrDuplicateMessage)
}
