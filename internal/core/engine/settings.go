package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wsbridge/wsbridge/internal/core/crypto"
)

// settings holds the runtime-tunable parameters shared between the
// service surface and the live engines. Values are read at each use, so
// setter calls take effect without restarting anything.
type settings struct {
	maxClients        atomic.Int64
	heartbeatInterval atomic.Int64 // nanoseconds
	readTimeout       atomic.Int64
	queueSize         atomic.Int64
	reconnectDelay    atomic.Int64
	encryption        atomic.Bool
}

func newSettings(cfg Config) *settings {
	s := &settings{}
	s.maxClients.Store(int64(cfg.MaxClients))
	s.heartbeatInterval.Store(int64(cfg.HeartbeatInterval))
	s.readTimeout.Store(int64(cfg.ReadTimeout))
	s.queueSize.Store(int64(cfg.QueueSize))
	s.reconnectDelay.Store(int64(cfg.ReconnectDelay))
	return s
}

func (s *settings) MaxClients() int                  { return int(s.maxClients.Load()) }
func (s *settings) HeartbeatInterval() time.Duration { return time.Duration(s.heartbeatInterval.Load()) }
func (s *settings) ReadTimeout() time.Duration       { return time.Duration(s.readTimeout.Load()) }
func (s *settings) QueueSize() int                   { return int(s.queueSize.Load()) }
func (s *settings) ReconnectDelay() time.Duration    { return time.Duration(s.reconnectDelay.Load()) }
func (s *settings) EncryptionEnabled() bool          { return s.encryption.Load() }

// keyStore holds one role's 32-byte encryption key as a ready codec.
// The server and client sides carry independent stores.
type keyStore struct {
	mu    sync.RWMutex
	codec *crypto.Codec
}

// set replaces the key. Invalid key lengths are rejected by the codec
// constructor and leave the store unchanged.
func (k *keyStore) set(key []byte) error {
	codec, err := crypto.NewCodec(key)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.codec = codec
	k.mu.Unlock()
	return nil
}

func (k *keyStore) get() *crypto.Codec {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.codec
}
