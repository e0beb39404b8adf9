// Package engine implements the stateful WebSocket communication
// engine: server and client roles, connection lifecycle, heartbeats,
// the encrypted message pipeline and the unified event contract.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wsbridge/wsbridge/internal/core/crypto"
	"github.com/wsbridge/wsbridge/internal/core/observability/log"
)

// Service is the explicit context binding configuration, encryption
// keys, the event dispatcher and the optional server/client engines.
// Components take a reference to it instead of reading ambient globals,
// so multiple independent instances can coexist in one process.
type Service struct {
	id     string
	lg     *log.Logger
	cfg    Config
	st     *settings
	disp   *Dispatcher
	logNum int // external 0-3 level as last set

	serverKeys   keyStore
	clientKeys   keyStore
	serverReplay *crypto.ReplayGuard
	clientReplay *crypto.ReplayGuard

	mu     sync.Mutex
	server *Server
	client *Client
}

// NewService validates the configuration and builds a ready-to-start
// context around the given sink. A nil sink is allowed; events are then
// dropped.
func NewService(cfg Config, sink Sink) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	logger := log.New(log.LevelInfo)
	lg := logger.With(log.String("service_id", id))

	s := &Service{
		id:           id,
		lg:           logger,
		cfg:          cfg,
		st:           newSettings(cfg),
		disp:         NewDispatcher(sink, lg),
		logNum:       int(log.LevelInfo),
		serverReplay: crypto.NewReplayGuard(cfg.ReplayWindow),
		clientReplay: crypto.NewReplayGuard(cfg.ReplayWindow),
	}
	s.server = newServer(cfg, s.st, &s.serverKeys, s.serverReplay, s.disp, lg)
	s.client = newClient(cfg, s.st, &s.clientKeys, s.clientReplay, s.disp, lg)
	return s, nil
}

// ID returns the service instance id stamped on its log lines.
func (s *Service) ID() string { return s.id }

// Config returns a copy of the construction-time configuration.
func (s *Service) Config() Config { return s.cfg }

// --- runtime tunables -------------------------------------------------

// SetMaxClients adjusts the server capacity. Existing connections are
// never evicted; a cap below the current count only refuses newcomers.
func (s *Service) SetMaxClients(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: max_clients must be positive, got %d", ErrInvalidConfig, n)
	}
	s.st.maxClients.Store(int64(n))
	s.server.registry.SetCapacity(n)
	return nil
}

func (s *Service) MaxClients() int { return s.st.MaxClients() }

func (s *Service) SetHeartbeatInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: heartbeat_interval must be positive, got %s", ErrInvalidConfig, d)
	}
	s.st.heartbeatInterval.Store(int64(d))
	return nil
}

func (s *Service) HeartbeatInterval() time.Duration { return s.st.HeartbeatInterval() }

func (s *Service) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: read_timeout must be positive, got %s", ErrInvalidConfig, d)
	}
	s.st.readTimeout.Store(int64(d))
	return nil
}

func (s *Service) ReadTimeout() time.Duration { return s.st.ReadTimeout() }

// SetReplayWindow updates both replay guards. Negative input is
// interpreted symmetrically.
func (s *Service) SetReplayWindow(d time.Duration) {
	s.serverReplay.SetWindow(d)
	s.clientReplay.SetWindow(d)
}

func (s *Service) ReplayWindow() time.Duration { return s.serverReplay.Window() }

// SetLogLevel maps the external numeric level (0=Error, 1=Warn,
// 2=Info, 3=Debug) onto the logger.
func (s *Service) SetLogLevel(n int) {
	s.mu.Lock()
	s.logNum = int(log.LevelFromInt(n))
	s.mu.Unlock()
	s.lg.SetLevel(log.LevelFromInt(n))
}

func (s *Service) LogLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logNum
}

// SetLogFile tees engine logs into an append-only file at path. An
// empty path removes the file sink.
func (s *Service) SetLogFile(path string) {
	s.lg.SetOutputFile(path)
}

// --- key management ---------------------------------------------------

// SetServerKey installs the server-side encryption key. Anything other
// than exactly 32 raw bytes is rejected and the previous key kept.
func (s *Service) SetServerKey(key []byte) error {
	return s.serverKeys.set(key)
}

// SetClientKey installs the client-side encryption key; same contract
// as SetServerKey. The two sides are independent.
func (s *Service) SetClientKey(key []byte) error {
	return s.clientKeys.set(key)
}

// EnableEncryption toggles the end-to-end encryption pipeline for both
// roles.
func (s *Service) EnableEncryption(enabled bool) {
	s.st.encryption.Store(enabled)
	s.lg.Info("encryption toggled", log.Bool("enabled", enabled))
}

func (s *Service) EncryptionEnabled() bool { return s.st.EncryptionEnabled() }

// --- lifecycle --------------------------------------------------------

// StartServer binds the configured listener and begins accepting
// connections.
func (s *Service) StartServer(ctx context.Context) error {
	return s.server.Start(ctx)
}

// StopServer closes the listener and every registered connection.
func (s *Service) StopServer(ctx context.Context) error {
	return s.server.Stop(ctx)
}

// ServerRunning reports whether the server engine is accepting.
func (s *Service) ServerRunning() bool { return s.server.IsRunning() }

// ServerAddr returns the bound address once the server started.
func (s *Service) ServerAddr() string {
	if addr := s.server.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Connect establishes the client connection.
func (s *Service) Connect(ctx context.Context, url string, enableReconnect bool) error {
	return s.client.Connect(ctx, url, enableReconnect)
}

// Disconnect stops the client, cancelling any pending reconnect.
func (s *Service) Disconnect() {
	s.client.Stop()
}

// Stop tears the whole context down: client first, then server.
func (s *Service) Stop(ctx context.Context) {
	s.client.Stop()
	if s.server.IsRunning() {
		_ = s.server.Stop(ctx)
	}
}

// --- messaging --------------------------------------------------------

// Broadcast delivers a message to every server-side connection.
func (s *Service) Broadcast(text string) error {
	return s.server.Broadcast(text)
}

// SendTo delivers a message to one server-side connection by id.
func (s *Service) SendTo(id uint64, text string) error {
	return s.server.SendTo(id, text)
}

// Send delivers a message from the client to its server.
func (s *Service) Send(text string) error {
	return s.client.Send(text)
}

// ClientConnected reports the client connection status.
func (s *Service) ClientConnected() bool { return s.client.IsConnected() }

// ClientState returns the client state machine position.
func (s *Service) ClientState() ClientState { return s.client.State() }

// ConnectionCount returns the number of server-side connections.
func (s *Service) ConnectionCount() int { return s.server.Count() }

// --- manual codec access ----------------------------------------------

// EncryptText seals a text message into a Base64 ciphertext using the
// client key when configured, falling back to the server key. With
// encryption disabled the text passes through unchanged.
func (s *Service) EncryptText(text string) (string, error) {
	if !s.st.EncryptionEnabled() {
		s.lg.Warn("manual encrypt with encryption disabled; returning plaintext")
		return text, nil
	}
	codec := s.manualCodec()
	if codec == nil {
		return "", ErrKeyNotConfigured
	}
	return codec.SealText(text)
}

// DecryptText opens a Base64 ciphertext produced by EncryptText or a
// peer engine, trying the client key first and the server key second.
// No replay state is recorded; replay protection applies to connection
// traffic only.
func (s *Service) DecryptText(encoded string) (string, error) {
	if !s.st.EncryptionEnabled() {
		s.lg.Warn("manual decrypt with encryption disabled; returning input")
		return encoded, nil
	}

	var lastErr error
	for _, codec := range []*crypto.Codec{s.clientKeys.get(), s.serverKeys.get()} {
		if codec == nil {
			continue
		}
		env, err := codec.OpenText(encoded)
		if err == nil {
			return string(env.Plaintext), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return "", ErrKeyNotConfigured
	}
	return "", lastErr
}

func (s *Service) manualCodec() *crypto.Codec {
	if codec := s.clientKeys.get(); codec != nil {
		return codec
	}
	return s.serverKeys.get()
}
