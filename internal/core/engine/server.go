package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/wsbridge/wsbridge/internal/core/crypto"
	"github.com/wsbridge/wsbridge/internal/core/observability/log"
)

// Server accepts inbound WebSocket connections and wires each one to
// the registry, the heartbeat monitor, the message pipeline and the
// event dispatcher. Every connection runs isolated read/write/heartbeat
// goroutines; no failure on one connection touches the others.
type Server struct {
	settings   *settings
	pipe       *pipeline
	registry   *Registry
	dispatcher *Dispatcher
	lg         log.Log

	bindAddr string
	useTLS   bool
	certFile string
	keyFile  string

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader

	running int32
	wg      sync.WaitGroup
}

func newServer(cfg Config, st *settings, keys *keyStore, replay *crypto.ReplayGuard, d *Dispatcher, lg log.Log) *Server {
	lg = lg.With(log.String("component", "server"))
	return &Server{
		settings: st,
		pipe: &pipeline{
			settings: st,
			keys:     keys,
			replay:   replay,
			lg:       lg,
		},
		registry:   NewRegistry(cfg.MaxClients),
		dispatcher: d,
		lg:         lg,
		bindAddr:   cfg.BindAddr,
		useTLS:     cfg.UseTLS,
		certFile:   cfg.CertFile,
		keyFile:    cfg.KeyFile,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start binds the listener and begins accepting connections. Bind and
// TLS-material failures surface synchronously; afterwards the accept
// loop runs until Stop.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	var tlsConfig *tls.Config
	if s.useTLS {
		cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
		if err != nil {
			atomic.StoreInt32(&s.running, 0)
			return fmt.Errorf("%w: load TLS material: %v", ErrBindFailed, err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	ln, err := net.Listen("tcp", s.bindAddr)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		return fmt.Errorf("%w: %v", ErrBindFailed, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.httpServer = &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if serveErr := s.httpServer.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.lg.Error("serve loop exited", log.Error(serveErr))
		}
	}()

	s.lg.Info("server started",
		log.String("addr", ln.Addr().String()),
		log.Bool("tls", s.useTLS),
		log.Int("max_clients", s.settings.MaxClients()))
	return nil
}

// Addr returns the bound listener address, useful when binding to
// port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning reports whether the accept loop is live.
func (s *Server) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// handleUpgrade performs the WebSocket handshake and hands the
// connection to its isolated loops. A full registry refuses the
// connection and closes the socket immediately; no event is emitted.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.registry.Count() >= s.settings.MaxClients() {
		s.lg.Warn("refusing connection: registry full",
			log.String("remote", r.RemoteAddr),
			log.Int("max_clients", s.settings.MaxClients()))
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.lg.Warn("websocket upgrade failed", log.String("remote", r.RemoteAddr), log.Error(err))
		return
	}

	c := newConn(ws, s.settings.QueueSize(), s.lg)
	id, err := s.registry.Insert(c)
	if err != nil {
		// Raced past the pre-check while at capacity.
		s.lg.Warn("refusing connection: registry full", log.String("remote", r.RemoteAddr))
		_ = ws.Close()
		return
	}

	s.lg.Info("client connected",
		log.Uint64("conn_id", id),
		log.String("remote", ws.RemoteAddr().String()))
	s.dispatcher.Dispatch(Event{
		Type:     EventConnect,
		Source:   SourceServer,
		ClientID: strconv.FormatUint(id, 10),
	})

	go c.writeLoop()
	startHeartbeat(c, s.settings.HeartbeatInterval, s.settings.ReadTimeout, s.lg)

	s.wg.Add(1)
	go s.readLoop(c)
}

// readLoop consumes inbound frames until the transport closes. It owns
// the disconnect path: on exit the connection leaves the registry and
// exactly one disconnect event is dispatched.
func (s *Server) readLoop(c *Conn) {
	idStr := strconv.FormatUint(c.ID(), 10)

	// Registered first so it runs last: Stop's wg.Wait returns only
	// after the whole disconnect path below has finished.
	defer s.wg.Done()
	defer func() {
		c.close(CloseReasonRemote)
		s.registry.Remove(c.ID())

		reason := c.reason()
		s.lg.Info("client disconnected",
			log.Uint64("conn_id", c.ID()),
			log.String("reason", reason))
		s.dispatcher.Dispatch(Event{
			Type:     EventDisconnect,
			Source:   SourceServer,
			ClientID: idStr,
		})
	}()

	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})
	c.ws.SetPingHandler(func(appData string) error {
		c.touch()
		return c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				c.State() == StateOpen {
				s.lg.Debug("read failed", log.Uint64("conn_id", c.ID()), log.Error(err))
			}
			return
		}

		c.touch()
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		plain, ok := s.pipe.inbound(string(data), idStr)
		if !ok {
			continue
		}

		s.dispatcher.Dispatch(Event{
			Type:     EventMessage,
			Source:   SourceServer,
			ClientID: idStr,
			Message:  plain,
		})
	}
}

// Broadcast fans a message out to every registered connection.
// Encryption happens once; all server-side connections share the
// server's single key, so one ciphertext serves every recipient. A send
// failure on one connection never aborts delivery to the rest.
func (s *Server) Broadcast(text string) error {
	if !s.IsRunning() {
		return ErrServerNotRunning
	}

	payload, err := s.pipe.outbound(text)
	if err != nil {
		return err
	}

	for _, c := range s.registry.Snapshot() {
		if err := c.enqueue(payload); err != nil {
			s.lg.Warn("broadcast delivery failed",
				log.Uint64("conn_id", c.ID()), log.Error(err))
			if errors.Is(err, ErrQueueFull) {
				c.close(CloseReasonOverflow)
			}
		}
	}
	return nil
}

// SendTo delivers a message to one connection by registry id.
func (s *Server) SendTo(id uint64, text string) error {
	c, ok := s.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrClientNotFound, id)
	}

	payload, err := s.pipe.outbound(text)
	if err != nil {
		return err
	}

	if err = c.enqueue(payload); err != nil {
		if errors.Is(err, ErrQueueFull) {
			c.close(CloseReasonOverflow)
		}
		return err
	}
	return nil
}

// Count returns the number of registered connections.
func (s *Server) Count() int {
	return s.registry.Count()
}

// Stop closes the listener and force-closes every registered
// connection; each one runs its normal disconnect path before Stop
// returns.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.lg.Warn("http shutdown", log.Error(err))
	}

	g, _ := errgroup.WithContext(ctx)
	for _, c := range s.registry.Snapshot() {
		c := c
		g.Go(func() error {
			c.close(CloseReasonLocal)
			return nil
		})
	}
	_ = g.Wait()

	s.wg.Wait()
	s.lg.Info("server stopped")
	return nil
}
