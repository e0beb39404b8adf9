package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wsbridge/wsbridge/internal/core/crypto"
	"github.com/wsbridge/wsbridge/internal/core/observability/log"
)

// ClientState is the client connection state machine.
type ClientState int32

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

const clientHandshakeTimeout = 15 * time.Second

// Client owns the single outbound connection. On loss of an established
// connection it hands control to the ReconnectSupervisor when auto
// reconnect was requested; an initial failed connect never retries.
type Client struct {
	settings   *settings
	pipe       *pipeline
	dispatcher *Dispatcher
	lg         log.Log

	insecureSkipVerify bool

	state atomic.Int32

	mu            sync.Mutex
	conn          *Conn
	url           string
	autoReconnect bool
	stopped       bool

	supervisor *ReconnectSupervisor
}

func newClient(cfg Config, st *settings, keys *keyStore, replay *crypto.ReplayGuard, d *Dispatcher, lg log.Log) *Client {
	lg = lg.With(log.String("component", "client"))
	c := &Client{
		settings: st,
		pipe: &pipeline{
			settings: st,
			keys:     keys,
			replay:   replay,
			lg:       lg,
		},
		dispatcher:         d,
		lg:                 lg,
		insecureSkipVerify: cfg.InsecureSkipVerify,
	}
	c.supervisor = NewReconnectSupervisor(st.ReconnectDelay, c.redial, lg)
	return c
}

// State returns the current state machine position.
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// IsConnected reports whether the connection is established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect performs the WebSocket (and TLS, for wss://) handshake. On
// failure it returns the error without entering a retry loop: retry is
// only triggered by losing an established connection.
func (c *Client) Connect(ctx context.Context, rawURL string, enableReconnect bool) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("%w: invalid url %q", ErrConnectFailed, rawURL)
	}

	c.mu.Lock()
	c.url = rawURL
	c.autoReconnect = enableReconnect
	c.stopped = false
	c.mu.Unlock()

	ws, err := c.dial(ctx, rawURL)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	if !c.establish(ws) {
		return fmt.Errorf("%w: stopped during connect", ErrConnectFailed)
	}
	return nil
}

func (c *Client) dial(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: clientHandshakeTimeout,
	}
	if c.insecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	ws, _, err := dialer.DialContext(ctx, rawURL, nil)
	return ws, err
}

// establish adopts a freshly handshaken transport: Connected state,
// connect event, and the read/write/heartbeat loops. The stopped check
// and the adoption happen under one mutex hold, so a Stop racing the
// handshake either sees the adopted connection and closes it, or wins
// here and the socket is discarded without any event.
func (c *Client) establish(ws *websocket.Conn) bool {
	conn := newConn(ws, c.settings.QueueSize(), c.lg)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		_ = ws.Close()
		c.state.Store(int32(StateDisconnected))
		return false
	}
	c.conn = conn
	c.state.Store(int32(StateConnected))
	c.mu.Unlock()

	c.lg.Info("connected", log.String("remote", ws.RemoteAddr().String()))
	c.dispatcher.Dispatch(Event{
		Type:   EventConnect,
		Source: SourceClient,
	})

	go conn.writeLoop()
	startHeartbeat(conn, c.settings.HeartbeatInterval, c.settings.ReadTimeout, c.lg)
	go c.readLoop(conn)
	return true
}

// readLoop mirrors the server's: every inbound frame refreshes
// activity, text frames run through the decrypt/replay pipeline, and
// loop exit owns the single disconnect event plus the reconnect
// decision.
func (c *Client) readLoop(conn *Conn) {
	defer func() {
		conn.close(CloseReasonRemote)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		reconnect := c.autoReconnect && !c.stopped
		c.mu.Unlock()

		c.lg.Info("disconnected", log.String("reason", conn.reason()))
		c.dispatcher.Dispatch(Event{
			Type:   EventDisconnect,
			Source: SourceClient,
		})

		if reconnect {
			c.state.Store(int32(StateReconnecting))
			c.supervisor.Schedule()
		} else {
			c.state.Store(int32(StateDisconnected))
		}
	}()

	conn.ws.SetPongHandler(func(string) error {
		conn.touch()
		return nil
	})
	conn.ws.SetPingHandler(func(appData string) error {
		conn.touch()
		return conn.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
	})

	for {
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		conn.touch()
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		plain, ok := c.pipe.inbound(string(data), "server")
		if !ok {
			continue
		}

		c.dispatcher.Dispatch(Event{
			Type:    EventMessage,
			Source:  SourceClient,
			Message: plain,
		})
	}
}

// redial is one supervisor-driven reconnect attempt.
func (c *Client) redial(ctx context.Context) error {
	c.mu.Lock()
	rawURL := c.url
	stopped := c.stopped
	c.mu.Unlock()

	if stopped {
		return ErrNotConnected
	}

	c.state.Store(int32(StateConnecting))
	ws, err := c.dial(ctx, rawURL)
	if err != nil {
		// Stop may have landed while the dial was in flight; it owns
		// the state machine from that point on.
		c.mu.Lock()
		stopped = c.stopped
		c.mu.Unlock()
		if stopped {
			c.state.Store(int32(StateDisconnected))
			return ErrNotConnected
		}
		c.state.Store(int32(StateReconnecting))
		return err
	}

	if !c.establish(ws) {
		return ErrNotConnected
	}
	return nil
}

// Send encrypts (when enabled) and enqueues one message for the server.
func (c *Client) Send(text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || c.State() != StateConnected {
		return ErrNotConnected
	}

	payload, err := c.pipe.outbound(text)
	if err != nil {
		return err
	}

	if err = conn.enqueue(payload); err != nil {
		if errors.Is(err, ErrQueueFull) {
			conn.close(CloseReasonOverflow)
		}
		return err
	}
	return nil
}

// Stop cancels any pending reconnect attempt and closes the active
// connection. The state machine lands in Disconnected and stays there
// until an explicit new Connect call.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.autoReconnect = false
	conn := c.conn
	c.mu.Unlock()

	c.supervisor.Cancel()

	if conn != nil {
		conn.close(CloseReasonLocal)
	} else {
		c.state.Store(int32(StateDisconnected))
	}
}
