package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/scrapinium/liveclient/internal/config"
	"github.com/scrapinium/liveclient/internal/protocol"
)

// Connection parameters
const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	closeGracePeriod = 5 * time.Second
	frameQueueSize   = 256
)

// ErrNotConnected is returned by Send while the push channel is down.
var ErrNotConnected = errors.New("push channel not connected")

// frame is a raw inbound message tagged with the connection epoch it arrived
// on. Frames from a previous epoch are dropped by the dispatcher.
type frame struct {
	epoch uint64
	raw   []byte
}

// Conn owns the push-channel lifecycle: dialing, keepalive, reconnection
// with linear backoff, and degraded mode once the retry budget is spent.
type Conn struct {
	cfg      *config.Config
	log      zerolog.Logger
	policy   ReconnectPolicy
	clientID string

	frames    chan frame
	reconnect chan struct{}

	// Hooks, wired by the Client before Connect.
	onState    func(ConnState)
	onUp       func(epoch uint64)
	onDegraded func()

	mu       sync.Mutex
	wmu      sync.Mutex
	state    ConnState
	failures int
	epoch    uint64
	ws       *websocket.Conn
	started  bool
}

// NewConn creates a connection manager. Connect must be called to start it.
func NewConn(cfg *config.Config, log zerolog.Logger, clientID string) *Conn {
	return &Conn{
		cfg:      cfg,
		log:      log.With().Str("component", "conn").Logger(),
		clientID: clientID,
		policy: ReconnectPolicy{
			Base:        cfg.BackoffBase,
			Max:         cfg.BackoffMax,
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
		frames:    make(chan frame, frameQueueSize),
		reconnect: make(chan struct{}, 1),
	}
}

// Connect starts the connection loop. It is idempotent: calling it while the
// loop is already running is a no-op. The loop stops when ctx is cancelled.
func (c *Conn) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run(ctx)
}

// Reconnect requests a manual reconnect out of degraded mode. Outside of
// degraded mode it is a no-op.
func (c *Conn) Reconnect() {
	if c.State() != StateDegraded {
		return
	}
	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

// run dials, reads until disconnect, and retries with linear backoff. After
// MaxAttempts consecutive dial failures it parks in degraded mode until a
// manual reconnect arrives.
func (c *Conn) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(StateConnecting)
		ws, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.mu.Lock()
			c.failures++
			failures := c.failures
			c.mu.Unlock()

			if c.policy.Exhausted(failures) {
				c.log.Error().Err(err).Int("attempts", failures).Msg("retry budget spent, entering degraded mode")
				c.setState(StateDegraded)
				if c.onDegraded != nil {
					c.onDegraded()
				}
				if !c.awaitManualReconnect(ctx) {
					return
				}
				continue
			}

			delay := c.policy.Delay(failures)
			c.log.Error().Err(err).Int("attempt", failures).Dur("backoff", delay).Msg("connection failed, retrying")
			if !c.sleep(ctx, delay) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.failures = 0
		c.epoch++
		epoch := c.epoch
		c.ws = ws
		c.mu.Unlock()

		c.setState(StateConnected)
		c.log.Info().Uint64("epoch", epoch).Msg("push channel connected")
		if c.onUp != nil {
			c.onUp(epoch)
		}

		pingCtx, stopPing := context.WithCancel(ctx)
		go c.pingLoop(pingCtx)

		c.readLoop(ctx, ws, epoch)
		stopPing()

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			return
		}
		c.log.Warn().Uint64("epoch", epoch).Msg("push channel lost")
		if !c.sleep(ctx, c.policy.Delay(1)) {
			return
		}
	}
}

// dial establishes the WebSocket connection.
func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	c.log.Debug().Str("url", c.cfg.ServerURL).Msg("connecting")

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	header.Set("X-Client-ID", c.clientID)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, c.cfg.ServerURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			c.log.Error().Msg("authentication failed: 401 Unauthorized")
		}
		return nil, err
	}
	return ws, nil
}

// readLoop reads frames until the connection dies. Every inbound message
// counts as liveness and pushes the read deadline out; a silent connection
// times out and is torn down.
func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn, epoch uint64) {
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	for {
		if ctx.Err() != nil {
			return
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error().Err(err).Msg("read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))

		select {
		case c.frames <- frame{epoch: epoch, raw: data}:
		default:
			c.log.Warn().Msg("frame queue full, dropping message")
		}
	}
}

// pingLoop sends application-level pings at the keepalive period.
func (c *Conn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Send(protocol.Ping()); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// Send writes a control message to the server.
func (c *Conn) Send(msg protocol.Outbound) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// Frames returns the channel of epoch-tagged inbound frames.
func (c *Conn) Frames() <-chan frame {
	return c.frames
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the push channel is up.
func (c *Conn) IsConnected() bool {
	return c.State() == StateConnected
}

// CurrentEpoch returns the epoch of the most recent successful connection.
func (c *Conn) CurrentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Close closes the connection gracefully. The connection loop itself stops
// through context cancellation.
func (c *Conn) Close() error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return nil
	}

	deadline := time.Now().Add(closeGracePeriod)
	err := ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
		deadline,
	)
	if err != nil {
		ws.Close()
		return err
	}

	// Wait briefly for close acknowledgment
	time.Sleep(100 * time.Millisecond)
	return ws.Close()
}

// setState records a transition and invokes the state hook outside the lock.
func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = s
	c.mu.Unlock()

	c.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("state change")
	if c.onState != nil {
		c.onState(s)
	}
}

// awaitManualReconnect blocks until Reconnect is called or ctx is cancelled.
// It returns false on cancellation.
func (c *Conn) awaitManualReconnect(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.reconnect:
		c.mu.Lock()
		c.failures = 0
		c.mu.Unlock()
		c.log.Info().Msg("manual reconnect requested")
		return true
	}
}

// sleep waits for d or until ctx is cancelled, returning false on
// cancellation.
func (c *Conn) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
