// Package transport maintains the push connection to the SLA WebSocket
// endpoint and fans validated events out to subscribers.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = errors.New("push transport not connected")

type Options struct {
	URL    string
	Header http.Header

	HandshakeTimeout time.Duration
	// Zero disables keepalive pings.
	PingInterval time.Duration

	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	// Zero retries forever.
	ReconnectAttempts int

	Dialer *websocket.Dialer
}

// Client owns at most one logical push connection. It is constructed once by
// the application root and shared by reference.
type Client struct {
	opts   Options
	dialer *websocket.Dialer
	logger *logging.Logger

	mu      sync.Mutex
	state   models.ConnectionState
	conn    *websocket.Conn
	closing bool
	retry   *time.Timer
	attempt int

	writeMu   sync.Mutex
	discarded atomic.Int64

	snapshots   subscribers[models.SLAUpdate]
	uptimes     subscribers[models.UptimeUpdate]
	alerts      subscribers[models.Alert]
	established subscribers[models.ConnectionMeta]
	states      subscribers[models.ConnectionState]
}

func New(opts Options, logger *logging.Logger) *Client {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectBase {
		opts.ReconnectMax = 30 * opts.ReconnectBase
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}
	return &Client{
		opts:   opts,
		dialer: dialer,
		logger: logger.Component("transport"),
		state:  models.StateDisconnected,
	}
}

func (c *Client) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Discarded counts inbound messages dropped as malformed.
func (c *Client) Discarded() int64 {
	return c.discarded.Load()
}

func (c *Client) SubscribeSnapshot(fn func(models.SLAUpdate)) func() { return c.snapshots.add(fn) }

func (c *Client) SubscribeUptime(fn func(models.UptimeUpdate)) func() { return c.uptimes.add(fn) }

func (c *Client) SubscribeAlert(fn func(models.Alert)) func() { return c.alerts.add(fn) }

func (c *Client) SubscribeEstablished(fn func(models.ConnectionMeta)) func() {
	return c.established.add(fn)
}

func (c *Client) SubscribeState(fn func(models.ConnectionState)) func() { return c.states.add(fn) }

// transitionLocked applies a state change if it is legal and reports
// whether it happened. Callers emit the change after unlocking.
func (c *Client) transitionLocked(to models.ConnectionState) bool {
	if !models.CanTransition(c.state, to) {
		return false
	}
	c.state = to
	return true
}

// Connect opens the push connection. It is a no-op while connecting or
// connected. A failed attempt leaves the client disconnected with a retry
// scheduled; the returned error is informational only.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != models.StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.closing = false
	c.stopRetryLocked()
	c.transitionLocked(models.StateConnecting)
	c.mu.Unlock()
	c.states.emit(models.StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	conn, resp, err := c.dialer.DialContext(dialCtx, c.opts.URL, c.opts.Header)
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		changed := c.transitionLocked(models.StateDisconnected)
		if !c.closing {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		if changed {
			c.states.emit(models.StateDisconnected)
		}
		c.logger.Debugf("Handshake with %s failed: %v", c.opts.URL, err)
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	c.mu.Lock()
	if c.closing || c.state != models.StateConnecting {
		// Disconnect won the race with the handshake.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.attempt = 0
	c.transitionLocked(models.StateConnected)
	c.mu.Unlock()

	c.logger.Infof("Connected to %s", c.opts.URL)
	c.states.emit(models.StateConnected)
	go c.readLoop(conn)
	return nil
}

// Disconnect tears the connection down and cancels pending reconnects. It is
// safe to call at any time.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	c.stopRetryLocked()
	conn := c.conn
	c.conn = nil
	changed := c.transitionLocked(models.StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
		c.logger.Infof("Disconnected from %s", c.opts.URL)
	}
	if changed {
		c.states.emit(models.StateDisconnected)
	}
}

// RequestUpdate asks the server to broadcast a fresh snapshot now. It
// reports false when there is no live connection or the send failed.
func (c *Client) RequestUpdate() bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == models.StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return false
	}
	if err := c.send(conn, models.Envelope{Type: models.MsgRequestUpdate}); err != nil {
		c.logger.Warnf("Request update failed: %v", err)
		return false
	}
	return true
}

func (c *Client) send(conn *websocket.Conn, env models.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}

func (c *Client) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// scheduleReconnectLocked arms an exponential backoff retry.
func (c *Client) scheduleReconnectLocked() {
	if c.opts.ReconnectAttempts > 0 && c.attempt >= c.opts.ReconnectAttempts {
		c.logger.Warnf("Giving up on %s after %d reconnect attempts", c.opts.URL, c.attempt)
		return
	}
	delay := c.opts.ReconnectBase << c.attempt
	if delay > c.opts.ReconnectMax || delay <= 0 {
		delay = c.opts.ReconnectMax
	}
	c.attempt++
	c.logger.Debugf("Reconnecting in %v (attempt %d)", delay, c.attempt)
	c.stopRetryLocked()
	c.retry = time.AfterFunc(delay, func() {
		_ = c.Connect(context.Background())
	})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	if c.opts.PingInterval > 0 {
		pongWait := 2 * c.opts.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go c.pingLoop(conn, done)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, err)
			return
		}
		if c.opts.PingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(2 * c.opts.PingInterval))
		}
		c.dispatch(data)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debugf("Ping failed: %v", err)
				conn.Close()
				return
			}
		}
	}
}

// handleDrop reacts to the read side failing. Drops of connections that were
// already replaced or closed on purpose are ignored.
func (c *Client) handleDrop(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	changed := c.transitionLocked(models.StateDisconnected)
	if !c.closing {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()
	conn.Close()

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Warnf("Connection to %s lost: %v", c.opts.URL, err)
	} else {
		c.logger.Infof("Connection to %s closed: %v", c.opts.URL, err)
	}
	if changed {
		c.states.emit(models.StateDisconnected)
	}
}

// dispatch decodes one frame and forwards it. Anything that fails validation
// is dropped here so subscribers only ever see complete values.
func (c *Client) dispatch(data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.discard("undecodable frame", err)
		return
	}

	switch env.Type {
	case models.MsgConnectionEstablished:
		var meta models.ConnectionMeta
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &meta); err != nil {
				c.discard(string(env.Type), err)
				return
			}
		}
		c.established.emit(meta)
	case models.MsgSLAUpdate:
		update, dropped, err := models.ParseSLAUpdate(env.Data)
		if err != nil {
			c.discard(string(env.Type), err)
			return
		}
		if dropped > 0 {
			c.logger.Warnf("Dropped %d malformed alerts from sla_update", dropped)
		}
		c.snapshots.emit(update)
	case models.MsgUptimeUpdate:
		u, err := models.ParseUptimeUpdate(env.Data)
		if err != nil {
			c.discard(string(env.Type), err)
			return
		}
		c.uptimes.emit(u)
	case models.MsgNewAlert:
		a, err := models.ParseAlert(env.Data)
		if err != nil {
			c.discard(string(env.Type), err)
			return
		}
		c.alerts.emit(a)
	default:
		c.discard("unknown message type", fmt.Errorf("%q", env.Type))
	}
}

func (c *Client) discard(what string, err error) {
	c.discarded.Add(1)
	c.logger.Warnf("Discarding %s: %v", what, err)
}
