// Package wsclient keeps one logical push connection to the notification
// server alive: it authenticates every new socket, reconnects with
// exponential backoff after unexpected closes and dispatches frames by type.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/groupbuy-app/protocol"
	"github.com/yeremiapane/groupbuy-app/utils"
)

var ErrNotConnected = errors.New("wsclient: not connected")

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// Dialer opens the websocket. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

type Handler func(data json.RawMessage)

type Option func(*Client)

func WithDialer(d Dialer) Option { return func(c *Client) { c.dialer = d } }

// WithBackoff sets the first reconnect delay and the cap the doubling delay
// never exceeds.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		c.backoff.InitialInterval = initial
		c.backoff.MaxInterval = max
	}
}

// WithMaxAttempts bounds consecutive failed reconnects; zero means unlimited.
func WithMaxAttempts(n int) Option { return func(c *Client) { c.maxAttempts = n } }

// WithOnConnect registers fn to run after every successful (re)connect.
func WithOnConnect(fn func()) Option { return func(c *Client) { c.onConnect = fn } }

type Client struct {
	url   string
	token string

	ctx         context.Context
	dialer      Dialer
	backoff     *backoff.ExponentialBackOff
	maxAttempts int
	onConnect   func()
	log         *logrus.Entry

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	timer    *time.Timer
	attempts int
	epoch    uint64 // bumped by Disconnect; stale dials and read loops compare against it
	closed   bool

	writeMu sync.Mutex

	hmu      sync.RWMutex
	handlers map[string]Handler
}

// New returns a disconnected client. Cancelling ctx disposes it: the pending
// reconnect timer is stopped and the socket closed.
func New(ctx context.Context, url, token string, opts ...Option) *Client {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second

	c := &Client{
		url:         url,
		token:       token,
		ctx:         ctx,
		dialer:      websocket.DefaultDialer,
		backoff:     b,
		maxAttempts: 10,
		handlers:    make(map[string]Handler),
		log:         utils.InfoLogger.WithField("component", "wsclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.backoff.Reset()

	context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.Disconnect()
	})
	return c
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// On installs the handler for a frame type, replacing any previous one.
func (c *Client) On(typ string, h Handler) {
	c.hmu.Lock()
	c.handlers[typ] = h
	c.hmu.Unlock()
}

func (c *Client) Off(typ string) {
	c.hmu.Lock()
	delete(c.handlers, typ)
	c.hmu.Unlock()
}

// Connect starts connecting in the background with a fresh reconnect budget.
// It does nothing unless the client is Disconnected.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state != Disconnected {
		return
	}
	c.stopTimer()
	c.attempts = 0
	c.backoff.Reset()
	c.state = Connecting
	go c.dial(c.epoch)
}

// Disconnect closes the socket and cancels any pending reconnect. The client
// stays Disconnected until Connect is called again.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.epoch++
	c.stopTimer()
	conn := c.conn
	c.conn = nil
	c.state = Disconnected
	c.attempts = 0
	c.backoff.Reset()
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
}

// Send writes one {type,data} frame on the current socket.
func (c *Client) Send(typ string, data interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	frame, err := protocol.Encode(typ, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) dial(epoch uint64) {
	conn, _, err := c.dialer.DialContext(c.ctx, c.url, nil)
	if err == nil {
		err = c.authenticate(conn)
		if err != nil {
			_ = conn.Close()
		}
	}

	c.mu.Lock()
	if epoch != c.epoch || c.closed {
		c.mu.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.state = Disconnected
		c.log.WithError(err).Warn("websocket connect failed")
		c.scheduleReconnect()
		c.mu.Unlock()
		return
	}
	c.conn = conn
	c.state = Connected
	c.attempts = 0
	c.backoff.Reset()
	onConnect := c.onConnect
	c.mu.Unlock()

	go c.readLoop(conn, epoch)
	if onConnect != nil {
		onConnect()
	}
}

func (c *Client) authenticate(conn *websocket.Conn) error {
	frame, err := protocol.Encode(protocol.TypeAuth, protocol.AuthData{Token: c.token})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop(conn *websocket.Conn, epoch uint64) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, epoch, err)
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			c.log.WithError(err).Debug("ignoring malformed frame")
			continue
		}
		c.hmu.RLock()
		h := c.handlers[env.Type]
		c.hmu.RUnlock()
		if h != nil {
			h(env.Data)
		}
	}
}

func (c *Client) handleClose(conn *websocket.Conn, epoch uint64, cause error) {
	_ = conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.conn != conn {
		return
	}
	c.conn = nil
	c.state = Disconnected
	if c.closed {
		return
	}
	c.log.WithError(cause).Info("websocket closed, reconnecting")
	c.scheduleReconnect()
}

// scheduleReconnect must be called with mu held.
func (c *Client) scheduleReconnect() {
	if c.maxAttempts > 0 && c.attempts >= c.maxAttempts {
		c.log.WithField("attempts", c.attempts).Error("giving up reconnecting")
		return
	}
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		return
	}
	c.attempts++
	epoch := c.epoch
	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.timer = nil
		if epoch != c.epoch || c.closed || c.state != Disconnected {
			return
		}
		c.state = Connecting
		go c.dial(epoch)
	})
}

func (c *Client) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Attempts reports consecutive reconnect attempts since the last success.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}
