package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yeremiapane/groupbuy-app/utils"
)

const writeWait = 10 * time.Second

// Client is a websocket Connection. Frames are queued on a buffered channel
// and written by WritePump, so Send never blocks the caller.
type Client struct {
	ID     string
	UserID uint

	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	pingPeriod time.Duration
}

func NewClient(conn *websocket.Conn, userID uint, buffer int, pingPeriod time.Duration) *Client {
	if buffer <= 0 {
		buffer = 32
	}
	return &Client{
		ID:         uuid.NewString(),
		UserID:     userID,
		conn:       conn,
		send:       make(chan []byte, buffer),
		done:       make(chan struct{}),
		pingPeriod: pingPeriod,
	}
}

func (c *Client) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which closes the socket. Safe to call repeatedly.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// WritePump owns all writes to the socket after the handshake. It returns when
// the client is closed or a write fails.
func (c *Client) WritePump() {
	var tick <-chan time.Time
	if c.pingPeriod > 0 {
		ticker := time.NewTicker(c.pingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.conn.Close()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				utils.ErrorLogger.WithField("user_id", c.UserID).Printf("websocket write failed: %v", err)
				c.Close()
				return
			}
		case <-tick:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
