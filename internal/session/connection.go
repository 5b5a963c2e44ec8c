// ABOUTME: WebSocket connection with a buffered outbound queue and dedicated writer
// ABOUTME: Implements Conn on top of gorilla/websocket with ping/pong keepalive

package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Close codes sent to clients.
const (
	CloseGoingAway       = websocket.CloseGoingAway
	CloseSessionReplaced = 4001
)

// ErrConnectionClosed is returned by Send after the connection is closed.
var ErrConnectionClosed = errors.New("connection closed")

// ErrSendBufferFull is returned by Send when the client cannot keep up. The
// connection is closed as a side effect.
var ErrSendBufferFull = errors.New("send buffer full")

// Options tunes keepalive and buffering. Zero values fall back to defaults.
type Options struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	SendBuffer int
	// MaxMessageSize bounds inbound frames in bytes.
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 128
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	return o
}

// pingPeriod must be shorter than PongWait so the peer has time to answer.
func (o Options) pingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

// Connection wraps a websocket and coordinates outbound writes via a buffered channel.
// It is safe for concurrent use.
type Connection struct {
	id     string
	userID string

	ws     *websocket.Conn
	opts   Options
	send   chan []byte
	once   sync.Once
	closed chan struct{}
}

var _ Conn = (*Connection)(nil)

// NewConnection constructs a Connection for the given user. Call Start to
// launch the writer.
func NewConnection(userID string, ws *websocket.Conn, opts Options) *Connection {
	opts = opts.withDefaults()
	return &Connection{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
		closed: make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Connection) ID() string { return c.id }

// UserID returns the owning user's id.
func (c *Connection) UserID() string { return c.userID }

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.closed }

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. If the client is slow and the buffer is full,
// the connection is closed to keep backpressure bounded.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
		return ErrSendBufferFull
	}
}

// Close sends a close frame with code and reason, then tears down the socket.
// Subsequent calls are no-ops.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(c.opts.WriteWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

// ReadLoop reads text frames and hands each to handle until the peer goes
// away or the connection is closed. It must run on a single goroutine.
func (c *Connection) ReadLoop(handle func(payload []byte)) error {
	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		return err
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		msgType, payload, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handle(payload)
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseInternalServerErr, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
