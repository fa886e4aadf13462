package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a websocket backed Session. Outgoing messages go through a
// buffered queue drained by WritePump, one writer per connection.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	pingInterval time.Duration
	writeWait    time.Duration
	readWait     time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps ws. buffer bounds the number of queued messages.
func NewConn(ws *websocket.Conn, buffer int, pingInterval, writeWait time.Duration) *Conn {
	if buffer <= 0 {
		buffer = 1
	}
	return &Conn{
		id:           NewID(),
		ws:           ws,
		send:         make(chan []byte, buffer),
		pingInterval: pingInterval,
		writeWait:    writeWait,
		done:         make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues data without blocking.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close shuts the connection down; pending messages are dropped.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// ReadMessage returns the next frame from the client. Any message counts as
// a sign of life for the read deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err == nil && c.readWait > 0 {
		//nolint:errcheck // Best-effort deadline reset
		c.ws.SetReadDeadline(time.Now().Add(c.readWait))
	}
	return data, err
}

// WritePump writes queued messages and keepalive pings until the connection
// closes or a write fails.
func (c *Conn) WritePump() {
	var tick <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.deadline()
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-tick:
			c.deadline()
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) deadline() {
	if c.writeWait > 0 {
		//nolint:errcheck // Best-effort deadline; write error caught by the caller
		c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	}
}

// KeepAlive arms a read deadline and extends it on every pong. A zero wait
// disables read deadlines.
func (c *Conn) KeepAlive(pongWait time.Duration) {
	if pongWait <= 0 || c.pingInterval <= 0 {
		return
	}
	wait := c.pingInterval + pongWait
	c.readWait = wait
	//nolint:errcheck // Best-effort deadline on connection setup
	c.ws.SetReadDeadline(time.Now().Add(wait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wait))
	})
}
