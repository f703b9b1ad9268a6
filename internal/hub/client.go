package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single delivery attempt so one stalled peer
	// cannot block its own queue forever.
	writeWait = 10 * time.Second

	// sendQueueSize is the per-client outbound buffer. A client that
	// falls this far behind is treated as dead and pruned.
	sendQueueSize = 32
)

// Client is one live push-channel session. It owns the websocket
// connection and a buffered outbound queue drained by a single writer
// goroutine, which keeps per-connection delivery FIFO.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient wraps an upgraded connection and starts its writer.
// The caller still has to Register it with the hub.
func NewClient(h *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
	go c.writePump()
	return c
}

// enqueue offers a message to the outbound queue without blocking.
// It reports false when the client is closed or its queue is full.
func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close shuts the outbound queue and the connection. Safe to call more
// than once and from any goroutine.
func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	c.conn.Close()
}

// writePump drains the outbound queue onto the wire. Any write error
// drops the client from the hub.
func (c *Client) writePump() {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.hub.Unregister(c)
			return
		}
	}
	// Queue closed by close(); say goodbye if the peer is still there.
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// ReadLoop consumes and discards inbound frames until the peer goes
// away, then drops the client from the hub. The push channel is
// one-directional; reads only keep the transport alive.
func (c *Client) ReadLoop() {
	defer c.hub.Unregister(c)
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}
