// ABOUTME: Represents one live WebSocket connection with a buffered outbound queue
// ABOUTME: Runs read/write pumps and guarantees the send channel closes exactly once

package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only receive;
	// inbound frames are limited to control-sized payloads.
	maxMessageSize = 4096

	// Outbound queue depth per client.
	sendBufferSize = 64
)

// Client wraps a single WebSocket connection registered with a Hub.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewClient wraps an upgraded WebSocket connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// trySend queues data for delivery. Returns false if the client is
// closed or its buffer is full; the message is dropped in either case.
func (c *Client) trySend(data []byte) (sent bool) {
	// Close may race the channel send; a closed channel panics rather
	// than blocks, so recover and report the message as dropped.
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close shuts the send channel exactly once. The write pump exits when
// the channel drains.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}

// Run services the connection until the peer disconnects or the hub
// removes the client. It blocks; callers run it from the connection's
// HTTP handler goroutine.
func (c *Client) Run(h *Hub) {
	go c.writePump()
	c.readPump(h)
}

// readPump discards inbound frames and detects peer disconnects. The
// relay is one-directional; clients only listen.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.Remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains the send queue to the peer and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
