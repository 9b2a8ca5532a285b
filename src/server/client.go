package server

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

var (
	errClientClosed = errors.New("client closed")
	errSendBuffer   = errors.New("client send buffer full")
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client is one websocket subscriber. It implements interfaces.IConnection.
type Client struct {
	id     string
	hub    *FastAPIServer
	symbol string
	conn   *websocket.Conn
	send   chan interface{}
	done   chan struct{}
	once   sync.Once
}

func (c *Client) ID() string { return c.id }

// -----------------------------------------------------------------------------

// Send queues msg for the write pump. A full buffer counts as a failed send so
// a slow consumer is pruned instead of stalling the pipeline.
func (c *Client) Send(msg interface{}) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return errSendBuffer
	}
}

// -----------------------------------------------------------------------------

// Close asks the write pump to flush what is queued and close the socket.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// -----------------------------------------------------------------------------
// readPump - watches the connection; its exit detaches the client
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.hub.streams.Detach(c.symbol, c)
		c.hub.unregister(c)
		c.hub.Logger.Info("Client %s disconnected from %s", c.id, c.symbol)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// inbound messages carry no commands; reading keeps pong handling alive
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error: %v", err)
			}
			return
		}
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.Logger.Info("Write error: %v", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// -----------------------------------------------------------------------------

// flush writes whatever is still queued, e.g. a final stream error.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		default:
			return
		}
	}
}
