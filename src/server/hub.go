package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

// handleWebSocket upgrades the request and attaches the client to the
// symbol's pipeline.
func (s *FastAPIServer) handleWebSocket(c *gin.Context) {
	symbol, ok := normalizeSymbol(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid symbol"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		hub:    s,
		symbol: symbol,
		conn:   conn,
		// Buffered channel so a publish never waits on the network
		send: make(chan interface{}, sendBufferSize),
		done: make(chan struct{}),
	}

	s.register(client)
	go client.writePump()

	if err := s.streams.Attach(symbol, client); err != nil {
		s.Logger.Warning("Attach %s for %s failed: %v", symbol, client.id, err)
		client.Send(map[string]string{"type": "error", "symbol": symbol, "error": err.Error()})
		client.Close()
		s.unregister(client)
		return
	}

	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client registry
// -----------------------------------------------------------------------------

func (s *FastAPIServer) register(c *Client) {
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()
	s.Logger.Info("Client %s connected for %s", c.id, c.symbol)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) unregister(c *Client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
}
