package databento

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"signal-streamer/src/helpers"
	"signal-streamer/src/interfaces"
	"signal-streamer/src/logger"
	"signal-streamer/src/models"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	readWait         = 90 * time.Second
	pingPeriod       = 30 * time.Second
	writeWait        = 5 * time.Second
)

// subscribeRequest is the first message sent after the gateway handshake.
type subscribeRequest struct {
	Action   string   `json:"action"`
	Dataset  string   `json:"dataset"`
	Schema   string   `json:"schema"`
	Symbols  []string `json:"symbols"`
	StypeIn  string   `json:"stype_in"`
	Encoding string   `json:"encoding"`
}

// -----------------------------------------------------------------------------

// LiveClient subscribes to a JSON-over-websocket live gateway.
type LiveClient struct {
	url    string
	apiKey string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewLiveClient(url, apiKey string, log *logger.Logger) *LiveClient {
	return &LiveClient{url: url, apiKey: apiKey, Logger: log}
}

// -----------------------------------------------------------------------------

func (c *LiveClient) Subscribe(ctx context.Context, req models.MLiveRequest) (interfaces.ILiveSubscription, error) {
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.apiKey+":")))

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, handshakeError(resp, err)
	}

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	msg := subscribeRequest{
		Action:   "subscribe",
		Dataset:  req.Dataset,
		Schema:   req.Schema,
		Symbols:  []string{req.Symbol},
		StypeIn:  "raw_symbol",
		Encoding: "json",
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		conn.Close()
		return nil, helpers.NewTransportError("live subscribe", err)
	}

	sub := &liveSubscription{conn: conn, done: make(chan struct{})}
	go sub.pingLoop()
	c.Logger.Info("Subscribed to live %s %s %s", req.Dataset, req.Schema, req.Symbol)
	return sub, nil
}

// -----------------------------------------------------------------------------

// handshakeError classifies a failed dial using the gateway's HTTP response.
func handshakeError(resp *http.Response, err error) error {
	if resp == nil {
		return helpers.NewTransportError("live dial", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	text := strings.TrimSpace(string(body))

	cause := fmt.Errorf("status %d: %s", resp.StatusCode, text)
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusPaymentRequired {
		if text == "" || helpers.IsEntitlementMessage(text) {
			return helpers.NewEntitlementError("live dial", cause)
		}
	}
	return helpers.ClassifyUpstreamError("live dial", cause)
}

// -----------------------------------------------------------------------------

type liveSubscription struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
	pending []models.MRawRecord
}

// -----------------------------------------------------------------------------

// Recv reads the next record. A message may carry several newline-delimited
// records; the extras are queued for the following calls.
func (s *liveSubscription) Recv(ctx context.Context) (models.MRawRecord, error) {
	for {
		if len(s.pending) > 0 {
			rec := s.pending[0]
			s.pending = s.pending[1:]
			return rec, nil
		}
		if err := ctx.Err(); err != nil {
			return models.MRawRecord{}, err
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return models.MRawRecord{}, helpers.NewTransportError("live subscription closed", err)
			default:
			}
			return models.MRawRecord{}, helpers.NewTransportError("live read", err)
		}

		records, err := ParseRecords(message)
		if err != nil {
			return models.MRawRecord{}, helpers.NewTransportError("live decode", err)
		}
		s.pending = append(s.pending, records...)
	}
}

// -----------------------------------------------------------------------------

func (s *liveSubscription) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (s *liveSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
