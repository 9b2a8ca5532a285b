package databento

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signal-streamer/src/helpers"
	"signal-streamer/src/logger"
	"signal-streamer/src/models"
	"signal-streamer/src/network"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ndjson = `{"hd":{"ts_event":"1718208000000000000","rtype":33,"publisher_id":1,"instrument_id":5482},"open":"4500250000000","high":"4501000000000","low":"4499500000000","close":"4500750000000","volume":"12"}

{"hd":{"ts_event":"1718208060000000000","rtype":33,"publisher_id":1,"instrument_id":5482},"open":"4500750000000","high":"4502000000000","low":"4500000000000","close":"4501500000000","volume":"7"}
`

func testNetwork(user string) *network.AsyncNetworkManager {
	return network.NewAsyncNetworkManager(models.MNetworkConfig{RequestTimeout: 5}, user, logger.NewNopLogger())
}

func TestParseRecords(t *testing.T) {
	records, err := ParseRecords([]byte(ndjson))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, models.RTypeOHLCV1m, records[0].Header.RType)
	assert.Equal(t, "1718208000000000000", records[0].Header.TsEvent.Decimal.String())
	assert.Equal(t, "4500250000000", records[0].Open.Decimal.String())
	assert.True(t, records[1].Volume.Valid)
}

func TestParseRecordsMissingFieldStaysInvalid(t *testing.T) {
	records, err := ParseRecords([]byte(`{"hd":{"ts_event":"1","rtype":33},"open":"1","high":"1","low":"1","close":"1"}`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Volume.Valid)
}

func TestParseRecordsRejectsGarbage(t *testing.T) {
	_, err := ParseRecords([]byte("{\"hd\":{}}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestFetchRangeBuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, rangePath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "GLBX.MDP3", q.Get("dataset"))
		assert.Equal(t, "ESU4", q.Get("symbols"))
		assert.Equal(t, "ohlcv-1m", q.Get("schema"))
		assert.Equal(t, "2024-06-12T16:00:00Z", q.Get("start"))
		assert.Equal(t, "2024-06-12T16:02:00Z", q.Get("end"))
		assert.Equal(t, "json", q.Get("encoding"))
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "db-key", user)
		w.Write([]byte(ndjson))
	}))
	defer srv.Close()

	start := time.Date(2024, 6, 12, 16, 0, 0, 0, time.UTC)
	client := NewHistoricalClient(srv.URL+"/", testNetwork("db-key"))
	records, err := client.FetchRange(context.Background(), models.MHistoryRequest{
		Dataset: "GLBX.MDP3",
		Schema:  "ohlcv-1m",
		Symbol:  "ESU4",
		Start:   start.Unix(),
		End:     start.Add(2 * time.Minute).Unix(),
	})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFetchRangeClassifiesLicenseErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"No license for dataset GLBX.MDP3"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHistoricalClient(srv.URL, testNetwork("")).FetchRange(context.Background(), models.MHistoryRequest{Dataset: "GLBX.MDP3"})
	require.Error(t, err)
	assert.True(t, helpers.IsEntitlement(err))
}

func TestFetchRangeOtherStatusIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad symbol", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewHistoricalClient(srv.URL, testNetwork("")).FetchRange(context.Background(), models.MHistoryRequest{})
	require.Error(t, err)
	var transport *helpers.TransportError
	assert.ErrorAs(t, err, &transport)
}

// -----------------------------------------------------------------------------

func gatewayURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestLiveSubscribeAndRecv(t *testing.T) {
	upgrader := websocket.Upgrader{}
	got := make(chan subscribeRequest, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "db-key", user)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		got <- req

		conn.WriteMessage(websocket.TextMessage, []byte(`{"hd":{"rtype":23},"msg":"Subscription request 1 succeeded"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(ndjson))
		// hold until the client goes away
		conn.ReadMessage()
	}))
	defer srv.Close()

	client := NewLiveClient(gatewayURL(srv), "db-key", logger.NewNopLogger())
	sub, err := client.Subscribe(context.Background(), models.MLiveRequest{Dataset: "GLBX.MDP3", Schema: "ohlcv-1m", Symbol: "ESU4"})
	require.NoError(t, err)
	defer sub.Close()

	req := <-got
	assert.Equal(t, "subscribe", req.Action)
	assert.Equal(t, []string{"ESU4"}, req.Symbols)
	assert.Equal(t, "ohlcv-1m", req.Schema)

	ctx := context.Background()
	sys, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RTypeSystem, sys.Header.RType)

	first, err := sub.Recv(ctx)
	require.NoError(t, err)
	second, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "12", first.Volume.Decimal.String())
	assert.Equal(t, "7", second.Volume.Decimal.String())
}

func TestLiveRecvAfterCloseFails(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sub, err := NewLiveClient(gatewayURL(srv), "k", logger.NewNopLogger()).Subscribe(context.Background(), models.MLiveRequest{Symbol: "ES"})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Recv(context.Background())
		errCh <- err
	}()
	require.NoError(t, sub.Close())

	select {
	case err := <-errCh:
		var transport *helpers.TransportError
		assert.ErrorAs(t, err, &transport)
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not unblock on Close")
	}
}

func TestLiveHandshakeEntitlement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "user has no license for live GLBX.MDP3", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewLiveClient(gatewayURL(srv), "k", logger.NewNopLogger()).Subscribe(context.Background(), models.MLiveRequest{Symbol: "ES"})
	require.Error(t, err)
	assert.True(t, helpers.IsEntitlement(err))
}

func TestLiveHandshakeServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewLiveClient(gatewayURL(srv), "k", logger.NewNopLogger()).Subscribe(context.Background(), models.MLiveRequest{Symbol: "ES"})
	require.Error(t, err)
	assert.False(t, helpers.IsEntitlement(err))
}
