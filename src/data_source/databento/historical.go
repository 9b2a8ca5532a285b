// Package databento adapts the Databento historical and live APIs to the
// market-data client interfaces.
package databento

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"signal-streamer/src/helpers"
	"signal-streamer/src/interfaces"
	"signal-streamer/src/models"
	"signal-streamer/src/network"
)

const rangePath = "/v0/timeseries.get_range"

// -----------------------------------------------------------------------------

// HistoricalClient queries timeseries.get_range with JSON encoding.
type HistoricalClient struct {
	baseURL string
	net     interfaces.INetworkManager
}

// -----------------------------------------------------------------------------

func NewHistoricalClient(baseURL string, nm interfaces.INetworkManager) *HistoricalClient {
	return &HistoricalClient{baseURL: strings.TrimRight(baseURL, "/"), net: nm}
}

// -----------------------------------------------------------------------------

func (c *HistoricalClient) FetchRange(ctx context.Context, req models.MHistoryRequest) ([]models.MRawRecord, error) {
	params := map[string]string{
		"dataset":  req.Dataset,
		"symbols":  req.Symbol,
		"schema":   req.Schema,
		"start":    time.Unix(req.Start, 0).UTC().Format(time.RFC3339),
		"end":      time.Unix(req.End, 0).UTC().Format(time.RFC3339),
		"encoding": "json",
		"stype_in": "raw_symbol",
	}

	body, err := c.net.Get(ctx, c.baseURL+rangePath, params)
	if err != nil {
		var se *network.StatusError
		if errors.As(err, &se) {
			return nil, helpers.ClassifyUpstreamError(fmt.Sprintf("get_range %s", req.Dataset), err)
		}
		return nil, err
	}
	return ParseRecords(body)
}

// -----------------------------------------------------------------------------

// ParseRecords decodes newline-delimited JSON records. Blank lines are skipped;
// a line that is not JSON fails the whole body.
func ParseRecords(body []byte) ([]models.MRawRecord, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var records []models.MRawRecord
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec models.MRawRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode record on line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
