package models

import "github.com/shopspring/decimal"

// Upstream record types carried in the record header.
const (
	RTypeError    = 21
	RTypeSystem   = 23
	RTypeOHLCV1s  = 32
	RTypeOHLCV1m  = 33
	RTypeOHLCV1h  = 34
	RTypeOHLCV1d  = 35
	RTypeOHLCVEod = 36
)

// MRecordHeader is the common upstream header. TsEvent is in nanoseconds.
type MRecordHeader struct {
	TsEvent      decimal.NullDecimal `json:"ts_event"`
	RType        int                 `json:"rtype"`
	PublisherID  int                 `json:"publisher_id"`
	InstrumentID int64               `json:"instrument_id"`
}

// MRawRecord is an upstream OHLCV record before normalization. Fields left
// invalid were absent (or null) upstream.
type MRawRecord struct {
	Header MRecordHeader       `json:"hd"`
	Open   decimal.NullDecimal `json:"open"`
	High   decimal.NullDecimal `json:"high"`
	Low    decimal.NullDecimal `json:"low"`
	Close  decimal.NullDecimal `json:"close"`
	Volume decimal.NullDecimal `json:"volume"`

	// Set on error and system records only.
	Err string `json:"err,omitempty"`
	Msg string `json:"msg,omitempty"`
}

// -----------------------------------------------------------------------------

// MHistoryRequest is one historical range query.
type MHistoryRequest struct {
	Dataset string
	Schema  string
	Symbol  string
	Start   int64 // unix seconds
	End     int64 // unix seconds
}

// MLiveRequest is one live subscription.
type MLiveRequest struct {
	Dataset string
	Schema  string
	Symbol  string
}
