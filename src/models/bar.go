package models

// SimulationDataset tags bars produced by the synthetic generators.
const SimulationDataset = "SIMULATION"

// MBar is one normalized OHLCV bar. Timestamp is in seconds, UTC.
type MBar struct {
	Symbol    string  `json:"symbol"`
	Dataset   string  `json:"dataset"`
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

// -----------------------------------------------------------------------------

// MEnrichedBar is a bar with the signal state merged on top, as sent to subscribers.
type MEnrichedBar struct {
	MBar
	Action    Action   `json:"action"`
	StopPrice float64  `json:"stopPrice"`
	Position  Position `json:"position"`
}

// -----------------------------------------------------------------------------

// MStreamError is the single message a subscriber receives before its stream ends.
type MStreamError struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

func NewStreamError(symbol string, err error) MStreamError {
	return MStreamError{Type: "error", Symbol: symbol, Error: err.Error()}
}
