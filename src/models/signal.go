package models

import "time"

type Action string

const (
	ActionHold Action = "HOLD"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

type Position string

const (
	PositionFlat  Position = "FLAT"
	PositionLong  Position = "LONG"
	PositionShort Position = "SHORT"
)

// Signal reasons
const (
	ReasonWarmingUp = "warming-up"
	ReasonInit      = "init"
	ReasonFlip      = "flip"
	ReasonHold      = "hold"
)

// MSignal is emitted for every processed bar.
type MSignal struct {
	Action     Action  `json:"action"`
	StopPrice  float64 `json:"stopPrice"`
	EntryPrice float64 `json:"entryPrice"`
	Reason     string  `json:"reason"`
}

// -----------------------------------------------------------------------------

// MTradeSignal is a BUY/SELL handed to the execution sinks.
type MTradeSignal struct {
	ID        int64     `json:"id,omitempty"`
	Symbol    string    `json:"symbol"`
	Dataset   string    `json:"dataset"`
	Action    Action    `json:"action"`
	Price     float64   `json:"price"`
	StopPrice float64   `json:"stopPrice"`
	Position  Position  `json:"position"`
	BarTime   int64     `json:"barTime"`
	CreatedAt time.Time `json:"createdAt"`
}
