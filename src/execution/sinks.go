package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"signal-streamer/src/interfaces"
	"signal-streamer/src/logger"
	"signal-streamer/src/models"

	kafka "github.com/segmentio/kafka-go"
)

// -----------------------------------------------------------------------------
// Paper
// -----------------------------------------------------------------------------

// MOrder is the market order a paper trade would have placed.
type MOrder struct {
	AccountID   string `json:"AccountID"`
	Symbol      string `json:"Symbol"`
	Quantity    string `json:"Quantity"`
	OrderType   string `json:"OrderType"`
	TradeAction string `json:"TradeAction"`
	Duration    string `json:"TimeInForce"`
	Route       string `json:"Route"`
}

// TradeAction maps a signal action onto the broker verb. Only BUY and SELL
// map; HOLD returns "".
func TradeAction(a models.Action) string {
	switch a {
	case models.ActionBuy:
		return "Buy"
	case models.ActionSell:
		return "SellShort"
	}
	return ""
}

// -----------------------------------------------------------------------------

type PaperSink struct {
	AccountID string
	Quantity  int
	Logger    *logger.Logger
}

func NewPaperSink(accountID string, quantity int, log *logger.Logger) *PaperSink {
	if quantity <= 0 {
		quantity = 1
	}
	return &PaperSink{AccountID: accountID, Quantity: quantity, Logger: log}
}

func (p *PaperSink) Name() string { return "paper" }

// Order builds the order payload for sig.
func (p *PaperSink) Order(sig models.MTradeSignal) MOrder {
	return MOrder{
		AccountID:   p.AccountID,
		Symbol:      sig.Symbol,
		Quantity:    fmt.Sprintf("%d", p.Quantity),
		OrderType:   "Market",
		TradeAction: TradeAction(sig.Action),
		Duration:    "DAY",
		Route:       "Intelligent",
	}
}

func (p *PaperSink) Handle(ctx context.Context, sig models.MTradeSignal) error {
	action := TradeAction(sig.Action)
	if action == "" {
		return fmt.Errorf("no order for action %q", sig.Action)
	}
	payload, err := json.Marshal(p.Order(sig))
	if err != nil {
		return err
	}
	p.Logger.Info("[PAPER TRADE] %s %d %s @ $%.2f (stop %.2f) order=%s", action, p.Quantity, sig.Symbol, sig.Price, sig.StopPrice, payload)
	return nil
}

// -----------------------------------------------------------------------------
// Journal
// -----------------------------------------------------------------------------

type JournalSink struct {
	journal interfaces.ISignalJournal
}

func NewJournalSink(j interfaces.ISignalJournal) *JournalSink {
	return &JournalSink{journal: j}
}

func (j *JournalSink) Name() string { return "journal" }

func (j *JournalSink) Handle(ctx context.Context, sig models.MTradeSignal) error {
	return j.journal.SaveSignal(sig)
}

// -----------------------------------------------------------------------------
// Kafka
// -----------------------------------------------------------------------------

// MessageWriter is the part of kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a hash-balanced writer so one symbol always lands
// on the same partition.
func NewKafkaWriter(cfg models.MKafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

type KafkaSink struct {
	writer  MessageWriter
	timeout time.Duration
}

func NewKafkaSink(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w, timeout: 5 * time.Second}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Handle(ctx context.Context, sig models.MTradeSignal) error {
	value, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(sig.Symbol),
		Value: value,
		Time:  sig.CreatedAt,
	})
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
