// Package strategy holds the per-symbol trailing-stop signal engine.
package strategy

import (
	"signal-streamer/src/analysis/core"
	"signal-streamer/src/models"
	"signal-streamer/src/utils"
)

// windowSlack is how many bars beyond atrPeriod the engine retains.
const windowSlack = 5

// -----------------------------------------------------------------------------

// UTBotStrategy is an ATR trailing-stop state machine (FLAT -> LONG <-> SHORT).
// It is not safe for concurrent use; one instance belongs to one pipeline.
type UTBotStrategy struct {
	atrPeriod  int
	multiplier float64

	window      *utils.BarRing
	seen        int64
	position    models.Position
	stopValue   float64
	initialized bool
}

// -----------------------------------------------------------------------------

func NewUTBotStrategy(atrPeriod int, multiplier float64) *UTBotStrategy {
	if atrPeriod < 1 {
		atrPeriod = 1
	}
	return &UTBotStrategy{
		atrPeriod:  atrPeriod,
		multiplier: multiplier,
		window:     utils.NewBarRing(atrPeriod + windowSlack),
		position:   models.PositionFlat,
	}
}

// -----------------------------------------------------------------------------

// ProcessBar ingests one bar and returns the resulting signal.
func (s *UTBotStrategy) ProcessBar(bar models.MBar) models.MSignal {
	s.window.Append(bar)
	s.seen++

	px := bar.Close
	if s.seen < int64(s.atrPeriod+1) {
		return models.MSignal{Action: models.ActionHold, StopPrice: 0, EntryPrice: px, Reason: models.ReasonWarmingUp}
	}

	atr := core.AverageTrueRange(s.window.GetLatest(s.atrPeriod+1), s.atrPeriod)
	distance := atr * s.multiplier

	if !s.initialized {
		s.stopValue = px - distance
		s.position = models.PositionLong
		s.initialized = true
		return s.signal(models.ActionHold, px, models.ReasonInit)
	}

	action := models.ActionHold
	switch s.position {
	case models.PositionLong:
		if candidate := px - distance; candidate > s.stopValue {
			s.stopValue = candidate
		}
		if px < s.stopValue {
			s.position = models.PositionShort
			s.stopValue = px + distance
			action = models.ActionSell
		}
	case models.PositionShort:
		if candidate := px + distance; candidate < s.stopValue {
			s.stopValue = candidate
		}
		if px > s.stopValue {
			s.position = models.PositionLong
			s.stopValue = px - distance
			action = models.ActionBuy
		}
	}

	reason := models.ReasonHold
	if action != models.ActionHold {
		reason = models.ReasonFlip
	}
	return s.signal(action, px, reason)
}

// -----------------------------------------------------------------------------

func (s *UTBotStrategy) signal(action models.Action, entry float64, reason string) models.MSignal {
	return models.MSignal{
		Action:     action,
		StopPrice:  core.RoundPrice(s.stopValue, 2),
		EntryPrice: entry,
		Reason:     reason,
	}
}

// -----------------------------------------------------------------------------

// Warmup feeds bars through the engine and discards the signals.
func (s *UTBotStrategy) Warmup(bars []models.MBar) {
	for _, b := range bars {
		s.ProcessBar(b)
	}
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

func (s *UTBotStrategy) Position() models.Position { return s.position }

// StopValue is the unrounded internal stop.
func (s *UTBotStrategy) StopValue() float64 { return s.stopValue }

func (s *UTBotStrategy) Initialized() bool { return s.initialized }

func (s *UTBotStrategy) BarsSeen() int64 { return s.seen }

func (s *UTBotStrategy) WindowSize() int { return s.window.Size() }

func (s *UTBotStrategy) ATRPeriod() int { return s.atrPeriod }
