package datasource

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"signal-streamer/src/analysis/core"
	"signal-streamer/src/models"
)

const (
	historyStep   = 2.0 // history walk: (u-0.5)*2.0
	liveStep      = 1.0 // live walk: (u-0.5)*1.0
	minPriceRatio = 0.1 // the walk never drops below this share of its start
	liveVolume    = 100
)

// -----------------------------------------------------------------------------

// symbolSeed mixes the configured seed with the symbol so every symbol gets
// its own reproducible series.
func symbolSeed(seed int64, symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return seed ^ int64(h.Sum64())
}

// -----------------------------------------------------------------------------

// randomWalk is a bounded random walk around a start price.
type randomWalk struct {
	rng   *rand.Rand
	price float64
	floor float64
	step  float64
}

func newRandomWalk(seed int64, start, step float64) *randomWalk {
	return &randomWalk{
		rng:   rand.New(rand.NewSource(seed)),
		price: start,
		floor: start * minPriceRatio,
		step:  step,
	}
}

func (w *randomWalk) next() float64 {
	w.price += (w.rng.Float64() - 0.5) * w.step
	w.price = math.Max(w.price, w.floor)
	return w.price
}

// -----------------------------------------------------------------------------

// SyntheticHistory builds count bars ending at end, spaced by interval,
// oldest first. Prices are seeded per symbol so repeated calls match.
func SyntheticHistory(symbol string, end time.Time, interval time.Duration, count int, startPrice float64, seed int64) []models.MBar {
	if count <= 0 {
		return []models.MBar{}
	}
	if interval < time.Second {
		interval = time.Minute
	}

	walk := newRandomWalk(symbolSeed(seed, symbol), startPrice, historyStep)
	endTs := end.Unix()
	step := int64(interval / time.Second)

	bars := make([]models.MBar, count)
	// generated newest first, stored oldest first
	for i := 0; i < count; i++ {
		p := walk.next()
		bars[count-1-i] = models.MBar{
			Symbol:    symbol,
			Dataset:   models.SimulationDataset,
			Timestamp: endTs - int64(i)*step,
			Open:      core.RoundPrice(p-0.1, 2),
			High:      core.RoundPrice(p+0.2, 2),
			Low:       core.RoundPrice(p-0.2, 2),
			Close:     core.RoundPrice(p, 2),
			Volume:    int64(100 + walk.rng.Intn(4901)),
		}
	}
	return bars
}

// -----------------------------------------------------------------------------

// SyntheticTicker produces one live-style bar per call.
type SyntheticTicker struct {
	symbol string
	walk   *randomWalk
}

func NewSyntheticTicker(symbol string, startPrice float64, seed int64) *SyntheticTicker {
	return &SyntheticTicker{
		symbol: symbol,
		walk:   newRandomWalk(symbolSeed(seed, symbol), startPrice, liveStep),
	}
}

// Next advances the walk and stamps the bar with ts.
func (t *SyntheticTicker) Next(ts time.Time) models.MBar {
	p := t.walk.next()
	return models.MBar{
		Symbol:    t.symbol,
		Dataset:   models.SimulationDataset,
		Timestamp: ts.Unix(),
		Open:      core.RoundPrice(p, 2),
		High:      core.RoundPrice(p+0.05, 2),
		Low:       core.RoundPrice(p-0.05, 2),
		Close:     core.RoundPrice(p, 2),
		Volume:    liveVolume,
	}
}
