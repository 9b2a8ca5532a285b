package core

import (
	"math"
	"strconv"

	"signal-streamer/src/models"
)

// -----------------------------------------------------------------------------

// TrueRange of a bar given the previous bar's close.
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// -----------------------------------------------------------------------------

// TrueRanges returns one true range per bar after the first, oldest first.
func TrueRanges(bars []models.MBar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		out = append(out, TrueRange(bars[i].High, bars[i].Low, bars[i-1].Close))
	}
	return out
}

// -----------------------------------------------------------------------------

// AverageTrueRange is the simple (unsmoothed) mean of the last period true
// ranges. bars must hold at least period+1 entries, otherwise 0 is returned.
func AverageTrueRange(bars []models.MBar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	return Mean(TrueRanges(bars[len(bars)-(period+1):]))
}

// -----------------------------------------------------------------------------

// RoundPrice rounds the exact binary value of v to the given number of
// decimals, ties to even. 2.675 is stored as 2.67499... and rounds to 2.67.
func RoundPrice(v float64, places int32) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', int(places), 64), 64)
	if err != nil {
		return v
	}
	return f
}
