package datasource

import (
	"strings"

	"signal-streamer/src/helpers"
	"signal-streamer/src/models"

	"github.com/shopspring/decimal"
)

var nanosPerSecond = decimal.NewFromInt(1_000_000_000)

// venue is one routing entry: symbols starting with any root go to dataset.
type venue struct {
	dataset  string
	roots    []string
	scale    decimal.Decimal
	calendar string
}

// -----------------------------------------------------------------------------

// Normalizer routes symbols to datasets and turns raw upstream records into bars.
// It holds only its immutable routing table.
type Normalizer struct {
	venues         []venue
	defaultDataset string
	defaultCal     string
}

// -----------------------------------------------------------------------------

func NewNormalizer(venues []models.MVenueConfig, defaultDataset, defaultCalendar string) *Normalizer {
	n := &Normalizer{defaultDataset: defaultDataset, defaultCal: defaultCalendar}
	for _, v := range venues {
		scale := decimal.NewFromFloat(v.PriceScale)
		if v.PriceScale <= 0 {
			scale = decimal.NewFromInt(1)
		}
		roots := make([]string, 0, len(v.Roots))
		for _, r := range v.Roots {
			if r = strings.ToUpper(strings.TrimSpace(r)); r != "" {
				roots = append(roots, r)
			}
		}
		n.venues = append(n.venues, venue{
			dataset:  v.Dataset,
			roots:    roots,
			scale:    scale,
			calendar: v.Calendar,
		})
	}
	return n
}

// -----------------------------------------------------------------------------

func (n *Normalizer) match(symbol string) *venue {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	for i := range n.venues {
		for _, root := range n.venues[i].roots {
			if strings.HasPrefix(sym, root) {
				return &n.venues[i]
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// Dataset resolves the upstream dataset for a symbol. First matching root wins;
// no match goes to the default dataset.
func (n *Normalizer) Dataset(symbol string) string {
	if v := n.match(symbol); v != nil {
		return v.dataset
	}
	return n.defaultDataset
}

// -----------------------------------------------------------------------------

// Calendar returns the trading calendar MIC for a symbol's venue.
func (n *Normalizer) Calendar(symbol string) string {
	if v := n.match(symbol); v != nil && v.calendar != "" {
		return v.calendar
	}
	for _, v := range n.venues {
		if v.dataset == n.defaultDataset && v.calendar != "" {
			return v.calendar
		}
	}
	return n.defaultCal
}

// -----------------------------------------------------------------------------

// Scale returns the price divisor for a dataset; 1 when unknown.
func (n *Normalizer) Scale(dataset string) decimal.Decimal {
	for _, v := range n.venues {
		if v.dataset == dataset {
			return v.scale
		}
	}
	return decimal.NewFromInt(1)
}

// -----------------------------------------------------------------------------

// Normalize converts one raw record into a bar. A missing price, volume or
// timestamp field, or a negative volume, is rejected with a MalformedRecordError.
func (n *Normalizer) Normalize(raw models.MRawRecord, symbol, dataset string) (models.MBar, error) {
	fields := []struct {
		name string
		val  decimal.NullDecimal
	}{
		{"ts_event", raw.Header.TsEvent},
		{"open", raw.Open},
		{"high", raw.High},
		{"low", raw.Low},
		{"close", raw.Close},
		{"volume", raw.Volume},
	}
	for _, f := range fields {
		if !f.val.Valid {
			return models.MBar{}, helpers.NewMalformedRecordError(f.name)
		}
	}
	if raw.Volume.Decimal.IsNegative() {
		return models.MBar{}, helpers.NewMalformedRecordError("volume")
	}

	scale := n.Scale(dataset)
	price := func(d decimal.NullDecimal) float64 {
		f, _ := d.Decimal.Div(scale).Float64()
		return f
	}

	return models.MBar{
		Symbol:    symbol,
		Dataset:   dataset,
		Timestamp: raw.Header.TsEvent.Decimal.Div(nanosPerSecond).Floor().IntPart(),
		Open:      price(raw.Open),
		High:      price(raw.High),
		Low:       price(raw.Low),
		Close:     price(raw.Close),
		Volume:    raw.Volume.Decimal.IntPart(),
	}, nil
}
