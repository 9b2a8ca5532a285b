package datasource

import (
	"context"
	"fmt"
	"sort"
	"time"

	"signal-streamer/src/helpers"
	"signal-streamer/src/interfaces"
	"signal-streamer/src/logger"
	"signal-streamer/src/metrics"
	"signal-streamer/src/models"
	"signal-streamer/src/utils"
)

// DefaultInterval is used when a caller asks for an unsupported interval.
const DefaultInterval = "1m"

var intervalSchemas = map[string]struct {
	schema string
	step   time.Duration
}{
	"1s": {"ohlcv-1s", time.Second},
	"1m": {"ohlcv-1m", time.Minute},
	"1h": {"ohlcv-1h", time.Hour},
	"1d": {"ohlcv-1d", 24 * time.Hour},
}

// ResolveInterval maps an interval to its upstream schema and bar spacing.
// ok is false when the interval was unknown and the default was used.
func ResolveInterval(interval string) (schema string, step time.Duration, ok bool) {
	if s, found := intervalSchemas[interval]; found {
		return s.schema, s.step, true
	}
	s := intervalSchemas[DefaultInterval]
	return s.schema, s.step, false
}

// -----------------------------------------------------------------------------

// HistorySource fetches warm-up history and falls back to synthetic bars
// whenever real data cannot be had.
type HistorySource struct {
	client     interfaces.IHistoricalClient
	normalizer *Normalizer
	cfg        models.MHistoryConfig
	sim        models.MSimulationConfig
	Logger     *logger.Logger
	now        func() time.Time
}

// -----------------------------------------------------------------------------

// NewHistorySource creates a history source. client may be nil, in which case
// every call is served synthetically.
func NewHistorySource(client interfaces.IHistoricalClient, normalizer *Normalizer, cfg models.MHistoryConfig, sim models.MSimulationConfig, log *logger.Logger) *HistorySource {
	return &HistorySource{
		client:     client,
		normalizer: normalizer,
		cfg:        cfg,
		sim:        sim,
		Logger:     log,
		now:        time.Now,
	}
}

// -----------------------------------------------------------------------------

// SetClock overrides the wall clock.
func (h *HistorySource) SetClock(now func() time.Time) {
	h.now = now
}

// -----------------------------------------------------------------------------

// QueryWindow computes [start, end] for a history request: end sits the safety
// lag before now (truncated to the minute) and both ends move back a day at a
// time while end is not a trading day.
func QueryWindow(now time.Time, lag, lookback time.Duration, cal *utils.TradingCalendar) (time.Time, time.Time) {
	end := now.UTC().Add(-lag).Truncate(time.Minute)
	start := end.Add(-lookback)

	if cal != nil {
		shiftedEnd, days := cal.ShiftBackToTradingDay(end)
		end = shiftedEnd
		start = start.AddDate(0, 0, -days)
	}
	return start, end
}

// -----------------------------------------------------------------------------

// FetchHistory returns bars oldest first. It never fails.
func (h *HistorySource) FetchHistory(ctx context.Context, symbol, interval string, lookback time.Duration) (bars []models.MBar) {
	schema, step, ok := ResolveInterval(interval)
	if !ok {
		h.Logger.Warning("Invalid interval '%s' for %s. Defaulting to %s.", interval, symbol, DefaultInterval)
	}
	if lookback <= 0 {
		lookback = time.Duration(h.cfg.LookbackDays) * 24 * time.Hour
	}

	defer func() {
		if r := recover(); r != nil {
			h.Logger.Error("History fetch for %s panicked: %v. Falling back to synthetic data.", symbol, r)
			bars = h.fallback(symbol, step, "panic")
		}
	}()

	if h.client == nil {
		return h.fallback(symbol, step, "no-client")
	}

	bars, err := h.fetch(ctx, symbol, schema, lookback)
	if err != nil {
		h.Logger.Error("Real history failed for %s (%v). Falling back to synthetic data.", symbol, err)
		return h.fallback(symbol, step, "error")
	}
	if len(bars) == 0 {
		h.Logger.Warning("Real history empty for %s. Falling back to synthetic data.", symbol)
		return h.fallback(symbol, step, "empty")
	}

	h.Logger.Info("Loaded %d real bars for %s", len(bars), symbol)
	return bars
}

// -----------------------------------------------------------------------------

func (h *HistorySource) fetch(ctx context.Context, symbol, schema string, lookback time.Duration) ([]models.MBar, error) {
	dataset := h.normalizer.Dataset(symbol)
	cal := utils.GetCalendar(h.normalizer.Calendar(symbol))
	if cal.Fallback {
		h.Logger.Warning("No exchange calendar for %s (%s), using Mon-Fri", symbol, cal.MIC)
	}
	lag := time.Duration(h.cfg.SafetyLagMinutes) * time.Minute

	start, end := QueryWindow(h.now(), lag, lookback, cal)
	h.Logger.Info("Fetching %s history for %s from %s (%s to %s)", schema, symbol, dataset, start.Format(time.RFC3339), end.Format(time.RFC3339))

	records, err := h.client.FetchRange(ctx, models.MHistoryRequest{
		Dataset: dataset,
		Schema:  schema,
		Symbol:  symbol,
		Start:   start.Unix(),
		End:     end.Unix(),
	})
	if err != nil {
		return nil, helpers.NewDataUnavailableError(fmt.Sprintf("history %s %s", dataset, symbol), err)
	}

	bars := make([]models.MBar, 0, len(records))
	skipped := 0
	for _, rec := range records {
		if rec.Header.RType != 0 && !isOHLCV(rec.Header.RType) {
			continue
		}
		bar, err := h.normalizer.Normalize(rec, symbol, dataset)
		if err != nil {
			skipped++
			continue
		}
		bars = append(bars, bar)
	}
	if skipped > 0 {
		h.Logger.Warning("Dropped %d malformed history records for %s", skipped, symbol)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	return bars, nil
}

// -----------------------------------------------------------------------------

func (h *HistorySource) fallback(symbol string, step time.Duration, reason string) []models.MBar {
	metrics.HistoryFallbacks.WithLabelValues(reason).Inc()
	return SyntheticHistory(symbol, h.now(), step, h.cfg.FallbackBarCount, h.sim.StartPrice, h.sim.Seed)
}

// -----------------------------------------------------------------------------

func isOHLCV(rtype int) bool {
	return rtype >= models.RTypeOHLCV1s && rtype <= models.RTypeOHLCVEod
}
