package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"signal-streamer/src/helpers"
	"signal-streamer/src/interfaces"
	"signal-streamer/src/logger"
	"signal-streamer/src/metrics"
	"signal-streamer/src/models"
)

// ErrAlreadyStarted is returned by a second Run on the same LiveSource.
var ErrAlreadyStarted = errors.New("live source already started")

var schemaRTypes = map[string]int{
	"ohlcv-1s": models.RTypeOHLCV1s,
	"ohlcv-1m": models.RTypeOHLCV1m,
	"ohlcv-1h": models.RTypeOHLCV1h,
	"ohlcv-1d": models.RTypeOHLCV1d,
}

// LiveSourceConfig configures one LiveSource.
type LiveSourceConfig struct {
	Client       interfaces.ILiveClient // nil forces simulation
	Normalizer   *Normalizer
	Schema       string
	Simulate     bool
	TickInterval time.Duration
	StartPrice   float64
	Seed         int64
}

// -----------------------------------------------------------------------------

// LiveSource streams bars for one symbol, from the live feed or from the
// synthetic generator.
type LiveSource struct {
	symbol  string
	cfg     LiveSourceConfig
	Logger  *logger.Logger
	now     func() time.Time
	started atomic.Bool
	mode    atomic.Value // string
}

// -----------------------------------------------------------------------------

func NewLiveSource(symbol string, cfg LiveSourceConfig, log *logger.Logger) *LiveSource {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Schema == "" {
		cfg.Schema = "ohlcv-1m"
	}
	ls := &LiveSource{symbol: symbol, cfg: cfg, Logger: log, now: time.Now}
	ls.mode.Store("idle")
	return ls
}

// -----------------------------------------------------------------------------

// Mode reports "idle", "live" or "simulation".
func (ls *LiveSource) Mode() string {
	return ls.mode.Load().(string)
}

// -----------------------------------------------------------------------------

// Run blocks, sending bars to out, until ctx is cancelled (returns ctx.Err())
// or the live feed fails terminally. Entitlement failures switch to the
// synthetic generator instead.
func (ls *LiveSource) Run(ctx context.Context, out chan<- models.MBar) error {
	if !ls.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if ls.cfg.Simulate || ls.cfg.Client == nil {
		ls.Logger.Info("Starting simulation stream for %s", ls.symbol)
		return ls.runSimulation(ctx, out)
	}

	err := ls.runLive(ctx, out)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if helpers.IsEntitlement(err) {
		ls.Logger.Warning("Live data not licensed for %s (%v). Falling back to simulation.", ls.symbol, err)
		metrics.LiveFallbacks.WithLabelValues(ls.symbol).Inc()
		return ls.runSimulation(ctx, out)
	}

	var transport *helpers.TransportError
	if err != nil && !errors.As(err, &transport) {
		err = helpers.NewTransportError(fmt.Sprintf("live stream %s", ls.symbol), err)
	}
	return err
}

// -----------------------------------------------------------------------------

func (ls *LiveSource) runLive(ctx context.Context, out chan<- models.MBar) error {
	dataset := ls.cfg.Normalizer.Dataset(ls.symbol)
	want, ok := schemaRTypes[ls.cfg.Schema]
	if !ok {
		return helpers.NewConfigurationError(fmt.Sprintf("unsupported live schema '%s'", ls.cfg.Schema))
	}

	ls.Logger.Info("Subscribing to %s / %s (%s)", dataset, ls.symbol, ls.cfg.Schema)
	sub, err := ls.cfg.Client.Subscribe(ctx, models.MLiveRequest{Dataset: dataset, Schema: ls.cfg.Schema, Symbol: ls.symbol})
	if err != nil {
		return err
	}
	ls.mode.Store("live")

	// Close unblocks a pending Recv on cancellation
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		sub.Close()
	}()

	dropped := 0
	for {
		rec, err := sub.Recv(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}

		if rec.Header.RType == models.RTypeError {
			return helpers.ClassifyUpstreamError("live gateway", errors.New(rec.Err))
		}
		if rec.Header.RType != want {
			continue
		}

		bar, err := ls.cfg.Normalizer.Normalize(rec, ls.symbol, dataset)
		if err != nil {
			dropped++
			if helpers.IsMalformed(err) {
				ls.Logger.Debug("Dropping malformed live record for %s (%d so far): %v", ls.symbol, dropped, err)
			} else {
				ls.Logger.Warning("Dropping live record for %s: %v", ls.symbol, err)
			}
			continue
		}

		select {
		case out <- bar:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// -----------------------------------------------------------------------------

func (ls *LiveSource) runSimulation(ctx context.Context, out chan<- models.MBar) error {
	ls.mode.Store("simulation")
	ticker := NewSyntheticTicker(ls.symbol, ls.cfg.StartPrice, ls.cfg.Seed)

	for {
		if !helpers.SleepContext(ctx, ls.cfg.TickInterval) {
			return ctx.Err()
		}

		select {
		case out <- ticker.Next(ls.now()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
