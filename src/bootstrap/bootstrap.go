package bootstrap

import (
	"context"
	"fmt"
	"io"
	"time"

	"signal-streamer/src/broadcast"
	"signal-streamer/src/config"
	datasource "signal-streamer/src/data_source"
	"signal-streamer/src/data_source/databento"
	"signal-streamer/src/execution"
	"signal-streamer/src/interfaces"
	"signal-streamer/src/logger"
	"signal-streamer/src/network"
	"signal-streamer/src/storage"
	"signal-streamer/src/stream"
)

// Components is everything a binary needs to run pipelines.
type Components struct {
	Config       *config.Config
	Journal      interfaces.ISignalJournal // nil when journaling is off
	Dispatcher   *execution.Dispatcher
	Broadcaster  *broadcast.Broadcaster
	Orchestrator *stream.Orchestrator

	closers []io.Closer
	logger  *logger.Logger
}

// -----------------------------------------------------------------------------

// Build wires market data, execution and the orchestrator from cfg. The
// dispatcher is started on ctx.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Components, error) {
	c := &Components{Config: cfg, logger: log}

	// 1. Market data
	history, newLive := setupMarketData(cfg, log)

	// 2. Journal
	journal, err := storage.NewSignalJournal(cfg.Execution.Journal, cfg.Name, log.Named("Journal"))
	if err != nil {
		return nil, fmt.Errorf("signal journal: %w", err)
	}
	c.Journal = journal

	// 3. Execution
	sinks, closers, err := execution.BuildSinks(cfg.Execution, c.Journal, log.Named("Execution"))
	if err != nil {
		c.closeJournal()
		return nil, fmt.Errorf("execution sinks: %w", err)
	}
	c.closers = closers
	c.Dispatcher = execution.NewDispatcher(cfg.Execution.QueueSize, log.Named("Dispatcher"), sinks...)
	c.Dispatcher.Start(ctx)

	// 4. Fan-out and pipelines
	c.Broadcaster = broadcast.NewBroadcaster(log.Named("Broadcaster"))
	c.Orchestrator = stream.NewOrchestrator(stream.Config{
		Interval:   cfg.MarketData.History.Interval,
		Lookback:   time.Duration(cfg.MarketData.History.LookbackDays) * 24 * time.Hour,
		ATRPeriod:  cfg.Strategy.ATRPeriod,
		Multiplier: cfg.Strategy.Multiplier,
	}, history, newLive, c.Broadcaster, c.Dispatcher, log.Named("Orchestrator"))

	log.Info("Components ready (simulation=%v, sinks=%v)", Simulated(cfg), c.Dispatcher.SinkNames())
	return c, nil
}

// -----------------------------------------------------------------------------

// Simulated reports whether live bars will be synthetic: either requested,
// or forced by a missing key. History is fetched whenever a key is present.
func Simulated(cfg *config.Config) bool {
	return cfg.MarketData.UseSimulation || !cfg.HasLiveCredentials()
}

// -----------------------------------------------------------------------------

// setupMarketData builds the history source and the live source factory.
// The simulation switch applies to live bars only; without credentials both
// run on synthetic data.
func setupMarketData(cfg *config.Config, log *logger.Logger) (*datasource.HistorySource, stream.LiveSourceFactory) {
	md := cfg.MarketData
	normalizer := datasource.NewNormalizer(md.Venues, md.DefaultDataset, md.History.DefaultCalendarID)

	var histClient interfaces.IHistoricalClient
	var liveClient interfaces.ILiveClient
	simulate := Simulated(cfg)

	if cfg.HasLiveCredentials() {
		nm := network.NewAsyncNetworkManager(cfg.Network, md.APIKey, log.Named("NetworkManager"))
		histClient = databento.NewHistoricalClient(md.HistoricalURL, nm)
	} else {
		log.Info("No market-data key, history will be synthetic")
	}

	switch {
	case simulate:
		log.Info("Live bars in simulation mode")
	case md.LiveURL != "":
		liveClient = databento.NewLiveClient(md.LiveURL, md.APIKey, log.Named("LiveClient"))
	default:
		log.Warning("No live_url configured, live bars will be simulated")
	}

	history := datasource.NewHistorySource(histClient, normalizer, md.History, cfg.Simulation, log.Named("HistorySource"))

	sim := cfg.Simulation
	liveLog := log.Named("LiveSource")
	newLive := func(symbol string, startPrice float64) interfaces.ILiveSource {
		if startPrice <= 0 {
			startPrice = sim.StartPrice
		}
		return datasource.NewLiveSource(symbol, datasource.LiveSourceConfig{
			Client:       liveClient,
			Normalizer:   normalizer,
			Schema:       md.LiveSchema,
			Simulate:     simulate,
			TickInterval: time.Duration(sim.TickIntervalMs) * time.Millisecond,
			StartPrice:   startPrice,
			Seed:         sim.Seed,
		}, liveLog)
	}
	return history, newLive
}

// -----------------------------------------------------------------------------

// Close stops pipelines, drains execution and releases sink and journal
// resources, in that order.
func (c *Components) Close(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(c.Orchestrator.Shutdown(ctx))
	keep(c.Dispatcher.Stop(ctx))
	for _, cl := range c.closers {
		keep(cl.Close())
	}
	keep(c.closeJournal())
	return firstErr
}

func (c *Components) closeJournal() error {
	if c.Journal == nil {
		return nil
	}
	if err := c.Journal.Close(); err != nil {
		c.logger.Error("Closing journal failed: %v", err)
		return err
	}
	return nil
}
