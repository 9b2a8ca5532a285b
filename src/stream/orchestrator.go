// Package stream binds one shared signal pipeline per symbol to all of that
// symbol's subscribers.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"signal-streamer/src/broadcast"
	"signal-streamer/src/interfaces"
	"signal-streamer/src/logger"
	"signal-streamer/src/metrics"
	"signal-streamer/src/models"
	"signal-streamer/src/strategy"
)

var (
	ErrShutdown      = errors.New("orchestrator is shut down")
	ErrEmptySymbol   = errors.New("symbol is required")
	ErrNoPipeline    = errors.New("no pipeline for symbol")
	errOperatorStop  = errors.New("pipeline stopped by operator")
	errLiveSourceEnd = errors.New("live source ended")
)

// LiveSourceFactory builds the live source for a new pipeline. startPrice is
// the last warm-up close, used to seed synthetic data.
type LiveSourceFactory func(symbol string, startPrice float64) interfaces.ILiveSource

// SignalSubmitter receives BUY/SELL trade signals without blocking.
type SignalSubmitter interface {
	Submit(sig models.MTradeSignal) bool
}

type Config struct {
	Interval   string
	Lookback   time.Duration
	ATRPeriod  int
	Multiplier float64
}

// -----------------------------------------------------------------------------
// Orchestrator
// -----------------------------------------------------------------------------

type Orchestrator struct {
	cfg         Config
	history     interfaces.IHistorySource
	newLive     LiveSourceFactory
	broadcaster *broadcast.Broadcaster
	executor    SignalSubmitter
	Logger      *logger.Logger

	// mu guards pipelines and closed. Lock order is mu before the
	// broadcaster's own lock.
	mu        sync.RWMutex
	pipelines map[string]*pipeline
	closed    bool
	wg        sync.WaitGroup
}

// -----------------------------------------------------------------------------

// NewOrchestrator wires the pipeline collaborators. executor may be nil.
func NewOrchestrator(cfg Config, history interfaces.IHistorySource, newLive LiveSourceFactory, b *broadcast.Broadcaster, executor SignalSubmitter, log *logger.Logger) *Orchestrator {
	if cfg.ATRPeriod < 1 {
		cfg.ATRPeriod = 10
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1.0
	}
	return &Orchestrator{
		cfg:         cfg,
		history:     history,
		newLive:     newLive,
		broadcaster: b,
		executor:    executor,
		Logger:      log,
		pipelines:   make(map[string]*pipeline),
	}
}

// -----------------------------------------------------------------------------

// Attach subscribes conn to symbol, starting the symbol's pipeline when it is
// the first subscriber.
func (o *Orchestrator) Attach(symbol string, conn interfaces.IConnection) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ErrEmptySymbol
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrShutdown
	}

	o.broadcaster.Subscribe(symbol, conn)
	if _, ok := o.pipelines[symbol]; ok {
		o.Logger.Info("Client %s joined pipeline %s (%d subscribers)", conn.ID(), symbol, o.broadcaster.SubscriberCount(symbol))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &pipeline{
		symbol:    symbol,
		ctx:       ctx,
		cancel:    cancel,
		startedAt: time.Now().UTC(),
		phase:     models.PhaseWarmingUp,
		position:  models.PositionFlat,
	}
	o.pipelines[symbol] = p
	metrics.ActivePipelines.Inc()

	o.wg.Add(1)
	go o.run(p)

	o.Logger.Info("Client %s started pipeline %s", conn.ID(), symbol)
	return nil
}

// -----------------------------------------------------------------------------

// Detach unsubscribes conn. The pipeline is cancelled when it has no
// subscribers left. Unknown pairs are ignored.
func (o *Orchestrator) Detach(symbol string, conn interfaces.IConnection) {
	symbol = strings.TrimSpace(symbol)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.broadcaster.UnsubscribeConnection(symbol, conn) {
		o.Logger.Info("Client %s left %s", conn.ID(), symbol)
	}
	if p, ok := o.pipelines[symbol]; ok && o.broadcaster.SubscriberCount(symbol) == 0 {
		o.removeLocked(p, "last subscriber left")
	}
}

// -----------------------------------------------------------------------------

// removeLocked unregisters p and cancels it. Caller holds mu.
func (o *Orchestrator) removeLocked(p *pipeline, reason string) bool {
	if o.pipelines[p.symbol] != p {
		return false
	}
	delete(o.pipelines, p.symbol)
	p.setPhase(models.PhaseStopping)
	p.cancel()
	metrics.ActivePipelines.Dec()
	o.Logger.Info("Pipeline %s stopping: %s", p.symbol, reason)
	return true
}

// -----------------------------------------------------------------------------

// StopPipeline ends a pipeline as if its live source had failed: subscribers
// get one error message and are disconnected.
func (o *Orchestrator) StopPipeline(symbol, reason string) error {
	o.mu.RLock()
	p, ok := o.pipelines[strings.TrimSpace(symbol)]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPipeline, symbol)
	}

	err := errOperatorStop
	if reason != "" {
		err = fmt.Errorf("%w: %s", errOperatorStop, reason)
	}
	o.terminate(p, err)
	return nil
}

// -----------------------------------------------------------------------------

// terminate publishes a stream error, drops every subscriber and closes their
// connections.
func (o *Orchestrator) terminate(p *pipeline, cause error) {
	o.mu.Lock()
	if !o.removeLocked(p, cause.Error()) {
		o.mu.Unlock()
		return
	}
	o.broadcaster.Publish(p.symbol, models.NewStreamError(p.symbol, cause))
	handles := o.broadcaster.CloseTopic(p.symbol)
	o.mu.Unlock()

	for _, h := range handles {
		h.Conn.Close()
	}
}

// -----------------------------------------------------------------------------

// Snapshot returns the status of every running pipeline, sorted by symbol.
func (o *Orchestrator) Snapshot() []models.MPipelineStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]models.MPipelineStatus, 0, len(o.pipelines))
	for symbol, p := range o.pipelines {
		st := p.status()
		st.Subscribers = o.broadcaster.SubscriberCount(symbol)
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) PipelineCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.pipelines)
}

// -----------------------------------------------------------------------------

// History reads bars for symbol independently of any pipeline.
func (o *Orchestrator) History(ctx context.Context, symbol, interval string) []models.MBar {
	if interval == "" {
		interval = o.cfg.Interval
	}
	return o.history.FetchHistory(ctx, symbol, interval, o.cfg.Lookback)
}

// -----------------------------------------------------------------------------

// Shutdown cancels every pipeline, closes their connections and waits for the
// pipeline goroutines or ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	var handles []broadcast.SubscriptionHandle
	for _, p := range o.pipelines {
		o.removeLocked(p, "shutdown")
		handles = append(handles, o.broadcaster.CloseTopic(p.symbol)...)
	}
	o.mu.Unlock()

	for _, h := range handles {
		h.Conn.Close()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------
// Pipeline loop
// -----------------------------------------------------------------------------

func (o *Orchestrator) run(p *pipeline) {
	defer o.wg.Done()

	engine := strategy.NewUTBotStrategy(o.cfg.ATRPeriod, o.cfg.Multiplier)

	history := o.history.FetchHistory(p.ctx, p.symbol, o.cfg.Interval, o.cfg.Lookback)
	engine.Warmup(history)
	if p.ctx.Err() != nil {
		return
	}

	startPrice := 0.0
	if n := len(history); n > 0 {
		startPrice = history[n-1].Close
	}
	p.update(engine, nil)
	p.setPhase(models.PhaseStreaming)
	o.Logger.Info("Pipeline %s warmed up on %d bars (position %s, stop %.2f)", p.symbol, len(history), engine.Position(), engine.StopValue())

	live := o.newLive(p.symbol, startPrice)
	bars := make(chan models.MBar)
	errCh := make(chan error, 1)
	go func() {
		errCh <- live.Run(p.ctx, bars)
	}()

	for {
		select {
		case <-p.ctx.Done():
			<-errCh
			return

		case err := <-errCh:
			if p.ctx.Err() != nil {
				return
			}
			if err == nil {
				err = errLiveSourceEnd
			}
			o.Logger.Error("Pipeline %s live source failed: %v", p.symbol, err)
			metrics.PipelineErrors.WithLabelValues(p.symbol).Inc()
			o.terminate(p, err)
			return

		case bar := <-bars:
			enriched, sig, ok := o.process(p, engine, bar)
			if !ok {
				continue
			}
			if !o.publish(p, enriched) {
				<-errCh
				return
			}
			o.execute(enriched, sig)
		}
	}
}

// -----------------------------------------------------------------------------

// process runs one bar through the engine. A panic drops that bar only.
func (o *Orchestrator) process(p *pipeline, engine *strategy.UTBotStrategy, bar models.MBar) (enriched models.MEnrichedBar, sig models.MSignal, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.Logger.Error("Pipeline %s dropped bar %d: %v", p.symbol, bar.Timestamp, r)
			ok = false
		}
	}()

	sig = engine.ProcessBar(bar)
	enriched = models.MEnrichedBar{
		MBar:      bar,
		Action:    sig.Action,
		StopPrice: sig.StopPrice,
		Position:  engine.Position(),
	}
	p.update(engine, &bar)
	return enriched, sig, true
}

// -----------------------------------------------------------------------------

// publish delivers enriched to the symbol's subscribers while p is still the
// registered pipeline. It returns false once p has been replaced or removed.
func (o *Orchestrator) publish(p *pipeline, enriched models.MEnrichedBar) bool {
	o.mu.RLock()
	if o.pipelines[p.symbol] != p {
		o.mu.RUnlock()
		return false
	}
	// connection sends are non-blocking, so holding the read lock is short
	res := o.broadcaster.Publish(p.symbol, enriched)
	o.mu.RUnlock()

	p.published()
	metrics.BarsPublished.WithLabelValues(p.symbol).Inc()

	if len(res.Pruned) > 0 {
		o.mu.Lock()
		if o.broadcaster.SubscriberCount(p.symbol) == 0 {
			o.removeLocked(p, "all subscribers pruned")
		}
		o.mu.Unlock()
	}
	return true
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) execute(bar models.MEnrichedBar, sig models.MSignal) {
	if sig.Action == models.ActionHold {
		return
	}
	metrics.Signals.WithLabelValues(bar.Symbol, string(sig.Action)).Inc()
	o.Logger.Info("%s %s @ %.2f stop %.2f", sig.Action, bar.Symbol, bar.Close, sig.StopPrice)

	if o.executor == nil {
		return
	}
	o.executor.Submit(models.MTradeSignal{
		Symbol:    bar.Symbol,
		Dataset:   bar.Dataset,
		Action:    sig.Action,
		Price:     sig.EntryPrice,
		StopPrice: sig.StopPrice,
		Position:  bar.Position,
		BarTime:   bar.Timestamp,
		CreatedAt: time.Now().UTC(),
	})
}

// -----------------------------------------------------------------------------
// pipeline
// -----------------------------------------------------------------------------

// pipeline is the per-symbol state. The engine itself lives only on the run
// goroutine; the fields below mirror it for Snapshot.
type pipeline struct {
	symbol string
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	startedAt     time.Time
	phase         string
	position      models.Position
	stopValue     float64
	barsPublished int64
	lastBar       *models.MBar
}

func (p *pipeline) setPhase(phase string) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

func (p *pipeline) update(engine *strategy.UTBotStrategy, bar *models.MBar) {
	p.mu.Lock()
	p.position = engine.Position()
	p.stopValue = engine.StopValue()
	if bar != nil {
		b := *bar
		p.lastBar = &b
	}
	p.mu.Unlock()
}

func (p *pipeline) published() {
	p.mu.Lock()
	p.barsPublished++
	p.mu.Unlock()
}

func (p *pipeline) status() models.MPipelineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := models.MPipelineStatus{
		Symbol:        p.symbol,
		Phase:         p.phase,
		Position:      p.position,
		StopValue:     p.stopValue,
		BarsPublished: p.barsPublished,
		StartedAt:     p.startedAt,
	}
	if p.lastBar != nil {
		b := *p.lastBar
		st.LastBar = &b
	}
	return st
}
