// Package execution hands BUY/SELL signals to the configured order sinks.
package execution

import (
	"context"
	"sync"

	"signal-streamer/src/logger"
	"signal-streamer/src/metrics"
	"signal-streamer/src/models"
)

// Sink receives trade signals. Errors are logged by the dispatcher and never
// retried.
type Sink interface {
	Name() string
	Handle(ctx context.Context, sig models.MTradeSignal) error
}

// -----------------------------------------------------------------------------
// Dispatcher
// -----------------------------------------------------------------------------

// Dispatcher runs sinks on a single worker fed by a bounded queue, so a slow
// sink never stalls a pipeline.
type Dispatcher struct {
	sinks  []Sink
	queue  chan models.MTradeSignal
	Logger *logger.Logger

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	started bool
}

// -----------------------------------------------------------------------------

func NewDispatcher(queueSize int, log *logger.Logger, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		sinks:  sinks,
		queue:  make(chan models.MTradeSignal, queueSize),
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

// Start launches the worker. It drains the queue after Stop closes it.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for sig := range d.queue {
			d.dispatch(ctx, sig)
		}
	}()
}

// -----------------------------------------------------------------------------

func (d *Dispatcher) dispatch(ctx context.Context, sig models.MTradeSignal) {
	for _, s := range d.sinks {
		if err := s.Handle(ctx, sig); err != nil {
			d.Logger.Error("Sink %s failed for %s %s: %v", s.Name(), sig.Action, sig.Symbol, err)
		}
	}
}

// -----------------------------------------------------------------------------

// Submit enqueues sig without blocking. It returns false when the queue is
// full or the dispatcher is stopped.
func (d *Dispatcher) Submit(sig models.MTradeSignal) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || len(d.sinks) == 0 {
		return false
	}

	select {
	case d.queue <- sig:
		return true
	default:
		metrics.ExecutionDropped.Inc()
		d.Logger.Warning("Execution queue full, dropping %s %s", sig.Action, sig.Symbol)
		return false
	}
}

// -----------------------------------------------------------------------------

// Stop closes the queue and waits for the worker to drain it or for ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
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

func (d *Dispatcher) SinkNames() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}
