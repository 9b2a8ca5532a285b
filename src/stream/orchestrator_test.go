package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signal-streamer/src/broadcast"
	"signal-streamer/src/interfaces"
	"signal-streamer/src/logger"
	"signal-streamer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// fakes
// -----------------------------------------------------------------------------

type fakeHistory struct {
	mu    sync.Mutex
	calls int
	bars  []models.MBar
}

func (h *fakeHistory) FetchHistory(ctx context.Context, symbol, interval string, lookback time.Duration) []models.MBar {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	out := make([]models.MBar, len(h.bars))
	for i, b := range h.bars {
		b.Symbol = symbol
		out[i] = b
	}
	return out
}

func (h *fakeHistory) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type fakeLive struct {
	symbol     string
	startPrice float64
	bars       chan models.MBar
	fail       chan error
	stopped    chan struct{}
}

func (f *fakeLive) Run(ctx context.Context, out chan<- models.MBar) error {
	defer close(f.stopped)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-f.fail:
			return err
		case b := <-f.bars:
			select {
			case out <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

type liveFactory struct {
	started chan *fakeLive
}

func newLiveFactory() *liveFactory {
	return &liveFactory{started: make(chan *fakeLive, 8)}
}

func (f *liveFactory) build(symbol string, startPrice float64) interfaces.ILiveSource {
	l := &fakeLive{
		symbol:     symbol,
		startPrice: startPrice,
		bars:       make(chan models.MBar),
		fail:       make(chan error, 1),
		stopped:    make(chan struct{}),
	}
	f.started <- l
	return l
}

func (f *liveFactory) next(t *testing.T) *fakeLive {
	t.Helper()
	select {
	case l := <-f.started:
		return l
	case <-time.After(2 * time.Second):
		t.Fatal("live source was not started")
		return nil
	}
}

type fakeConn struct {
	id       string
	failing  bool
	messages chan interface{}
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, messages: make(chan interface{}, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg interface{}) error {
	if c.failing {
		return errors.New("connection gone")
	}
	select {
	case c.messages <- msg:
		return nil
	default:
		return errors.New("buffer full")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) next(t *testing.T) interface{} {
	t.Helper()
	select {
	case m := <-c.messages:
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("%s received nothing", c.id)
		return nil
	}
}

type fakeExecutor struct {
	mu  sync.Mutex
	got []models.MTradeSignal
}

func (e *fakeExecutor) Submit(sig models.MTradeSignal) bool {
	e.mu.Lock()
	e.got = append(e.got, sig)
	e.mu.Unlock()
	return true
}

func (e *fakeExecutor) signals() []models.MTradeSignal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.MTradeSignal(nil), e.got...)
}

// -----------------------------------------------------------------------------

// risingHistory leaves a period-3 engine LONG with its stop near 117.5.
func risingHistory() []models.MBar {
	bars := make([]models.MBar, 20)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = models.MBar{Dataset: models.SimulationDataset, Timestamp: int64(1718208000 + 60*i), Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 100}
	}
	return bars
}

func liveBar(symbol string, ts int64, c float64) models.MBar {
	return models.MBar{Symbol: symbol, Dataset: models.SimulationDataset, Timestamp: ts, Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 100}
}

type harness struct {
	orch     *Orchestrator
	history  *fakeHistory
	factory  *liveFactory
	executor *fakeExecutor
	bcast    *broadcast.Broadcaster
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		history:  &fakeHistory{bars: risingHistory()},
		factory:  newLiveFactory(),
		executor: &fakeExecutor{},
		bcast:    broadcast.NewBroadcaster(logger.NewNopLogger()),
	}
	h.orch = NewOrchestrator(Config{Interval: "1m", ATRPeriod: 3, Multiplier: 1}, h.history, h.factory.build, h.bcast, h.executor, logger.NewNopLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.orch.Shutdown(ctx)
	})
	return h
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func closedWithin(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

// -----------------------------------------------------------------------------
// tests
// -----------------------------------------------------------------------------

func TestSharedPipelinePerSymbol(t *testing.T) {
	h := newHarness(t)
	a, b := newFakeConn("a"), newFakeConn("b")

	require.NoError(t, h.orch.Attach("TSLA", a))
	live := h.factory.next(t)
	require.NoError(t, h.orch.Attach("TSLA", b))

	assert.Equal(t, 1, h.history.callCount())
	assert.Equal(t, 1, h.orch.PipelineCount())
	assert.Equal(t, 119.0, live.startPrice)
	select {
	case <-h.factory.started:
		t.Fatal("second attach started another live source")
	default:
	}

	live.bars <- liveBar("TSLA", 1718209200, 120)
	fromA, fromB := a.next(t), b.next(t)
	assert.Equal(t, fromA, fromB)

	bar := fromA.(models.MEnrichedBar)
	assert.Equal(t, "TSLA", bar.Symbol)
	assert.Equal(t, models.ActionHold, bar.Action)
	assert.Equal(t, models.PositionLong, bar.Position)
	assert.Greater(t, bar.StopPrice, 0.0)
}

func TestWarmupOutputIsNotPublished(t *testing.T) {
	h := newHarness(t)
	a := newFakeConn("a")

	require.NoError(t, h.orch.Attach("ES", a))
	h.factory.next(t)

	assert.Len(t, a.messages, 0)
	waitFor(t, func() bool {
		st := h.orch.Snapshot()
		return len(st) == 1 && st[0].Phase == models.PhaseStreaming
	})
	st := h.orch.Snapshot()[0]
	assert.Equal(t, models.PositionLong, st.Position)
	assert.Zero(t, st.BarsPublished)
	assert.Equal(t, 1, st.Subscribers)
}

func TestFlipIsPublishedAndExecuted(t *testing.T) {
	h := newHarness(t)
	a := newFakeConn("a")
	require.NoError(t, h.orch.Attach("TSLA", a))
	live := h.factory.next(t)

	live.bars <- liveBar("TSLA", 1718209200, 110)
	bar := a.next(t).(models.MEnrichedBar)
	assert.Equal(t, models.ActionSell, bar.Action)
	assert.Equal(t, models.PositionShort, bar.Position)
	assert.Greater(t, bar.StopPrice, 110.0)

	waitFor(t, func() bool { return len(h.executor.signals()) == 1 })
	sig := h.executor.signals()[0]
	assert.Equal(t, models.ActionSell, sig.Action)
	assert.Equal(t, 110.0, sig.Price)
	assert.Equal(t, models.PositionShort, sig.Position)
	assert.Equal(t, int64(1718209200), sig.BarTime)

	// holds are not executed
	live.bars <- liveBar("TSLA", 1718209260, 109)
	a.next(t)
	assert.Len(t, h.executor.signals(), 1)
}

func TestLastDetachCancelsLiveSource(t *testing.T) {
	h := newHarness(t)
	a, b := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, h.orch.Attach("NQ", a))
	live := h.factory.next(t)
	require.NoError(t, h.orch.Attach("NQ", b))

	h.orch.Detach("NQ", a)
	assert.Equal(t, 1, h.orch.PipelineCount())

	h.orch.Detach("NQ", b)
	assert.Zero(t, h.orch.PipelineCount())
	assert.True(t, closedWithin(live.stopped), "live source still running")
	assert.Empty(t, h.bcast.Topics())

	// a fresh attach builds a new pipeline with a new history fetch
	require.NoError(t, h.orch.Attach("NQ", a))
	h.factory.next(t)
	assert.Equal(t, 2, h.history.callCount())
}

func TestDetachUnknownIsNoop(t *testing.T) {
	h := newHarness(t)
	h.orch.Detach("ES", newFakeConn("ghost"))
	assert.Zero(t, h.orch.PipelineCount())
}

func TestTerminalErrorNotifiesAndDisconnects(t *testing.T) {
	h := newHarness(t)
	a, b := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, h.orch.Attach("ES", a))
	live := h.factory.next(t)
	require.NoError(t, h.orch.Attach("ES", b))

	live.fail <- errors.New("connection reset by peer")

	for _, c := range []*fakeConn{a, b} {
		msg := c.next(t).(models.MStreamError)
		assert.Equal(t, "error", msg.Type)
		assert.Equal(t, "ES", msg.Symbol)
		assert.Contains(t, msg.Error, "connection reset")
		assert.True(t, closedWithin(c.closed))
	}
	assert.Zero(t, h.orch.PipelineCount())
	assert.Zero(t, h.bcast.SubscriberCount("ES"))
}

func TestPrunedLastSubscriberStopsPipeline(t *testing.T) {
	h := newHarness(t)
	bad := newFakeConn("bad")
	bad.failing = true
	require.NoError(t, h.orch.Attach("ES", bad))
	live := h.factory.next(t)

	live.bars <- liveBar("ES", 1718209200, 120)
	assert.True(t, closedWithin(live.stopped))
	waitFor(t, func() bool { return h.orch.PipelineCount() == 0 })
}

func TestPrunedSubscriberDoesNotAffectOthers(t *testing.T) {
	h := newHarness(t)
	good, bad := newFakeConn("good"), newFakeConn("bad")
	bad.failing = true
	require.NoError(t, h.orch.Attach("ES", good))
	live := h.factory.next(t)
	require.NoError(t, h.orch.Attach("ES", bad))

	live.bars <- liveBar("ES", 1718209200, 120)
	good.next(t)
	live.bars <- liveBar("ES", 1718209260, 121)
	good.next(t)

	assert.Equal(t, 1, h.bcast.SubscriberCount("ES"))
	assert.Equal(t, 1, h.orch.PipelineCount())
}

func TestStopPipeline(t *testing.T) {
	h := newHarness(t)
	a := newFakeConn("a")
	require.NoError(t, h.orch.Attach("ES", a))
	live := h.factory.next(t)

	require.NoError(t, h.orch.StopPipeline("ES", "maintenance"))
	msg := a.next(t).(models.MStreamError)
	assert.Contains(t, msg.Error, "maintenance")
	assert.True(t, closedWithin(a.closed))
	assert.True(t, closedWithin(live.stopped))

	assert.ErrorIs(t, h.orch.StopPipeline("ES", ""), ErrNoPipeline)
}

func TestAttachValidation(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.orch.Attach("  ", newFakeConn("a")), ErrEmptySymbol)

	require.NoError(t, h.orch.Shutdown(context.Background()))
	assert.ErrorIs(t, h.orch.Attach("ES", newFakeConn("a")), ErrShutdown)
}

func TestShutdownStopsEverything(t *testing.T) {
	h := newHarness(t)
	a, b := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, h.orch.Attach("ES", a))
	liveES := h.factory.next(t)
	require.NoError(t, h.orch.Attach("NQ", b))
	liveNQ := h.factory.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.orch.Shutdown(ctx))

	assert.True(t, closedWithin(liveES.stopped))
	assert.True(t, closedWithin(liveNQ.stopped))
	assert.True(t, closedWithin(a.closed))
	assert.True(t, closedWithin(b.closed))
	assert.Empty(t, h.orch.Snapshot())
}

func TestSnapshotTracksLastBar(t *testing.T) {
	h := newHarness(t)
	a := newFakeConn("a")
	require.NoError(t, h.orch.Attach("ES", a))
	live := h.factory.next(t)

	live.bars <- liveBar("ES", 1718209200, 120)
	a.next(t)

	waitFor(t, func() bool {
		st := h.orch.Snapshot()
		return len(st) == 1 && st[0].BarsPublished == 1
	})
	st := h.orch.Snapshot()[0]
	require.NotNil(t, st.LastBar)
	assert.Equal(t, int64(1718209200), st.LastBar.Timestamp)
	assert.Equal(t, "ES", st.Symbol)
}

func TestHistoryReadIsIndependent(t *testing.T) {
	h := newHarness(t)
	bars := h.orch.History(context.Background(), "TSLA", "")
	assert.Len(t, bars, 20)
	assert.Zero(t, h.orch.PipelineCount())
}
