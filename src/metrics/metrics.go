// Package metrics registers the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActivePipelines = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "streamer_active_pipelines", Help: "Symbol pipelines currently running"},
	)
	Subscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "streamer_subscribers", Help: "Subscribers per symbol"},
		[]string{"symbol"},
	)
	BarsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "streamer_bars_published_total", Help: "Enriched bars published"},
		[]string{"symbol"},
	)
	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "streamer_signals_total", Help: "Trade signals emitted"},
		[]string{"symbol", "action"},
	)
	SendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "streamer_send_failures_total", Help: "Subscriber sends that failed and were pruned"},
		[]string{"symbol"},
	)
	HistoryFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "streamer_history_fallbacks_total", Help: "History requests served from synthetic data"},
		[]string{"reason"},
	)
	LiveFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "streamer_live_fallbacks_total", Help: "Live sessions switched to synthetic data"},
		[]string{"symbol"},
	)
	PipelineErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "streamer_pipeline_errors_total", Help: "Pipelines torn down by a terminal error"},
		[]string{"symbol"},
	)
	ExecutionDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "streamer_execution_dropped_total", Help: "Trade signals dropped because the execution queue was full"},
	)
)

func init() {
	prometheus.MustRegister(
		ActivePipelines,
		Subscribers,
		BarsPublished,
		Signals,
		SendFailures,
		HistoryFallbacks,
		LiveFallbacks,
		PipelineErrors,
		ExecutionDropped,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
