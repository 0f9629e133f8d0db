// Package metrics exposes the engine's Prometheus instrumentation: stream
// ingest throughput and latency, veto/exit counts, and account-level
// gauges the event orchestrator updates on every state mutation. Grounded
// on the ecosystem's standard promauto registration idiom (the teacher
// itself carries no metrics layer; this concern is built from the pack's
// general Prometheus usage rather than any single teacher file).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the engine updates, all registered against
// a dedicated prometheus.Registry rather than the global default so tests
// can construct isolated instances.
type Registry struct {
	reg *prometheus.Registry

	EventsIngested   *prometheus.CounterVec
	EventsRejected   *prometheus.CounterVec
	IngestLatencyMS  prometheus.Histogram
	ReconnectsTotal  *prometheus.CounterVec

	SignalsEvaluated *prometheus.CounterVec
	VetoesTotal      *prometheus.CounterVec
	ExitsTotal       *prometheus.CounterVec

	Equity       prometheus.Gauge
	DrawdownPct  prometheus.Gauge
	OpenPositions prometheus.Gauge

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New builds a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_ingest_events_total",
			Help: "Market data events accepted by the stream ingest validator, by symbol and kind.",
		}, []string{"symbol", "kind"}),
		EventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_ingest_events_rejected_total",
			Help: "Market data events dropped by the stream ingest validator, by symbol and reason.",
		}, []string{"symbol", "reason"}),
		IngestLatencyMS: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "autobot_ingest_latency_milliseconds",
			Help:    "Exchange-to-receipt latency of accepted market data events.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		ReconnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_ingest_reconnects_total",
			Help: "WebSocket shard reconnect attempts.",
		}, []string{"shard"}),
		SignalsEvaluated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_signals_evaluated_total",
			Help: "Trade signals produced by the rule engine, by action.",
		}, []string{"action"}),
		VetoesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_vetoes_total",
			Help: "Proposed trades rejected by the pre-trade veto chain, by stage.",
		}, []string{"stage"}),
		ExitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_exits_total",
			Help: "Position exits triggered, by reason.",
		}, []string{"reason"}),
		Equity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "autobot_equity_usdt",
			Help: "Current account equity in USDT.",
		}),
		DrawdownPct: factory.NewGauge(prometheus.GaugeOpts{
			Name: "autobot_drawdown_pct",
			Help: "Current drawdown from peak equity, as a percentage.",
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "autobot_open_positions",
			Help: "Number of currently open positions.",
		}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_market_data_cache_hits_total",
			Help: "Market data cache lookups served from cache, by cache type.",
		}, []string{"cache_type"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_market_data_cache_misses_total",
			Help: "Market data cache lookups that missed or were stale, by cache type.",
		}, []string{"cache_type"}),
	}
}

// Handler returns the HTTP handler to expose at a /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
