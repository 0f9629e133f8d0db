package metrics

import "testing"

func TestNewRegistersAllMetricsWithoutPanicking(t *testing.T) {
	r := New()
	r.EventsIngested.WithLabelValues("BTCUSDT", "KLINE").Inc()
	r.EventsRejected.WithLabelValues("BTCUSDT", "validation").Inc()
	r.IngestLatencyMS.Observe(42)
	r.ReconnectsTotal.WithLabelValues("BTCUSDT").Inc()
	r.SignalsEvaluated.WithLabelValues("PROPOSE_LONG").Inc()
	r.VetoesTotal.WithLabelValues("adx_gate").Inc()
	r.ExitsTotal.WithLabelValues("STOP_LOSS").Inc()
	r.Equity.Set(10000)
	r.DrawdownPct.Set(2.5)
	r.OpenPositions.Set(3)
	r.CacheHits.WithLabelValues("klines").Inc()
	r.CacheMisses.WithLabelValues("klines").Inc()

	if r.Handler() == nil {
		t.Fatalf("expected a non-nil metrics handler")
	}
}

func TestNewReturnsIndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.Equity.Set(100)
	b.Equity.Set(200)
	// Each Registry owns its own prometheus.Registry, so a gauge set on one
	// is not registered with the other.
	if a.reg == b.reg {
		t.Fatalf("expected distinct prometheus registries for distinct Registry values")
	}
}
