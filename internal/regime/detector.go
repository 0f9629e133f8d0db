// Package regime implements the sticky, k-confirmation regime classifier
// (C6): maps a FeatureSnapshot to {BULL_TREND, BEAR_TREND, RANGE, UNKNOWN}
// plus a volatility class, requiring several consecutive confirming
// observations before flipping — grounded on the teacher's EMA-cross trend
// check together with the confirmation-length rule spec.md prescribes.
package regime

import (
	"sync"

	"github.com/autobot/engine/internal/domain"
	"github.com/autobot/engine/internal/logging"
)

// Params are the confirmation lengths and ADX thresholds used by the
// classifier.
type Params struct {
	KBull  int
	KBear  int
	KRange int

	TrendADXThreshold  float64
	RangeADXThreshold  float64

	HighVolATRPct float64
	LowVolATRPct  float64
}

// DefaultParams mirrors the confirmation lengths and thresholds spec.md
// names as the baseline.
func DefaultParams() Params {
	return Params{
		KBull:             3,
		KBear:             3,
		KRange:            3,
		TrendADXThreshold: 25,
		RangeADXThreshold: 20,
		HighVolATRPct:     1.5,
		LowVolATRPct:      0.5,
	}
}

type observation struct {
	adx             float64
	ema20AboveEma50 bool
}

type symbolHistory struct {
	mu      sync.Mutex
	obs     []observation
	current domain.Regime
}

// Detector tracks per-symbol regime history.
type Detector struct {
	params  Params
	mu      sync.Mutex
	symbols map[string]*symbolHistory
	log     *logging.Logger
}

// New creates a regime detector with params.
func New(params Params) *Detector {
	return &Detector{params: params, symbols: make(map[string]*symbolHistory), log: logging.WithComponent("regime")}
}

func (d *Detector) history(symbol string) *symbolHistory {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.symbols[symbol]
	if !ok {
		h = &symbolHistory{current: domain.RegimeUnknown}
		d.symbols[symbol] = h
	}
	return h
}

const maxObsHistory = 10

// Classify updates symbol's regime history with features and returns the
// (possibly unchanged) regime and volatility class.
func (d *Detector) Classify(symbol string, features domain.FeatureSnapshot) (domain.Regime, domain.VolatilityRegime) {
	h := d.history(symbol)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.obs = append(h.obs, observation{adx: features.ADX, ema20AboveEma50: features.EMA20AboveEMA50})
	if len(h.obs) > maxObsHistory {
		h.obs = h.obs[len(h.obs)-maxObsHistory:]
	}

	next := d.evaluateLocked(h)
	if next != h.current {
		d.log.WithField("symbol", symbol).WithField("from", h.current).WithField("to", next).
			Info("regime transition")
		h.current = next
	}

	return h.current, classifyVolatility(d.params, features.ATRPct())
}

func (d *Detector) evaluateLocked(h *symbolHistory) domain.Regime {
	if lastN(h.obs, d.params.KBull, func(o observation) bool {
		return o.adx > d.params.TrendADXThreshold && o.ema20AboveEma50
	}) {
		return domain.RegimeBullTrend
	}
	if lastN(h.obs, d.params.KBear, func(o observation) bool {
		return o.adx > d.params.TrendADXThreshold && !o.ema20AboveEma50
	}) {
		return domain.RegimeBearTrend
	}
	if lastN(h.obs, d.params.KRange, func(o observation) bool {
		return o.adx < d.params.RangeADXThreshold
	}) {
		return domain.RegimeRange
	}
	return h.current
}

// lastN reports whether the last n observations all satisfy pred. Returns
// false if fewer than n observations exist.
func lastN(obs []observation, n int, pred func(observation) bool) bool {
	if n <= 0 || len(obs) < n {
		return false
	}
	window := obs[len(obs)-n:]
	for _, o := range window {
		if !pred(o) {
			return false
		}
	}
	return true
}

func classifyVolatility(p Params, atrPct float64) domain.VolatilityRegime {
	if atrPct > p.HighVolATRPct {
		return domain.VolatilityHigh
	}
	if atrPct < p.LowVolATRPct {
		return domain.VolatilityLow
	}
	return domain.VolatilityNormal
}

// Current returns the last classified regime for symbol without recording
// a new observation; defaults to UNKNOWN.
func (d *Detector) Current(symbol string) domain.Regime {
	h := d.history(symbol)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}
