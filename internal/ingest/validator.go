package ingest

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Validator rejects malformed or stale kline events before they reach the
// feature engine. Tracks the last accepted close per symbol to evaluate the
// price-jump rule.
type Validator struct {
	mu          sync.Mutex
	lastClose   map[string]float64
	maxJumpPct  float64
	wallClockTolerance time.Duration
	latencyTolerance   time.Duration
	rejected    int64
}

// NewValidator creates a validator. maxJumpPct is expressed as a fraction
// (0.20 = 20%).
func NewValidator(maxJumpPct float64, wallClockTolerance, latencyTolerance time.Duration) *Validator {
	return &Validator{
		lastClose:          make(map[string]float64),
		maxJumpPct:         maxJumpPct,
		wallClockTolerance: wallClockTolerance,
		latencyTolerance:   latencyTolerance,
	}
}

// DefaultValidator applies spec defaults: 20% jump, 60s wall-clock skew,
// timestampTolerance passed by the caller (default per-symbol config).
func DefaultValidator(timestampTolerance time.Duration) *Validator {
	return NewValidator(0.20, 60*time.Second, timestampTolerance)
}

// Validate checks a kline event for structural and staleness violations. It
// never mutates lastClose for a rejected event.
func (v *Validator) Validate(now time.Time, e MarketDataEvent) error {
	if e.Kind != KindKline {
		return nil
	}
	if !isFinite(e.High) || !isFinite(e.Low) || !isFinite(e.Open) || !isFinite(e.Close) {
		return v.reject("non-finite OHLC")
	}
	if e.High < e.Low {
		return v.reject("high < low")
	}
	if e.Close < e.Low || e.Close > e.High {
		return v.reject("close outside [low, high]")
	}
	if e.Open < e.Low || e.Open > e.High {
		return v.reject("open outside [low, high]")
	}
	if e.High <= 0 || e.Low <= 0 || e.Close <= 0 || e.Open <= 0 {
		return v.reject("non-positive price")
	}

	skew := now.Sub(e.ExchangeTS)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.wallClockTolerance {
		return v.reject("timestamp skew exceeds wall-clock tolerance")
	}

	latency := e.ReceivedTS.Sub(e.ExchangeTS)
	if v.latencyTolerance > 0 && latency > v.latencyTolerance {
		return v.reject("latency exceeds tolerance")
	}

	v.mu.Lock()
	last, ok := v.lastClose[e.Symbol]
	v.mu.Unlock()
	if ok && last > 0 {
		jump := math.Abs(e.Close-last) / last
		if jump > v.maxJumpPct {
			return v.reject(fmt.Sprintf("price jump %.2f%% exceeds max", jump*100))
		}
	}

	v.mu.Lock()
	v.lastClose[e.Symbol] = e.Close
	v.mu.Unlock()
	return nil
}

func (v *Validator) reject(reason string) error {
	v.mu.Lock()
	v.rejected++
	v.mu.Unlock()
	return fmt.Errorf("rejected kline: %s", reason)
}

// Rejected returns the cumulative count of rejected events.
func (v *Validator) Rejected() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rejected
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
