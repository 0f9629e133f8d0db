package rules

import (
	"reflect"
	"testing"

	"github.com/autobot/engine/internal/domain"
)

func TestPurity(t *testing.T) {
	e := New(0.7)
	features := domain.FeatureSnapshot{Close: 100, EMA20AboveEMA50: true, Breakout20Long: true}
	weights := map[string]float64{}

	r1 := e.Evaluate("BTCUSDT", features, domain.RegimeBullTrend, weights)
	r2 := e.Evaluate("BTCUSDT", features, domain.RegimeBullTrend, weights)

	if !reflect.DeepEqual(r1.Signal, r2.Signal) {
		t.Fatalf("expected pure evaluation, got %+v vs %+v", r1.Signal, r2.Signal)
	}
}

func TestActivationThresholdEqualToBiasIsDirectional(t *testing.T) {
	e := New(0.3)
	// In RANGE only the mean-reversion rules run, and with these features
	// only rsi_reversal (+0.3) fires, so the bias equals the threshold.
	features := domain.FeatureSnapshot{Close: 100, RSI: 20, BBLower: 50, BBUpper: 200, StochK: 50, StochD: 50}
	result := e.Evaluate("BTCUSDT", features, domain.RegimeRange, nil)

	if result.Signal.Action == domain.ActionNeutral {
		t.Fatalf("expected directional action at bias == threshold, got NEUTRAL (bias=%v)", result.Signal.BiasScore)
	}
}

func TestSidewaysVetoSkipsTrendRulesInRange(t *testing.T) {
	e := New(0.7)
	features := domain.FeatureSnapshot{Close: 100, EMA20AboveEMA50: true, Breakout20Long: true}
	result := e.Evaluate("BTCUSDT", features, domain.RegimeRange, nil)

	foundVeto := false
	for _, v := range result.Vetoed {
		if v.Reason == VetoTrendNotAllowedInRange || v.Reason == VetoBreakoutNotAllowedInRange {
			foundVeto = true
		}
	}
	if !foundVeto {
		t.Fatalf("expected trend/breakout rules vetoed in RANGE, got %+v", result.Vetoed)
	}
}

func TestBearTrendVetoesLongBreakout(t *testing.T) {
	e := New(0.7)
	features := domain.FeatureSnapshot{Close: 100, Breakout20Long: true}
	result := e.Evaluate("BTCUSDT", features, domain.RegimeBearTrend, nil)

	for _, v := range result.Vetoed {
		if v.Rule == "donchian_breakout_long" && v.Reason != VetoLongBreakoutNotAllowedBear && v.Reason != VetoRegimeNotAllowed {
			t.Fatalf("unexpected veto reason for long breakout in bear trend: %s", v.Reason)
		}
	}
}
