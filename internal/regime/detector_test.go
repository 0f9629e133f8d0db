package regime

import (
	"testing"

	"github.com/autobot/engine/internal/domain"
)

func TestStickyUntilConfirmed(t *testing.T) {
	d := New(DefaultParams())

	r, _ := d.Classify("BTCUSDT", domain.FeatureSnapshot{ADX: 30, EMA20AboveEMA50: true})
	if r != domain.RegimeUnknown {
		t.Fatalf("expected UNKNOWN on first observation, got %s", r)
	}
	r, _ = d.Classify("BTCUSDT", domain.FeatureSnapshot{ADX: 30, EMA20AboveEMA50: true})
	if r != domain.RegimeUnknown {
		t.Fatalf("expected UNKNOWN on second observation, got %s", r)
	}
	r, _ = d.Classify("BTCUSDT", domain.FeatureSnapshot{ADX: 30, EMA20AboveEMA50: true})
	if r != domain.RegimeBullTrend {
		t.Fatalf("expected BULL_TREND after 3 confirming observations, got %s", r)
	}
}

func TestRegimeRetainedWhenNoneConfirm(t *testing.T) {
	d := New(DefaultParams())
	for i := 0; i < 3; i++ {
		d.Classify("BTCUSDT", domain.FeatureSnapshot{ADX: 30, EMA20AboveEMA50: true})
	}
	r, _ := d.Classify("BTCUSDT", domain.FeatureSnapshot{ADX: 22, EMA20AboveEMA50: false})
	if r != domain.RegimeBullTrend {
		t.Fatalf("expected sticky BULL_TREND retained, got %s", r)
	}
}

func TestVolatilityClassification(t *testing.T) {
	d := New(DefaultParams())
	_, vol := d.Classify("BTCUSDT", domain.FeatureSnapshot{ADX: 10, Close: 100, ATR: 2})
	if vol != domain.VolatilityHigh {
		t.Fatalf("expected HIGH volatility, got %s", vol)
	}
	_, vol = d.Classify("ETHUSDT", domain.FeatureSnapshot{ADX: 10, Close: 100, ATR: 0.1})
	if vol != domain.VolatilityLow {
		t.Fatalf("expected LOW volatility, got %s", vol)
	}
}
