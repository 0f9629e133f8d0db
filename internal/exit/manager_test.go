package exit

import (
	"testing"
	"time"

	"github.com/autobot/engine/internal/domain"
)

func agedPosition() domain.Position {
	return domain.Position{
		Symbol:          "BTCUSDT",
		Side:            domain.SideLong,
		Quantity:        1,
		EntryPrice:      50000,
		StopLossPrice:   49000,
		InitialStopLoss: 49000,
		EntryTime:       time.Now().Add(-time.Hour),
	}
}

func TestStopLossWinsOverEverything(t *testing.T) {
	m := New(DefaultParams())
	p := agedPosition()
	f := domain.FeatureSnapshot{Close: 48900, ADX: 18, High20: 60000, Low20: 40000}

	d := m.Evaluate(p, f, domain.RegimeBullTrend, time.Unix(1000, 0))
	if d.Hold {
		t.Fatalf("expected exit decision, got hold")
	}
	if d.Reason != ReasonStopLoss || d.Urgency != UrgencyImmediate {
		t.Fatalf("expected STOP_LOSS/IMMEDIATE, got %+v", d)
	}
}

func TestAgeGuardHolds(t *testing.T) {
	m := New(DefaultParams())
	p := agedPosition()
	p.EntryTime = time.Now()
	f := domain.FeatureSnapshot{Close: 48000, High20: 60000, Low20: 40000}

	d := m.Evaluate(p, f, domain.RegimeBullTrend, time.Unix(1000, 0))
	if !d.Hold {
		t.Fatalf("expected hold within age guard window, got %+v", d)
	}
}

func TestIdempotentWithinSameBar(t *testing.T) {
	m := New(DefaultParams())
	p := agedPosition()
	f := domain.FeatureSnapshot{Close: 48900, High20: 60000, Low20: 40000}

	bar := time.Unix(2000, 0)
	d1 := m.Evaluate(p, f, domain.RegimeBullTrend, bar)
	// Mutate inputs; the cached decision for the same bar must not change.
	f.Close = 51000
	d2 := m.Evaluate(p, f, domain.RegimeBullTrend, bar)

	if d1 != d2 {
		t.Fatalf("expected idempotent decision within same bar, got %+v vs %+v", d1, d2)
	}
}

func TestRegimeChangeExit(t *testing.T) {
	m := New(DefaultParams())
	p := agedPosition()
	p.StopLossPrice = 10000 // far away, won't trigger stop-loss
	f := domain.FeatureSnapshot{Close: 50500, High20: 60000, Low20: 40000}

	d := m.Evaluate(p, f, domain.RegimeRange, time.Unix(3000, 0))
	if d.Hold || d.Reason != ReasonRegimeChange {
		t.Fatalf("expected REGIME_CHANGE, got %+v", d)
	}
}

func TestTrailingStopNeverMovesUnfavorably(t *testing.T) {
	p := agedPosition()
	p.CurrentPrice = 50100 // small profit, below break-even threshold

	update := UpdateTrailingStop(&p, 1.0, 0.5)
	if update.Moved {
		t.Fatalf("expected no stop movement below break-even threshold, got %+v", update)
	}
	if p.StopLossPrice != 49000 {
		t.Fatalf("expected stop unchanged at 49000, got %v", p.StopLossPrice)
	}
}

func TestTrailingStopMovesToBreakEven(t *testing.T) {
	p := agedPosition()
	p.CurrentPrice = 51000 // 2% profit

	update := UpdateTrailingStop(&p, 1.0, 0.5)
	if !update.Moved || !update.BreakEven {
		t.Fatalf("expected break-even stop move, got %+v", update)
	}
	if p.StopLossPrice != p.EntryPrice {
		t.Fatalf("expected stop at entry price, got %v", p.StopLossPrice)
	}
}
