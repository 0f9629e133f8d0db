package state

import (
	"testing"
	"time"

	"github.com/autobot/engine/internal/domain"
)

func TestRoundTripPreservesValues(t *testing.T) {
	original := domain.NewSystemState(10000)
	original.Equity = 10500
	original.PeakEquity = 11000
	original.CurrentDrawdownPct = 4.5
	original.DailyPnL = 250
	original.DailyPnLPct = 2.5
	original.TotalTrades = 10
	original.WinningTrades = 7
	original.LosingTrades = 3
	original.SymbolRegimes["BTCUSDT"] = domain.RegimeBullTrend
	original.StrategyWeights["ema_cross_bull"] = 1.2
	original.OpenPositions["BTCUSDT"] = &domain.Position{
		Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 0.5,
		EntryPrice: 50000, StopLossPrice: 49000, InitialStopLoss: 49000,
		EntryTime: time.Now().Truncate(time.Second),
		RegimeAtEntry: domain.RegimeBullTrend,
	}

	roundTripped := fromPersisted(toPersisted(original))

	if roundTripped.Equity != original.Equity || roundTripped.PeakEquity != original.PeakEquity {
		t.Fatalf("equity/peak mismatch: %+v vs %+v", roundTripped, original)
	}
	if roundTripped.CurrentDrawdownPct != original.CurrentDrawdownPct {
		t.Fatalf("drawdown mismatch")
	}
	pos, ok := roundTripped.OpenPositions["BTCUSDT"]
	if !ok {
		t.Fatalf("expected BTCUSDT position to survive round-trip")
	}
	if pos.Quantity != 0.5 || pos.EntryPrice != 50000 || pos.Side != domain.SideLong {
		t.Fatalf("position mismatch: %+v", pos)
	}
	if roundTripped.SymbolRegimes["BTCUSDT"] != domain.RegimeBullTrend {
		t.Fatalf("regime mismatch")
	}
}

func TestDrawdownNeverNegativeAndPeakMonotonic(t *testing.T) {
	s := domain.NewSystemState(1000)
	s.Equity = 1200
	s.RecomputeDrawdown()
	if s.PeakEquity != 1200 {
		t.Fatalf("expected peak to rise to 1200, got %v", s.PeakEquity)
	}
	if s.CurrentDrawdownPct != 0 {
		t.Fatalf("expected zero drawdown at new peak, got %v", s.CurrentDrawdownPct)
	}

	s.Equity = 1000
	s.RecomputeDrawdown()
	if s.PeakEquity != 1200 {
		t.Fatalf("expected peak to remain 1200, got %v", s.PeakEquity)
	}
	if s.CurrentDrawdownPct <= 0 {
		t.Fatalf("expected positive drawdown, got %v", s.CurrentDrawdownPct)
	}
}
