package risk

import (
	"testing"

	"github.com/autobot/engine/internal/domain"
)

func baseLimits() Limits {
	return Limits{
		MinADX:              25,
		MaxPositionSizeUSDT:  5000,
		MaxPositions:         5,
		MaxDrawdownPct:       15,
		DailyLossLimitPct:    3,
	}
}

func approvedFeatures(symbol string) domain.FeatureSnapshot {
	return domain.FeatureSnapshot{Symbol: symbol, ADX: 30}
}

func TestDailyLossHalt(t *testing.T) {
	c := New(baseLimits())
	state := domain.NewSystemState(10000)
	state.DailyPnLPct = -4.0

	signal := domain.TradeSignal{Symbol: "BTCUSDT", Action: domain.ActionProposeLong}
	result := c.Evaluate(signal, approvedFeatures("BTCUSDT"), 0.01, 50000, state)

	if result.Approved {
		t.Fatalf("expected rejection, got approval")
	}
	if result.Stage != StageDailyLoss {
		t.Fatalf("expected stage %s, got %s", StageDailyLoss, result.Stage)
	}
}

func TestDrawdownHalt(t *testing.T) {
	c := New(baseLimits())
	state := domain.NewSystemState(10000)
	state.CurrentDrawdownPct = 16.0

	signal := domain.TradeSignal{Symbol: "BTCUSDT", Action: domain.ActionProposeLong, BiasScore: 0.95, Confidence: 0.99}
	result := c.Evaluate(signal, approvedFeatures("BTCUSDT"), 0.01, 50000, state)

	if result.Approved || result.Stage != StageDrawdown {
		t.Fatalf("expected drawdown rejection, got %+v", result)
	}
	if len(state.OpenPositions) != 0 {
		t.Fatalf("state must not be mutated by a veto rejection")
	}
}

func TestMaxPositionsHalt(t *testing.T) {
	c := New(baseLimits())
	state := domain.NewSystemState(10000)
	for _, sym := range []string{"A", "B", "C", "D", "E"} {
		state.OpenPositions[sym] = &domain.Position{Symbol: sym, Side: domain.SideLong, Quantity: 1}
	}

	signal := domain.TradeSignal{Symbol: "XRPUSDT", Action: domain.ActionProposeLong}
	result := c.Evaluate(signal, approvedFeatures("XRPUSDT"), 1, 1, state)

	if result.Approved || result.Stage != StageMaxPositions {
		t.Fatalf("expected max_positions rejection, got %+v", result)
	}
}

func TestADXGateRejectsBelowMinimum(t *testing.T) {
	c := New(baseLimits())
	state := domain.NewSystemState(10000)

	signal := domain.TradeSignal{Symbol: "BTCUSDT", Action: domain.ActionProposeLong}
	features := domain.FeatureSnapshot{Symbol: "BTCUSDT", ADX: 18}
	result := c.Evaluate(signal, features, 0.01, 50000, state)

	if result.Approved || result.Stage != StageADXGate {
		t.Fatalf("expected adx_gate rejection, got %+v", result)
	}
}

func TestApprovalLeavesMaxPositionValue(t *testing.T) {
	limits := baseLimits()
	c := New(limits)
	state := domain.NewSystemState(10000)

	signal := domain.TradeSignal{Symbol: "BTCUSDT", Action: domain.ActionProposeLong}
	result := c.Evaluate(signal, approvedFeatures("BTCUSDT"), 0.01, 100, state)

	if !result.Approved {
		t.Fatalf("expected approval, got %+v", result)
	}
	if result.MaxPositionValueUSDT != limits.MaxPositionSizeUSDT {
		t.Fatalf("expected max position value %v, got %v", limits.MaxPositionSizeUSDT, result.MaxPositionValueUSDT)
	}
}
