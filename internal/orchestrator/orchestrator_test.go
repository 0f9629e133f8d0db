package orchestrator

import (
	"testing"
	"time"

	"github.com/autobot/engine/internal/binance"
	"github.com/autobot/engine/internal/circuit"
	"github.com/autobot/engine/internal/domain"
)

func newTestOrchestrator() *Orchestrator {
	return &Orchestrator{
		state: domain.NewSystemState(1000),
		locks: make(map[string]*symbolLock),
	}
}

func TestToOHLCVBarsConvertsAllFieldsAndMarksClosed(t *testing.T) {
	klines := []binance.Kline{
		{OpenTime: 1000, Open: 10, High: 12, Low: 9, Close: 11, Volume: 100},
		{OpenTime: 2000, Open: 11, High: 13, Low: 10, Close: 12, Volume: 150},
	}
	bars := toOHLCVBars(klines)
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if !bars[0].Closed {
		t.Fatalf("expected seeded history bars to be marked closed")
	}
	if bars[1].OpenTime != time.UnixMilli(2000) {
		t.Fatalf("expected open time to convert from unix millis")
	}
	if bars[1].Close != 12 {
		t.Fatalf("expected close 12, got %v", bars[1].Close)
	}
}

func TestReconcilePositionsAddsMissingExchangePosition(t *testing.T) {
	o := newTestOrchestrator()
	o.reconcilePositions([]binance.FuturesPosition{
		{Symbol: "BTCUSDT", PositionAmt: 0.5, EntryPrice: 30000, MarkPrice: 30500},
	})

	pos, ok := o.state.OpenPositions["BTCUSDT"]
	if !ok {
		t.Fatalf("expected BTCUSDT position to be added from exchange reconciliation")
	}
	if pos.Side != domain.SideLong || pos.Quantity != 0.5 {
		t.Fatalf("unexpected reconciled position: %+v", pos)
	}
}

func TestReconcilePositionsDerivesShortSideFromNegativeAmount(t *testing.T) {
	o := newTestOrchestrator()
	o.reconcilePositions([]binance.FuturesPosition{
		{Symbol: "ETHUSDT", PositionAmt: -2, EntryPrice: 2000, MarkPrice: 1950},
	})

	pos := o.state.OpenPositions["ETHUSDT"]
	if pos.Side != domain.SideShort {
		t.Fatalf("expected short side for negative position amount")
	}
	if pos.Quantity != 2 {
		t.Fatalf("expected quantity to be the absolute value, got %v", pos.Quantity)
	}
}

func TestReconcilePositionsRemovesLocalPositionAbsentOnExchange(t *testing.T) {
	o := newTestOrchestrator()
	o.state.OpenPositions["SOLUSDT"] = &domain.Position{Symbol: "SOLUSDT"}

	o.reconcilePositions(nil)

	if _, ok := o.state.OpenPositions["SOLUSDT"]; ok {
		t.Fatalf("expected local-only position to be dropped when exchange reports no position")
	}
}

func TestReconcilePositionsLeavesExistingLocalPositionUntouched(t *testing.T) {
	o := newTestOrchestrator()
	existing := &domain.Position{Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 1, EntryPrice: 100, StopLossPrice: 95}
	o.state.OpenPositions["BTCUSDT"] = existing

	o.reconcilePositions([]binance.FuturesPosition{{Symbol: "BTCUSDT", PositionAmt: 1, EntryPrice: 999, MarkPrice: 999}})

	if o.state.OpenPositions["BTCUSDT"] != existing {
		t.Fatalf("expected existing local position to be preserved, not overwritten")
	}
	if o.state.OpenPositions["BTCUSDT"].StopLossPrice != 95 {
		t.Fatalf("reconciliation must not clobber an already-tracked position's stop")
	}
}

func TestSymbolLockForReusesTheSameLockAcrossCalls(t *testing.T) {
	o := newTestOrchestrator()
	l1 := o.symbolLockFor("BTCUSDT")
	l2 := o.symbolLockFor("BTCUSDT")
	if l1 != l2 {
		t.Fatalf("expected the same symbol lock instance to be returned for repeat calls")
	}
	l3 := o.symbolLockFor("ETHUSDT")
	if l3 == l1 {
		t.Fatalf("expected distinct symbols to get distinct locks")
	}
}

func TestInstallPositionIncrementsTotalTrades(t *testing.T) {
	o := newTestOrchestrator()
	o.installPosition(&domain.Position{Symbol: "BTCUSDT"})
	if o.state.TotalTrades != 1 {
		t.Fatalf("expected TotalTrades to increment, got %d", o.state.TotalTrades)
	}
	if _, ok := o.state.OpenPositions["BTCUSDT"]; !ok {
		t.Fatalf("expected position to be tracked")
	}
}

func TestRemovePositionUpdatesEquityWinLossAndDrawdown(t *testing.T) {
	o := newTestOrchestrator()
	o.state.Equity = 1000
	o.state.PeakEquity = 1000
	winner := &domain.Position{
		Symbol: "BTCUSDT", Side: domain.SideLong,
		EntryPrice: 100, InitialStopLoss: 95, CurrentPrice: 110, UnrealizedPnL: 50,
	}
	o.installPosition(winner)

	o.removePosition("BTCUSDT", winner)

	if o.state.WinningTrades != 1 {
		t.Fatalf("expected a profitable RMultiple to count as a win")
	}
	if o.state.Equity != 1050 {
		t.Fatalf("expected equity to absorb the closed position's unrealized pnl, got %v", o.state.Equity)
	}
	if _, ok := o.state.OpenPositions["BTCUSDT"]; ok {
		t.Fatalf("expected position to be removed from open positions")
	}
}

func TestRemovePositionCountsNonPositiveRMultipleAsLoss(t *testing.T) {
	o := newTestOrchestrator()
	loser := &domain.Position{
		Symbol: "ETHUSDT", Side: domain.SideLong,
		EntryPrice: 100, InitialStopLoss: 95, CurrentPrice: 90, UnrealizedPnL: -50,
	}
	o.installPosition(loser)

	o.removePosition("ETHUSDT", loser)

	if o.state.LosingTrades != 1 {
		t.Fatalf("expected a non-positive RMultiple to count as a loss")
	}
}

func TestCurrentEquityReadsUnderlyingState(t *testing.T) {
	o := newTestOrchestrator()
	o.state.Equity = 4242
	if got := o.currentEquity(); got != 4242 {
		t.Fatalf("expected 4242, got %v", got)
	}
}

func TestStrategyWeightsReturnsACopyNotTheLiveMap(t *testing.T) {
	o := newTestOrchestrator()
	o.state.StrategyWeights["trend"] = 0.6

	weights := o.strategyWeights()
	weights["trend"] = 0.1

	if o.state.StrategyWeights["trend"] != 0.6 {
		t.Fatalf("expected strategyWeights to return an independent copy")
	}
}

func TestSnapshotStateReturnsAValueCopy(t *testing.T) {
	o := newTestOrchestrator()
	o.state.Equity = 500

	snap := o.snapshotState()
	snap.Equity = 999

	if o.state.Equity != 500 {
		t.Fatalf("expected snapshotState to not alias the live state")
	}
}

func TestOpposingActionReturnsTheProposeActionAgainstTheHeldSide(t *testing.T) {
	if opposingAction(domain.SideLong) != domain.ActionProposeShort {
		t.Fatalf("expected a long position's opposing action to be PROPOSE_SHORT")
	}
	if opposingAction(domain.SideShort) != domain.ActionProposeLong {
		t.Fatalf("expected a short position's opposing action to be PROPOSE_LONG")
	}
}

func TestCheckInvariantsTripsSafeModeWhenPeakEquityFallsBelowEquity(t *testing.T) {
	o := newTestOrchestrator()
	o.breaker = circuit.New()
	o.state.Equity = 1100
	o.state.PeakEquity = 1000

	o.checkInvariants()

	if o.breaker.State() != circuit.StateSafeMode {
		t.Fatalf("expected a peak_equity < equity breach to trip SAFE_MODE, got %s", o.breaker.State())
	}
}

func TestCheckInvariantsTripsSafeModeWhenDrawdownOutOfRange(t *testing.T) {
	o := newTestOrchestrator()
	o.breaker = circuit.New()
	o.state.Equity = 900
	o.state.PeakEquity = 1000
	o.state.CurrentDrawdownPct = 150

	o.checkInvariants()

	if o.breaker.State() != circuit.StateSafeMode {
		t.Fatalf("expected an out-of-range drawdown_pct to trip SAFE_MODE, got %s", o.breaker.State())
	}
}

func TestCheckInvariantsLeavesRunningStateOnHealthyEquity(t *testing.T) {
	o := newTestOrchestrator()
	o.breaker = circuit.New()
	o.state.Equity = 950
	o.state.PeakEquity = 1000
	o.state.CurrentDrawdownPct = 5

	o.checkInvariants()

	if o.breaker.State() != circuit.StateRunning {
		t.Fatalf("expected healthy equity bookkeeping to leave the breaker RUNNING, got %s", o.breaker.State())
	}
}
