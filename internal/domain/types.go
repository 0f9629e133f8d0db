// Package domain holds the typed records that flow between the engine's
// components, replacing the string-keyed dictionaries the teacher passed
// between its strategy and risk layers with a single audited record shape.
package domain

import "time"

// Regime classifies a symbol's recent trend behavior.
type Regime string

const (
	RegimeBullTrend Regime = "BULL_TREND"
	RegimeBearTrend Regime = "BEAR_TREND"
	RegimeRange     Regime = "RANGE"
	RegimeUnknown   Regime = "UNKNOWN"
)

// VolatilityRegime classifies a symbol's current ATR relative to price.
type VolatilityRegime string

const (
	VolatilityLow    VolatilityRegime = "LOW"
	VolatilityNormal VolatilityRegime = "NORMAL"
	VolatilityHigh   VolatilityRegime = "HIGH"
)

// Side is the direction of a position or proposed trade.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// SignalAction is the outcome of rule evaluation for a symbol.
type SignalAction string

const (
	ActionProposeLong  SignalAction = "PROPOSE_LONG"
	ActionProposeShort SignalAction = "PROPOSE_SHORT"
	ActionNeutral      SignalAction = "NEUTRAL"
	ActionClose        SignalAction = "CLOSE"
)

// OHLCVBar is one bar of a symbol's retained kline history.
type OHLCVBar struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Closed   bool
}

// FeatureSnapshot is the latest indicator set for one symbol, produced by
// the feature engine on every event and consumed read-only downstream.
type FeatureSnapshot struct {
	Symbol    string
	Close     float64
	High20    float64
	Low20     float64
	High55    float64
	Low55     float64
	RSI       float64
	ADX       float64
	ATR       float64
	EMA20     float64
	EMA50     float64
	BBUpper   float64
	BBMid     float64
	BBLower   float64
	StochK    float64
	StochD    float64
	VolumeSMA float64

	Breakout20Long  bool
	Breakout20Short bool
	EMA20AboveEMA50 bool

	Ready     bool
	Timestamp time.Time
}

// ATRPct returns ATR as a percentage of close, used by the regime detector's
// volatility classification. Returns 0 when close is non-positive.
func (f FeatureSnapshot) ATRPct() float64 {
	if f.Close <= 0 {
		return 0
	}
	return f.ATR / f.Close * 100
}

// RuleType groups rules for the regime-gated sideways veto.
type RuleType string

const (
	RuleTrend         RuleType = "TREND"
	RuleMeanReversion RuleType = "MEAN_REVERSION"
	RuleBreakout      RuleType = "BREAKOUT"
	RuleCombo         RuleType = "COMBO"
)

// TradeSignal is the rule engine's output for one symbol.
type TradeSignal struct {
	Symbol        string
	Action        SignalAction
	BiasScore     float64
	Confidence    float64
	StrategyName  string
	Regime        Regime
	ATR           float64
	SuggestedPrice float64
	Metadata      map[string]interface{}
}

// ExitMetadata is the per-position bookkeeping the exit manager needs to
// stay idempotent within a bar and to detect ADX deceleration.
type ExitMetadata struct {
	ADXAtEntry      float64
	ADXPrev         float64
	RegimeAtEntry   Regime
	LastExitCheckTS time.Time
}

// Position is one open trade. Exactly one Position may exist per symbol.
type Position struct {
	Symbol     string
	Side       Side
	Quantity   float64
	EntryPrice float64

	CurrentPrice   float64
	UnrealizedPnL  float64

	StopLossPrice   float64
	InitialStopLoss float64
	TakeProfitPrice float64
	StopOrderID     string

	HighestProfitPct          float64
	BreakEvenTriggered        bool
	TrailingStopActivationPct float64

	EntryTime     time.Time
	RegimeAtEntry Regime

	ExitMetadata ExitMetadata
}

// RMultiple returns the realized profit expressed in units of the initial
// stop distance. Returns 0 if the initial stop distance is degenerate.
func (p Position) RMultiple() float64 {
	stopDistance := p.EntryPrice - p.InitialStopLoss
	if p.Side == SideShort {
		stopDistance = p.InitialStopLoss - p.EntryPrice
	}
	if stopDistance <= 0 {
		return 0
	}
	profit := p.CurrentPrice - p.EntryPrice
	if p.Side == SideShort {
		profit = p.EntryPrice - p.CurrentPrice
	}
	return profit / stopDistance
}

// ProfitPct returns unrealized profit as a percentage of entry price.
func (p Position) ProfitPct() float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	delta := p.CurrentPrice - p.EntryPrice
	if p.Side == SideShort {
		delta = p.EntryPrice - p.CurrentPrice
	}
	return delta / p.EntryPrice * 100
}

// SystemStatus is the engine's overall operating mode.
type SystemStatus string

const (
	StatusRunning  SystemStatus = "RUNNING"
	StatusDegraded SystemStatus = "DEGRADED"
	StatusSafeMode SystemStatus = "SAFE_MODE"
	StatusHalted   SystemStatus = "HALTED"
)

// SystemState is the persisted aggregate: the single source of truth for
// equity, open positions, and per-symbol regimes. C12 is its sole mutator.
type SystemState struct {
	Status              SystemStatus
	Equity              float64
	PeakEquity          float64
	CurrentDrawdownPct  float64
	DailyPnL            float64
	DailyPnLPct         float64
	OpenPositions       map[string]*Position
	SymbolRegimes       map[string]Regime
	TotalTrades         int
	WinningTrades       int
	LosingTrades        int
	StrategyWeights     map[string]float64
	LastUpdate          time.Time
}

// NewSystemState returns an initial state seeded with startingEquity.
func NewSystemState(startingEquity float64) *SystemState {
	return &SystemState{
		Status:          StatusRunning,
		Equity:          startingEquity,
		PeakEquity:      startingEquity,
		OpenPositions:   make(map[string]*Position),
		SymbolRegimes:   make(map[string]Regime),
		StrategyWeights: make(map[string]float64),
		LastUpdate:      time.Now(),
	}
}

// RecomputeDrawdown updates PeakEquity and CurrentDrawdownPct from Equity,
// enforcing that peak equity never decreases except via an explicit reset.
func (s *SystemState) RecomputeDrawdown() {
	if s.Equity > s.PeakEquity {
		s.PeakEquity = s.Equity
	}
	if s.PeakEquity <= 0 {
		s.CurrentDrawdownPct = 0
		return
	}
	dd := (s.PeakEquity - s.Equity) / s.PeakEquity * 100
	if dd < 0 {
		dd = 0
	}
	s.CurrentDrawdownPct = dd
}
