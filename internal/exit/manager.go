// Package exit implements the per-position exit state machine (C11):
// priority-ordered checks (stop-loss, regime change, momentum loss,
// Donchian break) plus the out-of-band trailing-stop ratchet. Grounded on
// the teacher's trailing-stop high/low-water-mark logic (the stop only
// ever moves in the position's favor) generalized to the full priority
// chain spec.md defines.
package exit

import (
	"sync"
	"time"

	"github.com/autobot/engine/internal/domain"
	"github.com/autobot/engine/internal/trend"
)

// Urgency tells the caller how quickly to act on an exit decision.
type Urgency string

const (
	UrgencyImmediate Urgency = "IMMEDIATE"
	UrgencyNextBar   Urgency = "NEXT_BAR"
)

// Reason names which priority-ordered check fired.
type Reason string

const (
	ReasonStopLoss     Reason = "STOP_LOSS"
	ReasonRegimeChange Reason = "REGIME_CHANGE"
	ReasonMomentumLoss Reason = "MOMENTUM_LOSS"
	ReasonDonchianBreak Reason = "DONCHIAN_BREAK"
)

// Decision is the discriminated outcome of an exit evaluation: exactly one
// of Hold or an exit signal is ever populated.
type Decision struct {
	Hold    bool
	Reason  Reason
	Urgency Urgency
}

func hold() Decision { return Decision{Hold: true} }

// Params configures the guards and thresholds the manager checks.
type Params struct {
	MinAgeBeforeExit time.Duration
	ADXFallingThreshold float64
}

// DefaultParams mirrors spec.md's example figures.
func DefaultParams() Params {
	return Params{MinAgeBeforeExit: 60 * time.Second, ADXFallingThreshold: 20}
}

type symbolState struct {
	mu                 sync.Mutex
	lastExitCheckTS    time.Time
	lastDecision       Decision
}

// Manager evaluates exit decisions and trailing-stop updates per symbol.
type Manager struct {
	params  Params
	adx     *trend.ADXTracker
	mu      sync.Mutex
	symbols map[string]*symbolState
}

// New creates an exit manager.
func New(params Params) *Manager {
	return &Manager{params: params, adx: trend.NewADXTracker(), symbols: make(map[string]*symbolState)}
}

func (m *Manager) state(symbol string) *symbolState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.symbols[symbol]
	if !ok {
		s = &symbolState{}
		m.symbols[symbol] = s
	}
	return s
}

// Evaluate runs the priority-ordered checks for position given the latest
// features and the symbol's current regime. barTimestamp gives bar-level
// idempotence: calling Evaluate twice for the same bar returns the same
// decision without re-running the checks.
func (m *Manager) Evaluate(position domain.Position, features domain.FeatureSnapshot, currentRegime domain.Regime, barTimestamp time.Time) Decision {
	s := m.state(position.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	m.adx.Observe(position.Symbol, features.ADX)

	if !barTimestamp.IsZero() && barTimestamp.Equal(s.lastExitCheckTS) {
		return s.lastDecision
	}

	decision := m.evaluateChain(position, features, currentRegime)

	if !barTimestamp.IsZero() {
		s.lastExitCheckTS = barTimestamp
		s.lastDecision = decision
	}
	return decision
}

func (m *Manager) evaluateChain(p domain.Position, f domain.FeatureSnapshot, regime domain.Regime) Decision {
	if m.params.MinAgeBeforeExit > 0 && time.Since(p.EntryTime) < m.params.MinAgeBeforeExit {
		return hold()
	}

	if stopLossHit(p, f) {
		return Decision{Reason: ReasonStopLoss, Urgency: UrgencyImmediate}
	}

	if regimeChanged(p, regime) {
		return Decision{Reason: ReasonRegimeChange, Urgency: UrgencyImmediate}
	}

	if m.momentumLoss(p, f, regime) {
		return Decision{Reason: ReasonMomentumLoss, Urgency: UrgencyNextBar}
	}

	if donchianBreak(p, f) {
		return Decision{Reason: ReasonDonchianBreak, Urgency: UrgencyNextBar}
	}

	return hold()
}

func stopLossHit(p domain.Position, f domain.FeatureSnapshot) bool {
	if p.Side == domain.SideLong {
		return f.Close <= p.StopLossPrice
	}
	return f.Close >= p.StopLossPrice
}

func regimeChanged(p domain.Position, regime domain.Regime) bool {
	if p.Side == domain.SideLong {
		return regime != domain.RegimeBullTrend
	}
	return regime != domain.RegimeBearTrend
}

func (m *Manager) momentumLoss(p domain.Position, f domain.FeatureSnapshot, regime domain.Regime) bool {
	if !m.adx.Falling(p.Symbol) {
		return false
	}
	if f.ADX >= m.params.ADXFallingThreshold {
		return false
	}
	if p.RMultiple() < 1.0 {
		return false
	}
	if p.Side == domain.SideLong {
		return f.Close < f.High20
	}
	return f.Close > f.Low20
}

func donchianBreak(p domain.Position, f domain.FeatureSnapshot) bool {
	if p.Side == domain.SideLong {
		return f.Close < f.Low20
	}
	return f.Close > f.High20
}

// TrailingStopUpdate is the result of ratcheting a position's stop. Moved
// is false when the stop did not change this tick.
type TrailingStopUpdate struct {
	Moved       bool
	NewStopPrice float64
	BreakEven   bool
}

// UpdateTrailingStop advances a position's stop in its favor only, never
// unfavorably — once profit reaches breakEvenPct the stop moves to entry;
// beyond that it advances by trailingStopRate * (profitPct - breakEvenPct)
// in entry-price units.
func UpdateTrailingStop(p *domain.Position, breakEvenPct, trailingStopRate float64) TrailingStopUpdate {
	profitPct := p.ProfitPct()
	if profitPct > p.HighestProfitPct {
		p.HighestProfitPct = profitPct
	}

	if profitPct < breakEvenPct {
		return TrailingStopUpdate{Moved: false}
	}

	if !p.BreakEvenTriggered {
		p.BreakEvenTriggered = true
		if favorableMove(p.Side, p.EntryPrice, p.StopLossPrice) {
			return TrailingStopUpdate{Moved: false}
		}
		p.StopLossPrice = p.EntryPrice
		return TrailingStopUpdate{Moved: true, NewStopPrice: p.EntryPrice, BreakEven: true}
	}

	advance := trailingStopRate * (profitPct - breakEvenPct) / 100 * p.EntryPrice
	var candidate float64
	if p.Side == domain.SideLong {
		candidate = p.EntryPrice + advance
		if candidate <= p.StopLossPrice {
			return TrailingStopUpdate{Moved: false}
		}
	} else {
		candidate = p.EntryPrice - advance
		if candidate >= p.StopLossPrice {
			return TrailingStopUpdate{Moved: false}
		}
	}

	p.StopLossPrice = candidate
	return TrailingStopUpdate{Moved: true, NewStopPrice: candidate}
}

// favorableMove reports whether stop is already at least as favorable as
// reference, so the ratchet never pulls a stop back unfavorably.
func favorableMove(side domain.Side, reference, stop float64) bool {
	if side == domain.SideLong {
		return stop >= reference
	}
	return stop <= reference
}
