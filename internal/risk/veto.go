// Package risk implements the pre-trade veto chain (C8): an ordered set of
// read-only checks over the current SystemState that a proposed trade must
// clear before the sizer and order manager ever see it. The chain mirrors
// the teacher's arithmetic-guard idiom in its risk manager — every check
// degrades to a safe rejection rather than panicking on a zero or NaN input.
package risk

import (
	"math"

	"github.com/autobot/engine/internal/domain"
	"github.com/autobot/engine/internal/logging"
	"github.com/autobot/engine/internal/trend"
)

// Stage names the veto chain step that produced a rejection.
type Stage string

const (
	StageADXGate        Stage = "adx_gate"
	StagePositionSize    Stage = "position_size"
	StageMaxPositions    Stage = "max_positions"
	StageCorrelation     Stage = "correlation"
	StageDrawdown        Stage = "drawdown"
	StageDailyLoss       Stage = "daily_loss"
)

// VetoResult is the discriminated outcome of running the chain. Approved
// carries the size the veto chain permits; a failing stage is terminal.
type VetoResult struct {
	Approved bool
	Stage    Stage
	Reason   string
	// MaxPositionValueUSDT is the largest position_value (in quote currency)
	// the Position size stage would allow; the sizer (C9) must still respect it.
	MaxPositionValueUSDT float64
}

func rejected(stage Stage, reason string) VetoResult {
	return VetoResult{Approved: false, Stage: stage, Reason: reason}
}

// Limits are the configured thresholds the chain enforces. All fields come
// from config.TradingConfig; the chain never mutates them.
type Limits struct {
	MinADX                    float64
	MaxPositionSizeUSDT       float64
	MaxPositions              int
	MaxCorrelationExposurePct float64
	MaxDrawdownPct            float64
	DailyLossLimitPct         float64
}

// Chain evaluates a proposed trade against SystemState, stage by stage.
type Chain struct {
	limits  Limits
	adx     *trend.ADXTracker
	log     *logging.Logger
}

// New creates a veto chain with the given limits, tracking ADX trend per
// symbol with its own tracker.
func New(limits Limits) *Chain {
	return &Chain{limits: limits, adx: trend.NewADXTracker(), log: logging.WithComponent("risk")}
}

// Evaluate runs every stage in order and returns the first rejection, or an
// approval carrying the position-value cap the position-size stage permits. A
// NEUTRAL or CLOSE signal never reaches this function; callers only invoke
// it for PROPOSE_LONG / PROPOSE_SHORT signals. features supplies the ADX
// reading the gate needs; the chain also records it for falling-trend
// detection on subsequent calls.
func (c *Chain) Evaluate(signal domain.TradeSignal, features domain.FeatureSnapshot, proposedQuantity, price float64, state *domain.SystemState) VetoResult {
	c.adx.Observe(signal.Symbol, features.ADX)

	if result := c.adxGate(features.ADX, c.adx.Falling(signal.Symbol)); !result.Approved {
		c.logReject(signal.Symbol, result)
		return result
	}
	if result := c.positionSize(proposedQuantity, price); !result.Approved {
		c.logReject(signal.Symbol, result)
		return result
	}
	if result := c.maxPositions(signal.Symbol, state); !result.Approved {
		c.logReject(signal.Symbol, result)
		return result
	}
	if result := c.correlation(signal.Symbol, state); !result.Approved {
		c.logReject(signal.Symbol, result)
		return result
	}
	if result := c.drawdown(state); !result.Approved {
		c.logReject(signal.Symbol, result)
		return result
	}
	if result := c.dailyLoss(state); !result.Approved {
		c.logReject(signal.Symbol, result)
		return result
	}

	return VetoResult{
		Approved:             true,
		MaxPositionValueUSDT: c.limits.MaxPositionSizeUSDT,
	}
}

func (c *Chain) logReject(symbol string, result VetoResult) {
	c.log.WithField("symbol", symbol).
		WithField("veto_stage", result.Stage).
		WithField("veto_reason", result.Reason).
		Warn("pre-trade veto rejected signal")
}

// adxGate rejects when ADX is invalid, below the minimum trend-strength
// threshold, or falling — a choppy or decelerating market never gets a new
// entry.
func (c *Chain) adxGate(adx float64, falling bool) VetoResult {
	if !isFinite(adx) || adx < c.limits.MinADX {
		return rejected(StageADXGate, "adx below min_adx")
	}
	if falling {
		return rejected(StageADXGate, "adx falling")
	}
	return VetoResult{Approved: true}
}

// positionSize rejects when the notional value of the proposed trade
// exceeds the configured ceiling. Degenerate inputs (non-finite or
// non-positive) are treated as oversize, never as zero risk.
func (c *Chain) positionSize(quantity, price float64) VetoResult {
	if !isFinite(quantity) || !isFinite(price) || quantity <= 0 || price <= 0 {
		return rejected(StagePositionSize, "invalid quantity or price")
	}
	notional := quantity * price
	if c.limits.MaxPositionSizeUSDT > 0 && notional > c.limits.MaxPositionSizeUSDT {
		return rejected(StagePositionSize, "notional exceeds max_position_size_usdt")
	}
	return VetoResult{Approved: true}
}

// maxPositions rejects a new symbol once the open-position count reaches
// the configured ceiling. A symbol that already has a position (flip/close)
// is exempt — the count check only gates brand-new exposure.
func (c *Chain) maxPositions(symbol string, state *domain.SystemState) VetoResult {
	if _, exists := state.OpenPositions[symbol]; exists {
		return VetoResult{Approved: true}
	}
	if c.limits.MaxPositions > 0 && len(state.OpenPositions) >= c.limits.MaxPositions {
		return rejected(StageMaxPositions, "open position count at max_positions")
	}
	return VetoResult{Approved: true}
}

// correlation is scaffolded per spec: the stage contract is preserved but
// no correlation matrix is computed (open question, left TBD upstream), so
// it never rejects on its own.
func (c *Chain) correlation(symbol string, state *domain.SystemState) VetoResult {
	return VetoResult{Approved: true}
}

// drawdown rejects when the account is already past its configured maximum
// drawdown from peak equity.
func (c *Chain) drawdown(state *domain.SystemState) VetoResult {
	if c.limits.MaxDrawdownPct > 0 && state.CurrentDrawdownPct >= c.limits.MaxDrawdownPct {
		return rejected(StageDrawdown, "current_drawdown_pct at or above max_drawdown_pct")
	}
	return VetoResult{Approved: true}
}

// dailyLoss rejects when today's realized+unrealized loss has reached the
// configured daily cap.
func (c *Chain) dailyLoss(state *domain.SystemState) VetoResult {
	if c.limits.DailyLossLimitPct > 0 && state.DailyPnLPct <= -c.limits.DailyLossLimitPct {
		return rejected(StageDailyLoss, "daily_pnl_pct at or below -daily_loss_limit_pct")
	}
	return VetoResult{Approved: true}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
