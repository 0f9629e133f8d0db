// Package sizing implements the Turtle N-unit position sizer (C9):
// deterministic given (equity, price, atr), with every division guarded
// against a zero or degenerate denominator in the teacher's
// arithmetic-guard style.
package sizing

import "math"

// Params are the configured sizing parameters, sourced from
// config.TradingConfig.
type Params struct {
	RiskPerTradePct    float64
	ATRMultiplier      float64
	MaxPositionUSDT    float64
	MinQuantityUSDT    float64
}

// Result is the discriminated outcome of a sizing attempt.
type Result struct {
	Valid        bool
	Reason       string
	Quantity     float64
	PositionUSDT float64
}

func invalid(reason string) Result {
	return Result{Valid: false, Reason: reason}
}

// Size computes a quantity from equity, price and atr per the Turtle
// N-unit method:
//
//	risk_amount    = equity * risk_per_trade_pct
//	atr_effective  = max(atr, price * 0.005)
//	stop_distance  = atr_effective * atr_multiplier
//	position_value = risk_amount / stop_distance
//	quantity       = position_value / price
//
// position_value is then capped at max_position_usdt and the quantity
// recomputed; a result below min_quantity_usdt is rejected.
func Size(p Params, equity, price, atr float64) Result {
	if !isFinite(equity) || equity <= 0 {
		return invalid("invalid equity")
	}
	if !isFinite(price) || price <= 0 {
		return invalid("invalid price")
	}
	if !isFinite(atr) || atr < 0 {
		return invalid("invalid atr")
	}

	riskPct := p.RiskPerTradePct
	if riskPct <= 0 {
		return invalid("invalid risk_per_trade_pct")
	}
	atrMultiplier := p.ATRMultiplier
	if atrMultiplier <= 0 {
		atrMultiplier = 2.0
	}

	riskAmount := equity * riskPct
	atrEffective := math.Max(atr, price*0.005)
	stopDistance := atrEffective * atrMultiplier
	if stopDistance <= 0 {
		return invalid("non-positive stop distance")
	}

	positionValue := riskAmount / stopDistance
	if p.MaxPositionUSDT > 0 && positionValue > p.MaxPositionUSDT {
		positionValue = p.MaxPositionUSDT
	}

	quantity := positionValue / price
	if !isFinite(quantity) || quantity <= 0 {
		return invalid("computed non-positive quantity")
	}
	if p.MinQuantityUSDT > 0 && positionValue < p.MinQuantityUSDT {
		return invalid("position value below min_quantity_usdt")
	}

	return Result{
		Valid:        true,
		Quantity:     quantity,
		PositionUSDT: positionValue,
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
