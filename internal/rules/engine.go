// Package rules implements the regime-gated rule engine (C7): a fixed
// catalog of rules evaluated against a FeatureSnapshot under the current
// regime, producing a single weighted TradeSignal. Grounded on the
// teacher's strategy-catalog idiom (registered predicates with a
// confidence/weight model), generalized to the typed FeatureSnapshot and
// the sideways-veto rule spec.md requires.
package rules

import (
	"math"

	"github.com/autobot/engine/internal/domain"
)

// VetoReason names why a rule was skipped during evaluation.
type VetoReason string

const (
	VetoTrendNotAllowedInRange      VetoReason = "TREND_NOT_ALLOWED_IN_RANGE"
	VetoBreakoutNotAllowedInRange   VetoReason = "BREAKOUT_NOT_ALLOWED_IN_RANGE"
	VetoComboNotAllowedInRange      VetoReason = "COMBO_NOT_ALLOWED_IN_RANGE"
	VetoLongBreakoutNotAllowedBear  VetoReason = "LONG_BREAKOUT_NOT_ALLOWED_IN_BEAR_TREND"
	VetoRegimeNotAllowed            VetoReason = "REGIME_NOT_ALLOWED"
)

// Rule is a static, immutable-after-registration trading rule.
type Rule struct {
	Name            string
	Condition       func(domain.FeatureSnapshot) bool
	BiasScore       float64
	AllowedRegimes  map[domain.Regime]bool
	Type            domain.RuleType
	MinConfidence   float64
	RequiredFeatures []string
	// Long indicates the rule proposes a long-biased condition; used only
	// by the bear-trend long-breakout veto.
	Long bool
}

// VetoedRule records a rule skipped during evaluation and why.
type VetoedRule struct {
	Rule   string
	Reason VetoReason
}

// EvaluationResult is the rule engine's output for one evaluation pass.
type EvaluationResult struct {
	Signal      domain.TradeSignal
	ActiveRules int
	Vetoed      []VetoedRule
}

// Engine holds the registered rule catalog and per-strategy weights.
type Engine struct {
	rules              []Rule
	activationThreshold float64
}

// New creates a rule engine with the default catalog registered.
func New(activationThreshold float64) *Engine {
	e := &Engine{activationThreshold: activationThreshold}
	e.registerDefaultCatalog()
	return e
}

// Register adds a rule to the catalog. Intended for startup only; the
// catalog is immutable once evaluation begins.
func (e *Engine) Register(r Rule) {
	e.rules = append(e.rules, r)
}

// Evaluate runs the full registered catalog against features under regime,
// weighting each firing rule's bias by strategyWeights[rule.Name] (default
// 1.0 when absent). The result is pure: identical inputs always produce an
// identical signal.
func (e *Engine) Evaluate(symbol string, features domain.FeatureSnapshot, regime domain.Regime, strategyWeights map[string]float64) EvaluationResult {
	totalBias := 0.0
	activeRules := 0
	var vetoed []VetoedRule

	for _, r := range e.rules {
		if len(r.AllowedRegimes) > 0 && !r.AllowedRegimes[regime] {
			vetoed = append(vetoed, VetoedRule{Rule: r.Name, Reason: VetoRegimeNotAllowed})
			continue
		}

		if regime == domain.RegimeRange {
			switch r.Type {
			case domain.RuleTrend:
				vetoed = append(vetoed, VetoedRule{Rule: r.Name, Reason: VetoTrendNotAllowedInRange})
				continue
			case domain.RuleBreakout:
				vetoed = append(vetoed, VetoedRule{Rule: r.Name, Reason: VetoBreakoutNotAllowedInRange})
				continue
			case domain.RuleCombo:
				vetoed = append(vetoed, VetoedRule{Rule: r.Name, Reason: VetoComboNotAllowedInRange})
				continue
			}
		}
		if regime == domain.RegimeBearTrend && r.Type == domain.RuleBreakout && r.Long {
			vetoed = append(vetoed, VetoedRule{Rule: r.Name, Reason: VetoLongBreakoutNotAllowedBear})
			continue
		}

		if !r.Condition(features) {
			continue
		}

		weight := 1.0
		if w, ok := strategyWeights[r.Name]; ok {
			weight = w
		}
		totalBias += r.BiasScore * weight
		activeRules++
	}

	totalBias = clamp(totalBias, -1, 1)
	confidence := math.Min(1.0, float64(activeRules)/5.0)

	action := domain.ActionNeutral
	switch {
	case totalBias >= e.activationThreshold:
		action = domain.ActionProposeLong
	case totalBias <= -e.activationThreshold:
		action = domain.ActionProposeShort
	}

	return EvaluationResult{
		Signal: domain.TradeSignal{
			Symbol:     symbol,
			Action:     action,
			BiasScore:  totalBias,
			Confidence: confidence,
			Regime:     regime,
			ATR:        features.ATR,
			SuggestedPrice: features.Close,
		},
		ActiveRules: activeRules,
		Vetoed:      vetoed,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// registerDefaultCatalog registers the fixed catalog spec.md names:
// breakout, RSI reversal, EMA cross, Bollinger, stochastic, and combo
// rules.
func (e *Engine) registerDefaultCatalog() {
	// Trend, breakout and combo rules also list RANGE so the sideways veto,
	// not the regime filter, skips them there with its typed reason.
	trendRegimes := map[domain.Regime]bool{domain.RegimeBullTrend: true, domain.RegimeBearTrend: true, domain.RegimeRange: true}
	anyRegime := map[domain.Regime]bool{domain.RegimeBullTrend: true, domain.RegimeBearTrend: true, domain.RegimeRange: true}

	e.rules = []Rule{
		{
			Name:      "donchian_breakout_long",
			Type:      domain.RuleBreakout,
			Long:      true,
			BiasScore: 0.4,
			AllowedRegimes: trendRegimes,
			Condition: func(f domain.FeatureSnapshot) bool { return f.Breakout20Long },
		},
		{
			Name:      "donchian_breakout_short",
			Type:      domain.RuleBreakout,
			BiasScore: -0.4,
			AllowedRegimes: trendRegimes,
			Condition: func(f domain.FeatureSnapshot) bool { return f.Breakout20Short },
		},
		{
			Name:      "rsi_reversal",
			Type:      domain.RuleMeanReversion,
			BiasScore: 0.3,
			AllowedRegimes: anyRegime,
			Condition: func(f domain.FeatureSnapshot) bool { return f.RSI < 30 },
		},
		{
			Name:      "rsi_reversal_short",
			Type:      domain.RuleMeanReversion,
			BiasScore: -0.3,
			AllowedRegimes: anyRegime,
			Condition: func(f domain.FeatureSnapshot) bool { return f.RSI > 70 },
		},
		{
			Name:      "ema_cross_bull",
			Type:      domain.RuleTrend,
			BiasScore: 0.35,
			AllowedRegimes: trendRegimes,
			Condition: func(f domain.FeatureSnapshot) bool { return f.EMA20AboveEMA50 },
		},
		{
			Name:      "ema_cross_bear",
			Type:      domain.RuleTrend,
			BiasScore: -0.35,
			AllowedRegimes: trendRegimes,
			Condition: func(f domain.FeatureSnapshot) bool { return !f.EMA20AboveEMA50 },
		},
		{
			Name:      "bollinger_band_fade_low",
			Type:      domain.RuleMeanReversion,
			BiasScore: 0.25,
			AllowedRegimes: anyRegime,
			Condition: func(f domain.FeatureSnapshot) bool { return f.Close < f.BBLower },
		},
		{
			Name:      "bollinger_band_fade_high",
			Type:      domain.RuleMeanReversion,
			BiasScore: -0.25,
			AllowedRegimes: anyRegime,
			Condition: func(f domain.FeatureSnapshot) bool { return f.Close > f.BBUpper },
		},
		{
			Name:      "stochastic_oversold",
			Type:      domain.RuleMeanReversion,
			BiasScore: 0.2,
			AllowedRegimes: anyRegime,
			Condition: func(f domain.FeatureSnapshot) bool { return f.StochK < 20 && f.StochD < 20 },
		},
		{
			Name:      "stochastic_overbought",
			Type:      domain.RuleMeanReversion,
			BiasScore: -0.2,
			AllowedRegimes: anyRegime,
			Condition: func(f domain.FeatureSnapshot) bool { return f.StochK > 80 && f.StochD > 80 },
		},
		{
			Name:      "trend_breakout_combo_long",
			Type:      domain.RuleCombo,
			Long:      true,
			BiasScore: 0.5,
			AllowedRegimes: map[domain.Regime]bool{domain.RegimeBullTrend: true, domain.RegimeRange: true},
			Condition: func(f domain.FeatureSnapshot) bool { return f.Breakout20Long && f.EMA20AboveEMA50 },
		},
		{
			Name:      "trend_breakout_combo_short",
			Type:      domain.RuleCombo,
			BiasScore: -0.5,
			AllowedRegimes: map[domain.Regime]bool{domain.RegimeBearTrend: true, domain.RegimeRange: true},
			Condition: func(f domain.FeatureSnapshot) bool { return f.Breakout20Short && !f.EMA20AboveEMA50 },
		},
	}
}
