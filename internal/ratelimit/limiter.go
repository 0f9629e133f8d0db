// Package ratelimit implements the engine's proactive, priority-aware
// weight budget gate. It generalizes the exchange-specific token bucket
// into a reusable component: callers acquire a slot for a named endpoint at
// a priority tier, and the limiter enforces a per-tier share of the total
// weight budget so critical order-management calls are never starved by
// background scans.
package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/autobot/engine/internal/logging"
)

// Priority ranks the urgency of a request. Higher-priority requests are
// granted access to a larger share of the weight budget.
type Priority int

const (
	// PriorityCritical covers order placement, cancellation, and position
	// closure — these must go through.
	PriorityCritical Priority = iota
	// PriorityHigh covers position and account state checks.
	PriorityHigh
	// PriorityNormal covers market data needed for active decisioning.
	PriorityNormal
	// PriorityLow covers background reconciliation and non-urgent reads.
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

func (p Priority) threshold() float64 {
	switch p {
	case PriorityCritical:
		return 0.95
	case PriorityHigh:
		return 0.80
	case PriorityNormal:
		return 0.60
	case PriorityLow:
		return 0.40
	default:
		return 0.50
	}
}

// AcquireResult is the discriminated outcome of a TryAcquire call.
type AcquireResult struct {
	Acquired     bool
	WaitTime     time.Duration
	Reason       string
	WeightBudget int
	CurrentUsage float64
}

// Limiter tracks weight usage within a rolling one-minute window and trips
// a circuit breaker when the exchange reports a ban.
type Limiter struct {
	mu sync.Mutex

	maxWeight      int
	maxRequests    int
	endpointWeight map[string]int

	currentWeight  int
	weightResetAt  time.Time
	requestCount   int
	requestResetAt time.Time

	circuitOpen       bool
	banUntil          time.Time
	consecutiveErrors int

	log *logging.Logger
}

// Option configures a Limiter at construction.
type Option func(*Limiter)

// WithEndpointWeights overrides the default per-endpoint weight table.
func WithEndpointWeights(weights map[string]int) Option {
	return func(l *Limiter) { l.endpointWeight = weights }
}

// New creates a Limiter sized to maxWeight/maxRequests per minute — for
// Binance Futures these are 2400 and 1200 respectively. Each priority tier
// may fill only its own share of that budget (95% for PriorityCritical down
// to 40% for PriorityLow); there is no overall ceiling below the full budget.
func New(maxWeight, maxRequests int, opts ...Option) *Limiter {
	now := time.Now()
	l := &Limiter{
		maxWeight:      maxWeight,
		maxRequests:    maxRequests,
		weightResetAt:  now.Add(time.Minute),
		requestResetAt: now.Add(time.Minute),
		endpointWeight: defaultEndpointWeights,
		log:            logging.WithComponent("ratelimit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// defaultEndpointWeights is Binance Futures' published per-request weight
// table for the endpoints the exchange client calls.
var defaultEndpointWeights = map[string]int{
	"/fapi/v2/account":          5,
	"/fapi/v2/positionRisk":     5,
	"/fapi/v1/positionSide/dual": 30,
	"/fapi/v1/order":            1,
	"/fapi/v1/openOrders":       1,
	"/fapi/v1/allOpenOrders":    40,
	"/fapi/v1/allOrders":        5,
	"/fapi/v1/userTrades":       5,
	"/fapi/v1/algoOrder":        1,
	"/fapi/v1/openAlgoOrders":   1,
	"/fapi/v1/allAlgoOrders":    5,
	"/fapi/v1/ticker/price":     1,
	"/fapi/v1/ticker/24hr":      1,
	"/fapi/v1/klines":           5,
	"/fapi/v1/depth":            5,
	"/fapi/v1/premiumIndex":     1,
	"/fapi/v1/fundingRate":      1,
	"/fapi/v1/exchangeInfo":     1,
	"/fapi/v1/listenKey":        1,
}

func (l *Limiter) weightOf(endpoint string) int {
	if w, ok := l.endpointWeight[endpoint]; ok {
		return w
	}
	return 1
}

// TryAcquire atomically checks the budget for endpoint at priority and, if
// there is room, records the weight. It never blocks.
func (l *Limiter) TryAcquire(endpoint string, priority Priority) AcquireResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.resetWindowsLocked(now)

	if l.circuitOpen {
		if now.Before(l.banUntil) {
			return AcquireResult{
				Acquired:     false,
				WaitTime:     time.Until(l.banUntil),
				Reason:       "circuit_breaker_open",
				CurrentUsage: 100.0,
			}
		}
		l.circuitOpen = false
		l.log.Info("circuit breaker auto-closed, ban expired")
	}

	weight := l.weightOf(endpoint)
	thresholdPct := priority.threshold()
	weightThreshold := int(float64(l.maxWeight) * thresholdPct)
	requestThreshold := int(float64(l.maxRequests) * thresholdPct)

	if l.currentWeight+weight > weightThreshold {
		wait := time.Until(l.weightResetAt)
		if wait < 0 {
			wait = 100 * time.Millisecond
		}
		return AcquireResult{
			Acquired:     false,
			WaitTime:     wait,
			Reason:       fmt.Sprintf("weight_limit_exceeded_for_%s_priority", priority),
			WeightBudget: weightThreshold - l.currentWeight,
			CurrentUsage: float64(l.currentWeight) / float64(l.maxWeight) * 100,
		}
	}
	if l.requestCount >= requestThreshold {
		wait := time.Until(l.requestResetAt)
		if wait < 0 {
			wait = 100 * time.Millisecond
		}
		return AcquireResult{
			Acquired:     false,
			WaitTime:     wait,
			Reason:       fmt.Sprintf("request_limit_exceeded_for_%s_priority", priority),
			WeightBudget: weightThreshold - l.currentWeight,
			CurrentUsage: float64(l.currentWeight) / float64(l.maxWeight) * 100,
		}
	}

	l.currentWeight += weight
	l.requestCount++
	l.consecutiveErrors = 0

	return AcquireResult{
		Acquired:     true,
		WeightBudget: weightThreshold - l.currentWeight,
		CurrentUsage: float64(l.currentWeight) / float64(l.maxWeight) * 100,
	}
}

// WaitForSlot blocks, polling at PriorityNormal, until endpoint can be
// acquired or timeout elapses. It returns false on timeout and true once the
// request has been recorded (the caller should not call TryAcquire again for
// the same attempt).
func (l *Limiter) WaitForSlot(endpoint string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		result := l.TryAcquire(endpoint, PriorityNormal)
		if result.Acquired {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		wait := result.WaitTime
		if wait <= 0 || wait > 5*time.Second {
			wait = 5 * time.Second
		}
		if remaining := time.Until(deadline); wait > remaining {
			wait = remaining
		}
		time.Sleep(wait)
	}
}

// RecordRequest is a no-op hook retained for call-site symmetry with
// WaitForSlot: TryAcquire already records weight atomically, so nothing
// further needs to happen on a successful response.
func (l *Limiter) RecordRequest(endpoint string) {}

// UpdateFromHeaders reconciles the tracked weight with the value the
// exchange reports in its response headers, taking whichever is larger so a
// missed update never under-counts usage.
func (l *Limiter) UpdateFromHeaders(reportedWeight int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if reportedWeight > l.currentWeight {
		l.currentWeight = reportedWeight
	}
}

func (l *Limiter) resetWindowsLocked(now time.Time) {
	if now.After(l.weightResetAt) {
		l.currentWeight = 0
		l.weightResetAt = now.Add(time.Minute)
	}
	if now.After(l.requestResetAt) {
		l.requestCount = 0
		l.requestResetAt = now.Add(time.Minute)
	}
}

// RecordBan opens the circuit breaker until banUntil (or, if zero, an
// exponential backoff capped at 30 minutes based on consecutive errors).
func (l *Limiter) RecordBan(banUntil time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveErrors++
	if banUntil.IsZero() {
		backoff := time.Duration(1<<uint(l.consecutiveErrors)) * time.Minute
		if backoff > 30*time.Minute {
			backoff = 30 * time.Minute
		}
		banUntil = time.Now().Add(backoff)
	}

	l.circuitOpen = true
	l.banUntil = banUntil
	l.log.WithField("ban_until", banUntil).WithField("consecutive_errors", l.consecutiveErrors).
		Warn("rate limiter circuit breaker opened")
}

// IsCircuitOpen reports whether the limiter is currently refusing requests
// due to an exchange-side ban.
func (l *Limiter) IsCircuitOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.circuitOpen {
		return false
	}
	return time.Now().Before(l.banUntil)
}

// Status returns a snapshot for health reporting and metrics export.
func (l *Limiter) Status() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	usagePct := float64(l.currentWeight) / float64(l.maxWeight) * 100
	return map[string]interface{}{
		"circuit_open":     l.circuitOpen,
		"current_weight":   l.currentWeight,
		"max_weight":       l.maxWeight,
		"usage_pct":        usagePct,
		"request_count":    l.requestCount,
		"max_requests":     l.maxRequests,
		"should_throttle":  usagePct > 50,
	}
}

// ParseBanUntilFromError extracts a millisecond ban timestamp from an
// exchange error message of the form "...banned until 1766824120342".
func ParseBanUntilFromError(errMsg string) time.Time {
	const marker = "banned until "
	idx := strings.Index(errMsg, marker)
	if idx < 0 {
		return time.Time{}
	}
	var banUntilMs int64
	if _, err := fmt.Sscanf(errMsg[idx+len(marker):], "%d", &banUntilMs); err != nil {
		return time.Time{}
	}
	t := time.UnixMilli(banUntilMs)
	if t.After(time.Now()) && t.Before(time.Now().Add(24*time.Hour)) {
		return t
	}
	return time.Time{}
}
