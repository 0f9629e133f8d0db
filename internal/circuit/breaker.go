// Package circuit implements the system-level safe-mode state machine. It
// generalizes a per-trade win/loss circuit breaker into the coarser
// operational state SystemState.Status carries: the engine keeps trading
// while Running, stops opening new positions under Degraded/SafeMode, and
// stops entirely under Halted.
package circuit

import (
	"sync"
	"time"
)

// State is the operational status of the engine.
type State string

const (
	// StateRunning: normal operation, all components active.
	StateRunning State = "RUNNING"
	// StateDegraded: a non-fatal fault occurred (e.g. a transient state-store
	// error persisted past its retry budget); open positions are still
	// managed, but no new positions are opened.
	StateDegraded State = "DEGRADED"
	// StateSafeMode: a critical invariant breach occurred. No new positions
	// are opened until an operator clears it.
	StateSafeMode State = "SAFE_MODE"
	// StateHalted: the orchestrator is shutting down or has stopped.
	StateHalted State = "HALTED"
)

// Breaker tracks the engine's operational state and the reason for the most
// recent transition away from Running.
type Breaker struct {
	mu         sync.RWMutex
	state      State
	reason     string
	enteredAt  time.Time
	onSafeMode func(reason string)
}

// New creates a breaker starting in StateRunning.
func New() *Breaker {
	return &Breaker{
		state:     StateRunning,
		enteredAt: time.Now(),
	}
}

// OnSafeMode registers a callback invoked when the breaker transitions into
// SAFE_MODE, used by the orchestrator to fire a CRITICAL notification.
func (b *Breaker) OnSafeMode(fn func(reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSafeMode = fn
}

// State returns the current operational state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// CanOpenPositions reports whether new positions may be opened in the
// current state.
func (b *Breaker) CanOpenPositions() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == StateRunning
}

// Degrade transitions the engine to DEGRADED. A no-op if already in
// SAFE_MODE or HALTED, since those are more severe.
func (b *Breaker) Degrade(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateSafeMode || b.state == StateHalted {
		return
	}
	b.state = StateDegraded
	b.reason = reason
	b.enteredAt = time.Now()
}

// TripSafeMode transitions the engine to SAFE_MODE on a critical invariant
// breach. Idempotent: re-tripping while already in SAFE_MODE updates the
// reason but does not re-fire the callback.
func (b *Breaker) TripSafeMode(reason string) {
	b.mu.Lock()
	already := b.state == StateSafeMode
	b.state = StateSafeMode
	b.reason = reason
	b.enteredAt = time.Now()
	cb := b.onSafeMode
	b.mu.Unlock()

	if !already && cb != nil {
		cb(reason)
	}
}

// Clear returns the engine to RUNNING. Intended for operator-initiated
// recovery after a SAFE_MODE trip has been investigated.
func (b *Breaker) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateRunning
	b.reason = ""
	b.enteredAt = time.Now()
}

// Halt transitions the engine to HALTED for graceful shutdown.
func (b *Breaker) Halt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateHalted
	b.enteredAt = time.Now()
}

// Status returns a snapshot suitable for the orchestrator's health tick.
func (b *Breaker) Status() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]interface{}{
		"state":      string(b.state),
		"reason":     b.reason,
		"entered_at": b.enteredAt,
		"since":      time.Since(b.enteredAt).String(),
	}
}

// String implements fmt.Stringer for log lines.
func (s State) String() string {
	return string(s)
}
