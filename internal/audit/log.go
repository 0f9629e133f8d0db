// Package audit implements the order lifecycle event log the order
// manager (C10) appends to on every submit, modification and close.
// Grounded on the teacher's order modification event log
// (internal/orders/modification_tracker.go), trimmed from its
// multi-tenant/LLM-attribution schema down to the fields this engine's
// single-strategy pipeline actually produces, and backed by zerolog the
// way the teacher's own tracker is.
package audit

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType names a step in an order's lifecycle.
type EventType string

const (
	EventPlaced     EventType = "PLACED"
	EventModified   EventType = "MODIFIED"
	EventCancelled  EventType = "CANCELLED"
	EventClosed     EventType = "CLOSED"
)

// Event is one recorded lifecycle step.
type Event struct {
	Timestamp time.Time
	Symbol    string
	OrderRole string // "entry", "stop", "trail", "close"
	Type      EventType
	Price     float64
	AlgoID    int64
	Reason    string
}

// maxRetained bounds the in-memory ring so a long-running process doesn't
// grow the event log without bound; the zerolog sink is the durable copy.
const maxRetained = 2000

// Log appends order lifecycle events to a structured zerolog sink and
// retains the most recent entries for inspection.
type Log struct {
	logger zerolog.Logger

	mu     sync.Mutex
	events []Event
}

// New creates an audit log writing structured JSON lines to os.Stdout.
func New() *Log {
	return &Log{logger: zerolog.New(os.Stdout).With().Timestamp().Str("component", "audit").Logger()}
}

// Record appends e to the in-memory ring and emits it as a structured log
// line.
func (l *Log) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, e)
	if len(l.events) > maxRetained {
		l.events = l.events[len(l.events)-maxRetained:]
	}
	l.mu.Unlock()

	l.logger.Info().
		Str("symbol", e.Symbol).
		Str("role", e.OrderRole).
		Str("event", string(e.Type)).
		Float64("price", e.Price).
		Int64("algo_id", e.AlgoID).
		Str("reason", e.Reason).
		Msg("order lifecycle event")
}

// Recent returns a copy of the last n recorded events, most recent last.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}
