package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID.
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context, falling back to the
// default logger if none was attached.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext attaches a logger to the context.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext generates a trace ID, attaches it and a logger carrying
// it to the context, and returns both.
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// SymbolContext creates a logger scoped to a single trading symbol.
func SymbolContext(symbol string) *Logger {
	return Default().WithField("symbol", symbol).WithComponent("orchestrator")
}

// OrderContext creates a logger context for order operations.
func OrderContext(clientOrderID, symbol, side, orderType string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"client_order_id": clientOrderID,
		"symbol":          symbol,
		"side":            side,
		"order_type":      orderType,
	}).WithComponent("orders")
}

// PositionContext creates a logger context for position operations.
func PositionContext(symbol, side string, entryPrice, quantity float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":      symbol,
		"side":        side,
		"entry_price": entryPrice,
		"quantity":    quantity,
	}).WithComponent("position")
}

// SignalContext creates a logger context for rule-engine signals.
func SignalContext(symbol, action string, score float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol": symbol,
		"action": action,
		"score":  score,
	}).WithComponent("rules")
}

// RiskContext creates a logger context for pre-trade veto evaluation.
func RiskContext(symbol, stage string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol": symbol,
		"stage":  stage,
	}).WithComponent("risk")
}

// ExchangeContext creates a logger context for exchange REST/WS calls,
// excluding signature and key material from the logged fields.
func ExchangeContext(endpoint string, params map[string]interface{}) *Logger {
	l := Default().WithField("endpoint", endpoint).WithComponent("binance")
	for k, v := range params {
		if k != "signature" && k != "apiKey" {
			l = l.WithField(k, v)
		}
	}
	return l
}

// StateContext creates a logger context for state-store operations.
func StateContext(operation string) *Logger {
	return Default().WithField("operation", operation).WithComponent("state")
}

// NotifierContext creates a logger context for notifier dispatch.
func NotifierContext(priority string) *Logger {
	return Default().WithField("priority", priority).WithComponent("notifier")
}
