package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// TraceIDFromContext returns the trace ID stored by WithTraceContext.
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTraceContext adds a trace ID to the context and returns a logger with it.
// The logger already stored in ctx is used as the parent when present.
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := FromContext(ctx).WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// The helpers below attach the standard fields of one kind of event to a
// component logger. The component is kept.

// TradeContext tags an order fill
func (l *Logger) TradeContext(symbol, side string, quantity int, price float64) *Logger {
	return l.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
		"price":    price,
	})
}

// PositionContext tags the lifecycle of a held position
func (l *Logger) PositionContext(symbol string, entryPrice float64, quantity int) *Logger {
	return l.WithFields(map[string]interface{}{
		"symbol":      symbol,
		"entry_price": entryPrice,
		"quantity":    quantity,
	})
}

// SignalContext tags a per-symbol trading decision
func (l *Logger) SignalContext(symbol, action string, confidence int) *Logger {
	return l.WithFields(map[string]interface{}{
		"symbol":     symbol,
		"action":     action,
		"confidence": confidence,
	})
}

// RiskContext tags a risk gate change with the account's daily change in
// percent and its current losing streak
func (l *Logger) RiskContext(dailyPnLPct float64, losingStreak int) *Logger {
	return l.WithFields(map[string]interface{}{
		"daily_pnl_pct": dailyPnLPct,
		"losing_streak": losingStreak,
	})
}

// APIContext tags a served request
func (l *Logger) APIContext(method, path string, statusCode int) *Logger {
	return l.WithFields(map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
	})
}
