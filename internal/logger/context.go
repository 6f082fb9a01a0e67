package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for one wire-protocol
// request: category/subcategory being dispatched, the authenticated
// identity (once known), and the connection it arrived on.
type LogContext struct {
	TraceID      string    // OpenTelemetry trace ID
	SpanID       string    // OpenTelemetry span ID
	Category     string    // wire.Category name (AUTH, FILE_OP, ...)
	Subcategory  string    // wire.Subcategory name (LOGIN, CREATE, ...)
	Identity     string    // authenticated username, empty before auth
	ConnectionID string    // per-connection identifier
	ClientIP     string    // client IP address (without port)
	StartTime    time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:      lc.TraceID,
		SpanID:       lc.SpanID,
		Category:     lc.Category,
		Subcategory:  lc.Subcategory,
		Identity:     lc.Identity,
		ConnectionID: lc.ConnectionID,
		ClientIP:     lc.ClientIP,
		StartTime:    lc.StartTime,
	}
}

// WithCategory returns a copy with the category/subcategory set.
func (lc *LogContext) WithCategory(category, subcategory string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Category = category
		clone.Subcategory = subcategory
	}
	return clone
}

// WithIdentity returns a copy with the authenticated identity set.
func (lc *LogContext) WithIdentity(identity string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Identity = identity
	}
	return clone
}

// WithConnection returns a copy with the connection identifier set.
func (lc *LogContext) WithConnection(connID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ConnectionID = connID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
