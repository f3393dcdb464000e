package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

const (
	// TraceIDKey carries the trace id.
	TraceIDKey ContextKey = "trace_id"
	// CorrelationIDKey carries the per-message correlation id.
	CorrelationIDKey ContextKey = "correlation_id"
	// SessionKeyKey carries the session key being processed.
	SessionKeyKey ContextKey = "session_key"
)

// NewCorrelationID generates a fresh correlation id.
func NewCorrelationID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace id to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithCorrelationID adds a correlation id to the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// WithSessionKey adds a session key to the context.
func WithSessionKey(ctx context.Context, sessionKey string) context.Context {
	return context.WithValue(ctx, SessionKeyKey, sessionKey)
}

// GetTraceID retrieves the trace id from the context.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// GetCorrelationID retrieves the correlation id from the context.
func GetCorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return v
	}
	return ""
}

// GetSessionKey retrieves the session key from the context.
func GetSessionKey(ctx context.Context) string {
	if v, ok := ctx.Value(SessionKeyKey).(string); ok {
		return v
	}
	return ""
}

// LoggerFromContext returns a child logger annotated with whatever tracing
// fields are present in the context.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	lc := base.With()
	if traceID := GetTraceID(ctx); traceID != "" {
		lc = lc.Str("trace_id", traceID)
	}
	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		lc = lc.Str("correlation_id", correlationID)
	}
	if sessionKey := GetSessionKey(ctx); sessionKey != "" {
		lc = lc.Str("session_key", sessionKey)
	}
	return lc.Logger()
}
