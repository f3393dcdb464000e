package observability

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ActionEntry records one session-level transition: prompt issued, steer
// delivered, response produced, invocation failed.
type ActionEntry struct {
	Timestamp     time.Time              `json:"timestamp"`
	SessionKey    string                 `json:"session_key"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Action        string                 `json:"action"`
	Status        string                 `json:"status"` // "ok", "error", "pending"
	Message       string                 `json:"message,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// RunEntry records one scheduled job execution.
type RunEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	JobID     string                 `json:"job_id"`
	JobName   string                 `json:"job_name,omitempty"`
	Status    string                 `json:"status"`
	Error     string                 `json:"error,omitempty"`
	Duration  time.Duration          `json:"duration_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AuditLogger is the append-only audit sink. Entries are written as one JSON
// line each through a dedicated zerolog instance.
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

var (
	auditOnce sync.Once
	auditInst *AuditLogger
)

// GetAuditLogger returns the global audit logger, defaulting to stderr until
// InitAuditLogger points it at a file.
func GetAuditLogger() *AuditLogger {
	auditOnce.Do(func() {
		if auditInst == nil {
			auditInst = &AuditLogger{
				logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
			}
		}
	})
	return auditInst
}

// InitAuditLogger directs the global audit logger at an append-only file.
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	auditInst = &AuditLogger{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		file:   file,
	}
	return nil
}

// LogAction appends a session transition entry.
func (a *AuditLogger) LogAction(ctx context.Context, entry ActionEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent(entry.Action, trace.WithAttributes(
			attribute.String("audit.session_key", entry.SessionKey),
			attribute.String("audit.status", entry.Status),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ev := a.logger.Log().
		Str("type", "action").
		Str("session_key", entry.SessionKey).
		Str("correlation_id", entry.CorrelationID).
		Str("action", entry.Action).
		Str("status", entry.Status).
		Str("message", entry.Message)
	if entry.Metadata != nil {
		ev = ev.Interface("metadata", entry.Metadata)
	}
	ev.Msg("")
}

// LogRun appends a scheduled job run entry.
func (a *AuditLogger) LogRun(ctx context.Context, entry RunEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ev := a.logger.Log().
		Str("type", "run").
		Str("job_id", entry.JobID).
		Str("job_name", entry.JobName).
		Str("status", entry.Status).
		Dur("duration", entry.Duration)
	if entry.Error != "" {
		ev = ev.Str("error", entry.Error)
	}
	if entry.Metadata != nil {
		ev = ev.Interface("metadata", entry.Metadata)
	}
	ev.Msg("")
}

// Close closes the underlying file handle, if any.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}
