package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetCorrelationID(ctx))
	assert.Empty(t, GetSessionKey(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithCorrelationID(ctx, "corr-1")
	ctx = WithSessionKey(ctx, "group:support:main")

	assert.Equal(t, "trace-1", GetTraceID(ctx))
	assert.Equal(t, "corr-1", GetCorrelationID(ctx))
	assert.Equal(t, "group:support:main", GetSessionKey(ctx))
}

func TestNewCorrelationID(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithCorrelationID(context.Background(), "corr-9")
	ctx = WithSessionKey(ctx, "group:support:main")

	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	assert.Contains(t, out, `"correlation_id":"corr-9"`)
	assert.Contains(t, out, `"session_key":"group:support:main"`)
	assert.NotContains(t, out, "trace_id")
}
