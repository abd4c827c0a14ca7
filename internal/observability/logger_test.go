package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return NewLogger(LogConfig{
		Level:       "debug",
		Format:      "json",
		Output:      buf,
		ServiceName: "test",
	})
}

func TestWithContextAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	ctx := ContextWithTraceID(context.Background(), "req-abc123")
	logger.WithContext(ctx).Info().Msg("handled")

	assert.Contains(t, buf.String(), `"trace_id":"req-abc123"`)
}

func TestWithContextWithoutTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.WithContext(context.Background()).Info().Msg("handled")

	assert.NotContains(t, buf.String(), "trace_id")
}

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "t-1")
	assert.Equal(t, "t-1", TraceIDFromContext(ctx))
	assert.Equal(t, "", TraceIDFromContext(context.Background()))
}

func TestWithTenantAndOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.WithTenant("tenant-1").WithOperation("query").Warn().Msg("degraded")

	out := buf.String()
	assert.Contains(t, out, `"tenant_id":"tenant-1"`)
	assert.Contains(t, out, `"operation":"query"`)
}

func TestLoggerContextChain(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.With().Str("breaker", "embedder").Int("failures", 3).Logger().
		Info().Msg("opened")

	out := buf.String()
	assert.Contains(t, out, `"breaker":"embedder"`)
	assert.Contains(t, out, `"failures":3`)
}
