package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNewLogger_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&buf, "info")
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-123")

	logger.InfoContext(ctx, "form created", "form_id", "f1")
	logger.DebugContext(ctx, "hidden at info level")

	out := buf.String()
	assert.Contains(t, out, "request_id=req-123")
	assert.Contains(t, out, "form_id=f1")
	assert.NotContains(t, out, "hidden at info level")
}

func TestParseTraceIDRatio(t *testing.T) {
	assert.InDelta(t, 0.25, parseTraceIDRatio("0.25"), 1e-9)
	assert.InDelta(t, defaultTraceIDRatio, parseTraceIDRatio(""), 1e-9)
	assert.InDelta(t, defaultTraceIDRatio, parseTraceIDRatio("2"), 1e-9)
	assert.InDelta(t, defaultTraceIDRatio, parseTraceIDRatio("abc"), 1e-9)
}
