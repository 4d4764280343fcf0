package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewLogger(t *testing.T) {
	t.Run("text output", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelInfo, Format: LogFormatText, Output: &buf})

		logger.Info("subscription created", "plan", "pro")

		assert.Contains(t, buf.String(), "subscription created")
		assert.Contains(t, buf.String(), "plan=pro")
	})

	t.Run("json output with service", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelInfo, Format: LogFormatJSON, Output: &buf, ServiceName: "subtrack", ServiceVersion: "1.2.0"})

		logger.Info("ready")

		entry := decodeLine(t, &buf)
		assert.Equal(t, "ready", entry["msg"])
		assert.Equal(t, "subtrack", entry["service"])
		assert.Equal(t, "1.2.0", entry["version"])
	})

	t.Run("respects level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelWarn, Output: &buf})

		logger.Info("info message")
		logger.Warn("warn message")

		assert.NotContains(t, buf.String(), "info message")
		assert.Contains(t, buf.String(), "warn message")
	})
}

func TestNewLogger_ContextValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf})

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithCorrelationID(ctx, "corr-1")
	ctx = WithUserID(ctx, "user-1")
	logger.With("component", "api").InfoContext(ctx, "handled")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-1", entry[RequestIDKey])
	assert.Equal(t, "corr-1", entry[CorrelationIDKey])
	assert.Equal(t, "user-1", entry[UserIDKey])
	assert.Equal(t, "api", entry["component"])
}

func TestLogConfigFor(t *testing.T) {
	dev := LogConfigFor("", "", "development")
	assert.Equal(t, LogFormatText, dev.Format)
	assert.Equal(t, LogLevelInfo, dev.Level)
	assert.Equal(t, "subtrack", dev.ServiceName)

	prod := LogConfigFor("DEBUG", "", "production")
	assert.Equal(t, LogFormatJSON, prod.Format)
	assert.Equal(t, LogLevelDebug, prod.Level)
	assert.Equal(t, os.Stdout, prod.Output)
	assert.True(t, prod.AddSource)

	assert.Equal(t, LogFormatText, LogConfigFor("", "text", "production").Format)
}

func TestParseSlogLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected slog.Level
	}{
		{LogLevelDebug, slog.LevelDebug},
		{LogLevelInfo, slog.LevelInfo},
		{LogLevelWarn, slog.LevelWarn},
		{LogLevelError, slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			assert.Equal(t, tt.expected, parseSlogLevel(tt.input))
		})
	}
}

func TestContextValues(t *testing.T) {
	ctx := NewRequestContext(context.Background(), "")
	assert.NotEmpty(t, RequestIDFromContext(ctx))
	assert.NotEmpty(t, CorrelationIDFromContext(ctx))

	ctx = NewRequestContext(context.Background(), "upstream")
	assert.Equal(t, "upstream", CorrelationIDFromContext(ctx))

	assert.Empty(t, UserIDFromContext(context.Background()))
}
