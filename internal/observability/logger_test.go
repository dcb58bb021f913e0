package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewLogger(t *testing.T) {
	t.Run("json to stdout", func(t *testing.T) {
		logger := NewLogger(DefaultLoggingConfig())
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("debug level with caller", func(t *testing.T) {
		logger := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stdout", AddSource: true})
		assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	})

	t.Run("console format to stderr", func(t *testing.T) {
		logger := NewLogger(LoggingConfig{Level: "warn", Format: "console", Output: "stderr"})
		assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
	})

	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestWithRestaurantContext(t *testing.T) {
	var buf bytes.Buffer
	logger := WithRestaurantContext(zerolog.New(&buf), 42)
	logger.Info().Msg("view recorded")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, float64(42), entry["restaurant_id"])
	assert.Equal(t, "view recorded", entry["message"])
}

func TestWithRequesterContext(t *testing.T) {
	var buf bytes.Buffer
	logger := WithRequesterContext(zerolog.New(&buf), 7)
	logger.Info().Msg("like toggled")

	assert.Equal(t, float64(7), decodeEntry(t, &buf)["user_id"])
}

func TestWithRequestContext(t *testing.T) {
	t.Run("adds ids present on the context", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithRequesterID(WithRequestID(context.Background(), "req-1"), 99)

		logger := WithRequestContext(ctx, zerolog.New(&buf))
		logger.Info().Msg("listing")

		entry := decodeEntry(t, &buf)
		assert.Equal(t, "req-1", entry["request_id"])
		assert.Equal(t, float64(99), entry["requester_id"])
	})

	t.Run("omits absent ids", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithRequestContext(context.Background(), zerolog.New(&buf))
		logger.Info().Msg("listing")

		entry := decodeEntry(t, &buf)
		assert.NotContains(t, entry, "request_id")
		assert.NotContains(t, entry, "requester_id")
	})
}
