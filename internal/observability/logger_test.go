package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/materials-aggregator/internal/domain"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.Debug().Str("source", "arxiv").Msg("fetched")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, ServiceName, entry["service"])
	assert.Equal(t, "arxiv", entry["source"])
	assert.Contains(t, entry, "time")
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LoggingConfig{Level: "warn"}, &buf)

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	assert.Equal(t, "kept", decodeEntry(t, &buf)["message"])
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LoggingConfig{Format: "pretty"}, &buf)

	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(buf.Bytes()), "console output should not be JSON")
}

func TestNewLogger_AddSource(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LoggingConfig{AddSource: true}, &buf)

	logger.Info().Msg("where")
	assert.Contains(t, decodeEntry(t, &buf)["caller"], "logger_test.go")
}

func TestOpenOutput(t *testing.T) {
	w, err := openOutput("STDERR")
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, w)

	w, err = openOutput("")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, w)

	path := filepath.Join(t.TempDir(), "aggregator.log")
	w, err = openOutput(path)
	require.NoError(t, err)
	f, ok := w.(*os.File)
	require.True(t, ok)
	t.Cleanup(func() { _ = f.Close() })
	assert.FileExists(t, path)

	w, err = openOutput(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	require.Error(t, err)
	assert.Equal(t, os.Stderr, w)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"TRACE", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"FATAL", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"PANIC", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseLevel(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	return logEntry
}

func TestWithRequestContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	WithRequestContext(logger, "req-123").Info().Msg("test message")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "req-123", logEntry["request_id"])
	assert.Equal(t, "test message", logEntry["message"])
}

func TestWithWorkflowContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	WithWorkflowContext(logger, "wf-1", "run-1").Info().Msg("workflow")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "wf-1", logEntry["workflow_id"])
	assert.Equal(t, "run-1", logEntry["workflow_run_id"])
}

func TestUpstreamFields(t *testing.T) {
	t.Run("upstream error adds classification fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)

		err := fmt.Errorf("wrapped: %w", domain.NewStatusError(domain.SourceNewsAPI, 429, ""))
		UpstreamFields(logger.Warn(), err).Str("source", "newsapi").Msg("swallowed")

		logEntry := decodeEntry(t, &buf)
		assert.Equal(t, "newsapi", logEntry["source"])
		assert.Equal(t, "rate_limited", logEntry["error_kind"])
		assert.Equal(t, float64(429), logEntry["status"])
		assert.Contains(t, logEntry["error"], "rate limited")
	})

	t.Run("plain error only adds error", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)

		UpstreamFields(logger.Warn(), errors.New("boom")).Msg("swallowed")

		logEntry := decodeEntry(t, &buf)
		assert.Equal(t, "boom", logEntry["error"])
		assert.NotContains(t, logEntry, "error_kind")
	})
}
