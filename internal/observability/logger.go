package observability

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// ServiceName is attached to every log line as the service field.
const ServiceName = "materials-aggregator"

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error, fatal or panic.
	Level string

	// Format is json, or console/pretty for human-readable output.
	Format string

	// Output is stdout, stderr, or a file path opened in append mode.
	Output string

	// AddSource adds the caller's file and line.
	AddSource bool

	// TimeFormat is the timestamp layout. Defaults to RFC 3339.
	TimeFormat string
}

// NewLogger builds the process logger and sets the global level to match.
// An unopenable output file falls back to stderr with a warning.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	w, openErr := openOutput(cfg.Output)
	logger := newLogger(cfg, w)
	zerolog.SetGlobalLevel(logger.GetLevel())

	if openErr != nil {
		logger.Warn().Err(openErr).Str("output", cfg.Output).Msg("log output unavailable, using stderr")
	}
	return logger
}

func newLogger(cfg LoggingConfig, w io.Writer) zerolog.Logger {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = timeFormat

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
	}

	ctx := zerolog.New(w).With().Timestamp().Str("service", ServiceName)
	if cfg.AddSource {
		ctx = ctx.Caller()
	}
	return ctx.Logger().Level(parseLevel(cfg.Level))
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stderr, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// parseLevel maps a level name to zerolog, accepting "warning" as warn.
// Unknown or empty names select info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithRequestContext adds the HTTP request ID to a logger.
func WithRequestContext(logger zerolog.Logger, requestID string) zerolog.Logger {
	return logger.With().Str("request_id", requestID).Logger()
}

// WithWorkflowContext adds Temporal workflow fields to a logger.
func WithWorkflowContext(logger zerolog.Logger, workflowID, runID string) zerolog.Logger {
	return logger.With().
		Str("workflow_id", workflowID).
		Str("workflow_run_id", runID).
		Logger()
}

// UpstreamFields adds the error_kind and status of an upstream failure to a
// log event, plus the error itself. Callers add the source field.
func UpstreamFields(e *zerolog.Event, err error) *zerolog.Event {
	var upstreamErr *domain.UpstreamError
	if errors.As(err, &upstreamErr) {
		e = e.Str("error_kind", string(upstreamErr.Kind)).
			Int("status", upstreamErr.StatusCode)
	}
	return e.Err(err)
}
