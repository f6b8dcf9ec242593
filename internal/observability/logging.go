// ABOUTME: Structured logging with slog for the pkgaudit CLI and watch mode
// ABOUTME: Text or JSON handler with trace ID injection and service metadata

package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoggingConfig holds configuration for structured logging.
type LoggingConfig struct {
	// Log level: debug, info, warn, error.
	Level string

	// Output format: json or text.
	Format string

	// Service name to include in logs.
	ServiceName string

	// Service version to include in logs.
	Version string

	// Include source location in logs.
	AddSource bool
}

// NewLogger creates a new structured logger with the given configuration.
// Logs go to stderr by default so report output on stdout stays clean.
func NewLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLogLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	var attrs []slog.Attr
	if cfg.ServiceName != "" {
		attrs = append(attrs, slog.String("service", cfg.ServiceName))
	}
	if cfg.Version != "" {
		attrs = append(attrs, slog.String("version", cfg.Version))
	}
	if len(attrs) > 0 {
		handler = handler.WithAttrs(attrs)
	}

	return slog.New(handler)
}

// ParseLogLevel parses a log level string into a slog.Level.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogWithContext logs a message with the run ID and trace context attached.
func LogWithContext(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, args ...any) {
	if id := RunIDFromContext(ctx); id != "" {
		args = append(args, slog.String("run_id", id.String()))
	}
	if traceID, spanID := SpanIDs(ctx); traceID != "" {
		args = append(args, slog.String("trace_id", traceID), slog.String("span_id", spanID))
	}

	logger.Log(ctx, level, msg, args...)
}

// OrDefault returns logger, or slog.Default() when logger is nil.
func OrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
