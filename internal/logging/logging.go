// Package logging provides structured logging using Go's slog package.
package logging

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// RunIDKey is the context key for a conversion run's identifier.
	RunIDKey ContextKey = "run_id"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	// Initialize with a default logger (JSON format, Info level)
	InitLogger(LevelInfo, FormatJSON)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// InitLogger initializes the global logger with the specified level and format.
func InitLogger(level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// WithRunID adds a conversion run id to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run id from the context.
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// LoggerFromContext returns a logger with context values attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger
	if runID := GetRunID(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	return logger
}

// Helper functions for common logging patterns

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// DebugContext logs a debug message with context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Debug(msg, args...)
}

// InfoContext logs an info message with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Info(msg, args...)
}

// WarnContext logs a warning message with context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Warn(msg, args...)
}

// ErrorContext logs an error message with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Error(msg, args...)
}

// PipelineStart logs the beginning of a conversion run.
func PipelineStart(ctx context.Context, inputFormat, outputFormat string, args ...any) {
	allArgs := []any{
		"input_format", inputFormat,
		"output_format", outputFormat,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("pipeline_start", allArgs...)
}

// PipelineDone logs the end of a conversion run.
func PipelineDone(ctx context.Context, duration time.Duration, args ...any) {
	allArgs := []any{"duration_ms", duration.Milliseconds()}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("pipeline_done", allArgs...)
}

// PhaseProgress logs a pipeline phase transition with its fractional progress.
func PhaseProgress(ctx context.Context, phase string, fraction float64, args ...any) {
	allArgs := []any{
		"phase", phase,
		"progress", fraction,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Debug("phase_progress", allArgs...)
}

// TransformApplied logs completion of a single transform.
func TransformApplied(ctx context.Context, name string, duration time.Duration, args ...any) {
	allArgs := []any{
		"transform", name,
		"duration_ms", duration.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("transform_applied", allArgs...)
}

// TransformSkipped logs a transform that ShouldRun declined to apply.
func TransformSkipped(ctx context.Context, name, reason string, args ...any) {
	allArgs := []any{
		"transform", name,
		"reason", reason,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Debug("transform_skipped", allArgs...)
}

// PluginLoaded logs registration of an input or output plugin.
func PluginLoaded(pluginName, direction string, formats []string, args ...any) {
	allArgs := []any{
		"plugin", pluginName,
		"direction", direction,
		"formats", formats,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("plugin_loaded", allArgs...)
}

// PluginError logs plugin errors.
func PluginError(pluginName, operation string, err error, args ...any) {
	allArgs := []any{
		"plugin", pluginName,
		"operation", operation,
		"error", err.Error(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Error("plugin_error", allArgs...)
}

// InvariantViolation logs a detected IR invariant failure before it is
// surfaced to the caller as an error.
func InvariantViolation(ctx context.Context, invariant, transform, detail string) {
	LoggerFromContext(ctx).Error("invariant_violation",
		"invariant", invariant,
		"transform", transform,
		"detail", detail,
	)
}
