// Package logger provides ramboot's structured logging using slog. A
// single-shot early-boot process has no daemon log aggregator to assume
// is listening, so Stage returns a logger whose lines carry a "stage"
// attribute identifying which part of the boot pipeline produced them.
// The package-level Debug/Info/Warn/Error helpers add no stage attribute.
package logger

import (
	"log/slog"
	"os"
)

// Level represents log level
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Config for logger configuration
type Config struct {
	Level  Level
	Format string // "json" or "text"
}

var defaultLogger *slog.Logger

// Init initializes the global logger with the given configuration
func Init(cfg Config) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: cfg.Level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// Get returns the default logger
func Get() *slog.Logger {
	if defaultLogger == nil {
		// Fallback to default
		defaultLogger = slog.Default()
	}
	return defaultLogger
}

// Stage returns a logger that tags every record with which boot-pipeline
// stage emitted it (activation, probe, ramdisk, replicate, pivot, ...),
// so a single boot's log can be grepped by phase without needing a
// separate logger instance threaded through every package.
func Stage(name string) *slog.Logger {
	return Get().With("stage", name)
}

// Debug logs a debug message with optional key-value pairs
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}
