// Package logger provides leveled logging for the milo CLI.
// Debug and info output is only emitted with the --verbose flag so users can
// follow the ingest and query pipelines. Warnings and errors are always emitted.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	level             = new(slog.LevelVar)
	base              = newLogger(os.Stderr)
)

func init() {
	level.Set(slog.LevelWarn)
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Timestamps make CLI output noisy and tests non-deterministic.
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelWarn)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = newLogger(w)
}

// Logger returns the underlying structured logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// With returns a structured logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Debug logs a formatted message if verbose mode is enabled.
func Debug(format string, args ...any) {
	Logger().Debug(fmt.Sprintf(format, args...))
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Info logs a formatted informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	Logger().Info(fmt.Sprintf(format, args...))
}

// Warn logs a formatted warning.
func Warn(format string, args ...any) {
	Logger().Warn(fmt.Sprintf(format, args...))
}

// Error logs a formatted error.
func Error(format string, args ...any) {
	Logger().Error(fmt.Sprintf(format, args...))
}
