// Package logger provides the logging interface ftpwarp's CLI wires into
// the download engine: one run's worth of worker/supervisor activity,
// tagged with a per-run correlation id (see ftplib.NewCorrelationID),
// written to a log file and, under --debug, echoed to stderr as well via
// MultiLogger.
package logger

import (
	"log"
)

// Logger defines the interface for structured logging across all ftpwarp
// components. ftplib.Logger is a narrower structural subset of this
// interface (Info/Warning/Error only), so any Logger here satisfies it
// without the engine package needing to import this one directly.
type Logger interface {
	// Info logs an informational message (e.g., "download complete").
	Info(format string, args ...interface{})

	// Warning logs a warning message (e.g., a worker's transient recv error).
	Warning(format string, args ...interface{})

	// Error logs an error message (e.g., a fatal transport failure).
	Error(format string, args ...interface{})

	// Close releases resources held by the logger. StandardLogger holds
	// none (its log file is closed by whoever opened it). Safe to call
	// multiple times. Returns nil for loggers without resources.
	Close() error
}

// StandardLogger wraps the stdlib *log.Logger, the backend main.go uses
// for the per-run log file it opens before starting a download.
type StandardLogger struct {
	logger *log.Logger
}

// NewStandardLogger creates a logger that wraps the given *log.Logger.
func NewStandardLogger(l *log.Logger) *StandardLogger {
	return &StandardLogger{logger: l}
}

// Info logs an informational message with [INFO] prefix.
func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.logger.Printf("[INFO] "+format, args...)
}

// Warning logs a warning message with [WARNING] prefix.
func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.logger.Printf("[WARNING] "+format, args...)
}

// Error logs an error message with [ERROR] prefix.
func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+format, args...)
}

// Close is a no-op for StandardLogger (no resources to release): the
// underlying log file itself is owned and closed by whoever opened it,
// not by the logger wrapping it.
func (s *StandardLogger) Close() error {
	return nil
}

// NopLogger is a logger that discards all messages. ftplib falls back to
// an equivalent internal no-op logger when no Logger is configured; this
// one is for callers outside that package that want the same behavior
// explicitly, e.g. a CLI invocation where the log file could not be
// opened.
type NopLogger struct{}

// NewNopLogger creates a logger that discards all messages.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// Info discards the message.
func (n *NopLogger) Info(format string, args ...interface{}) {}

// Warning discards the message.
func (n *NopLogger) Warning(format string, args ...interface{}) {}

// Error discards the message.
func (n *NopLogger) Error(format string, args ...interface{}) {}

// Close is a no-op.
func (n *NopLogger) Close() error {
	return nil
}

// Ensure implementations satisfy the Logger interface.
var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = (*NopLogger)(nil)
)
