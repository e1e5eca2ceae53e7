package oors

// Logger defines the interface for kernel logging.
// The kernel uses structured logging with key-value pairs so that hosts can
// plug in slog, charmbracelet/log, zap or any other backend:
//
//	logger.Info("module registered", "module", "router")
type Logger interface {
	// Info logs normal lifecycle events like registration and bootstrap.
	Info(msg string, args ...any)

	// Error logs failures that abort a lifecycle phase.
	Error(msg string, args ...any)

	// Warn logs unusual but non-fatal conditions, e.g. a disabled module.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostics such as dependency edges and hook runs.
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }
