package drawsched

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the package default logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the default logger used by render contexts created
// without WithLogger. By default drawsched produces no log output.
//
// Log levels used by drawsched:
//   - [slog.LevelDebug]: dispatch decisions, cache barriers
//   - [slog.LevelInfo]: lifecycle events (context created, unit registered)
//   - [slog.LevelWarn]: backend failures, fallback refills, allocation failures
//
// Pass nil to restore the silent default.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the package default logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// LoggerSetter is implemented by backends that accept a logger.
type LoggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a backend if it implements
// LoggerSetter.
func propagateLogger(b Backend, l *slog.Logger) {
	if ls, ok := b.(LoggerSetter); ok {
		ls.SetLogger(l)
	}
}
