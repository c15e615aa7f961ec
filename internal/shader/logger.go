package shader

import (
	"log/slog"
	"sync/atomic"
)

var loggerPtr atomic.Pointer[slog.Logger]

func init() { loggerPtr.Store(slog.New(slog.DiscardHandler)) }

func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger sets the package logger. The root package forwards its own.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	loggerPtr.Store(l)
}
