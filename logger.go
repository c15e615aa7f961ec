package deferred

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/deferred/internal/shader"
	"github.com/gogpu/deferred/internal/step"
)

var (
	pkgLogger atomic.Pointer[slog.Logger]

	// internalLoggers receive every logger passed to SetLogger.
	internalLoggers = []func(*slog.Logger){shader.SetLogger, step.SetLogger}
)

func init() { pkgLogger.Store(silent()) }

func silent() *slog.Logger { return slog.New(slog.DiscardHandler) }

// SetLogger sets the logger used by the package and its internal packages
// when no Config.Logger is given. Nothing is logged by default; nil
// restores that.
//
// Levels: Debug for per-frame detail (submissions, chain rewiring, step
// setup), Info for lifecycle (backend opened, swapchain rebuilds), Warn for
// recoverable conditions (timeouts, out-of-date swapchains).
//
//	deferred.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silent()
	}
	pkgLogger.Store(l)
	for _, set := range internalLoggers {
		set(l)
	}
}

// Logger returns the package logger.
func Logger() *slog.Logger { return pkgLogger.Load() }
