package deferred

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// swapLogger installs l for the duration of the test.
func swapLogger(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := Logger()
	SetLogger(l)
	t.Cleanup(func() { SetLogger(prev) })
}

func TestLoggerSilentByDefault(t *testing.T) {
	swapLogger(t, nil)
	for _, lv := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if Logger().Enabled(context.Background(), lv) {
			t.Errorf("default logger enabled at %v", lv)
		}
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	swapLogger(t, l)
	if Logger() != l {
		t.Fatal("Logger() did not return the installed logger")
	}
	Logger().Info("rebuild", "reason", "resize")
	if !strings.Contains(buf.String(), "reason=resize") {
		t.Errorf("output = %q", buf.String())
	}

	SetLogger(nil)
	if Logger() == nil || Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) did not restore the silent logger")
	}
}

func TestRendererLoggerOverride(t *testing.T) {
	var pkg, own bytes.Buffer
	swapLogger(t, slog.New(slog.NewTextHandler(&pkg, &slog.HandlerOptions{Level: slog.LevelDebug})))

	cfg := testConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(&own, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r, _ := newTestRenderer(t, cfg)
	r.Destroy()

	tests := []struct {
		name string
		buf  *bytes.Buffer
		msg  string
		want bool
	}{
		{"config logger gets lifecycle", &own, "renderer ready", true},
		{"package logger skips lifecycle", &pkg, "renderer ready", false},
		{"internal packages use package logger", &pkg, "step ready", true},
	}
	for _, tt := range tests {
		if got := strings.Contains(tt.buf.String(), tt.msg); got != tt.want {
			t.Errorf("%s: contains %q = %v", tt.name, tt.msg, got)
		}
	}
}

func TestSetLoggerConcurrent(t *testing.T) {
	swapLogger(t, nil)
	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				SetLogger(slog.New(slog.DiscardHandler))
				return
			}
			Logger().Debug("frame", "n", i)
		}()
	}
	wg.Wait()
}

func BenchmarkDisabledDebug(b *testing.B) {
	l := Logger()
	b.ReportAllocs()
	for b.Loop() {
		l.Debug("submit", "batches", 7)
	}
}
