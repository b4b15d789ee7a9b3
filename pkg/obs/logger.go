package obs

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

var debugEnabled atomic.Bool

// SetDebug toggles the process-wide DEBUG gate (§4.9: "Level DEBUG is
// gated by a process-wide flag"). Safe to call before or after loggers are
// constructed.
func SetDebug(enabled bool) { debugEnabled.Store(enabled) }

// Logger produces structured JSON entries carrying whatever TraceContext is
// active on the context passed to each call.
type Logger struct {
	component string
	slog      *slog.Logger
}

// New constructs a Logger for the named component, writing JSON to stdout.
func New(component string) *Logger {
	level := slog.LevelInfo
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug, // filtering happens in our own gate, not slog's
	})
	_ = level
	return &Logger{component: component, slog: slog.New(handler)}
}

// Child returns a derived logger scoped to a sub-component name; the trace
// context still comes from the ctx passed to each log call, not from the
// logger itself (loggers are stateless w.r.t. trace).
func (l *Logger) Child(component string) *Logger {
	return &Logger{component: l.component + "." + component, slog: l.slog}
}

func (l *Logger) attrs(ctx context.Context, extra ...any) []any {
	args := []any{"component", l.component}
	if tc, ok := FromContext(ctx); ok {
		if tc.RunID != "" {
			args = append(args, "runId", tc.RunID)
		}
		if tc.TenantID != "" {
			args = append(args, "tenantId", tc.TenantID)
		}
		if tc.StepID != "" {
			args = append(args, "stepId", tc.StepID)
		}
		args = append(args, "spanId", tc.SpanID)
	}
	return append(args, extra...)
}

func (l *Logger) Debug(ctx context.Context, message string, data ...any) {
	if !debugEnabled.Load() {
		return
	}
	l.slog.DebugContext(ctx, message, l.attrs(ctx, data...)...)
}

func (l *Logger) Info(ctx context.Context, message string, data ...any) {
	l.slog.InfoContext(ctx, message, l.attrs(ctx, data...)...)
}

func (l *Logger) Warn(ctx context.Context, message string, data ...any) {
	l.slog.WarnContext(ctx, message, l.attrs(ctx, data...)...)
}

// Error logs at ERROR, never including secret material — callers are
// responsible for not passing it in data, same discipline the teacher's
// api.WriteInternal applies to HTTP error responses.
func (l *Logger) Error(ctx context.Context, message string, err error, data ...any) {
	args := l.attrs(ctx, data...)
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.slog.ErrorContext(ctx, message, args...)
}

// WithDuration logs message with a durationMs field, matching the §4.9
// entry shape {..., durationMs?}.
func (l *Logger) WithDuration(ctx context.Context, message string, d time.Duration, data ...any) {
	args := append(l.attrs(ctx, data...), "durationMs", d.Milliseconds())
	l.slog.InfoContext(ctx, message, args...)
}
