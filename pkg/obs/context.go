// Package obs provides the run control plane's observability stack:
// structured logging, a propagated trace context, and a pluggable metrics
// registry with RED (rate/errors/duration) instrumentation. Go has no
// native task-local storage, so trace context rides on context.Context —
// the idiomatic Go substitute the spec calls out explicitly.
package obs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type traceContextKey struct{}

// TraceContext is propagated through the call tree via context.Context.
// Loggers read it automatically (see WithTrace / FromContext).
type TraceContext struct {
	RunID        string
	TenantID     string
	StepID       string
	ParentSpanID string
	SpanID       string
	StartedAt    time.Time
}

// WithTrace returns a derived context carrying tc, generating a SpanID if
// absent. The caller that started the prior span (if any) becomes ParentSpanID.
func WithTrace(ctx context.Context, tc TraceContext) context.Context {
	if tc.SpanID == "" {
		tc.SpanID = uuid.New().String()
	}
	if parent, ok := FromContext(ctx); ok && tc.ParentSpanID == "" {
		tc.ParentSpanID = parent.SpanID
		if tc.RunID == "" {
			tc.RunID = parent.RunID
		}
		if tc.TenantID == "" {
			tc.TenantID = parent.TenantID
		}
	}
	if tc.StartedAt.IsZero() {
		tc.StartedAt = time.Now().UTC()
	}
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// FromContext retrieves the active TraceContext, if any.
func FromContext(ctx context.Context) (TraceContext, bool) {
	tc, ok := ctx.Value(traceContextKey{}).(TraceContext)
	return tc, ok
}

// SetTraceContext runs fn with tc active on ctx and returns whatever fn
// returns; the previous trace context (if any) is restored on every exit
// path because derived contexts never mutate their parent.
func SetTraceContext(ctx context.Context, tc TraceContext, fn func(context.Context) error) error {
	return fn(WithTrace(ctx, tc))
}
