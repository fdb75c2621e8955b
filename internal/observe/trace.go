package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type jobIDKey struct{}

// Tracer returns the voxscribe tracer from the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(scopeName)
}

// StartSpan starts a new span. The caller must call span.End.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID of the span in ctx, or "" when there is
// no span with a valid trace ID.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithJobID returns a copy of ctx carrying the transcription job id, which
// [Logger] adds to every record.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

// JobID returns the job id stored by [WithJobID], or "".
func JobID(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}

// Logger returns the default [slog.Logger] enriched with trace_id and span_id
// from the span in ctx and with the job id, when present.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := JobID(ctx); id != "" {
		l = l.With(slog.String("job", id))
	}
	return l
}
