package telemetry

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/felixgeelhaar/tradeflow"

func tracer(name string) trace.Tracer {
	return GetTracerProvider().Tracer(instrumentation + "/" + name)
}

// StartRequestSpan extracts the caller's trace context from r and opens a
// server span for it. Rename the span once the route is known.
func StartRequestSpan(r *http.Request) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return tracer("api").Start(ctx, r.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		),
	)
}

// StartExecutionSpan creates the root span of a plan run.
//
//	ctx, span := telemetry.StartExecutionSpan(ctx, plan.ID, plan.UserID, len(plan.Steps))
//	defer span.End()
func StartExecutionSpan(ctx context.Context, planID, userID string, steps int) (context.Context, trace.Span) {
	return tracer("orchestrator").Start(ctx, "plan.execute",
		trace.WithAttributes(
			attribute.String("plan.id", planID),
			attribute.String("user.id", userID),
			attribute.Int("plan.steps", steps),
		),
	)
}

// StartStepSpan creates a span for one step of a run.
func StartStepSpan(ctx context.Context, stepID, stepType string, order int) (context.Context, trace.Span) {
	return tracer("orchestrator").Start(ctx, "step."+stepType,
		trace.WithAttributes(
			attribute.String("step.id", stepID),
			attribute.String("step.type", stepType),
			attribute.Int("step.order", order),
		),
	)
}

// StartDispatchSpan creates a client span for a module call.
func StartDispatchSpan(ctx context.Context, moduleID, method string) (context.Context, trace.Span) {
	return tracer("module").Start(ctx, "module.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("module.id", moduleID),
			attribute.String("module.method", method),
		),
	)
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordDuration records the duration of an operation as a span attribute.
func RecordDuration(span trace.Span, name string, duration time.Duration) {
	span.SetAttributes(attribute.Int64(name+"_ms", duration.Milliseconds()))
}
