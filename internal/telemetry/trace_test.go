package telemetry

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		SetTracerProvider(nil)
	})
	return exporter
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestSpanHierarchy(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, run := StartExecutionSpan(context.Background(), "plan-1", "user-1", 2)
	stepCtx, step := StartStepSpan(ctx, "plan-1-step-1", "data_collection", 0)
	_, dispatch := StartDispatchSpan(stepCtx, "krx-data", "data_collection")
	RecordDuration(dispatch, "dispatch", 1500*time.Millisecond)
	RecordSuccess(dispatch)
	dispatch.End()
	RecordError(step, errors.New("module failed"))
	step.End()
	run.End()

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}

	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}

	d := byName["module.dispatch"]
	if d.Parent.SpanID() != byName["step.data_collection"].SpanContext.SpanID() {
		t.Error("dispatch span should be a child of the step span")
	}
	if got := attrMap(d.Attributes)["dispatch_ms"].AsInt64(); got != 1500 {
		t.Errorf("dispatch_ms = %d, want 1500", got)
	}
	if d.Status.Code != codes.Ok {
		t.Errorf("dispatch status = %v, want Ok", d.Status.Code)
	}

	s := byName["step.data_collection"]
	if s.Status.Code != codes.Error {
		t.Errorf("step status = %v, want Error", s.Status.Code)
	}
	if len(s.Events) == 0 {
		t.Error("expected recorded error event on step span")
	}

	r := byName["plan.execute"]
	if got := attrMap(r.Attributes)["plan.id"].AsString(); got != "plan-1" {
		t.Errorf("plan.id = %q", got)
	}
}

func TestRecordErrorNil(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartDispatchSpan(context.Background(), "m", "x")
	RecordError(span, nil)
	span.End()

	if got := exporter.GetSpans()[0].Status.Code; got != codes.Unset {
		t.Errorf("status = %v, want Unset", got)
	}
}

func TestStartRequestSpanContinuesCallerTrace(t *testing.T) {
	exporter := setupTestTracer(t)
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	req := httptest.NewRequest("GET", "/api/plans", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	_, span := StartRequestSpan(req)
	span.SetName("GET /api/plans")
	span.End()

	got := exporter.GetSpans()[0]
	if got.Name != "GET /api/plans" {
		t.Errorf("name = %q", got.Name)
	}
	if got.SpanContext.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s, want caller trace", got.SpanContext.TraceID())
	}
	if got.Parent.SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("parent = %s, want caller span", got.Parent.SpanID())
	}
}
