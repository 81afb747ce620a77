package middleware_test

import (
	"context"
	"errors"
	"testing"

	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	mw "github.com/xraph/cascade/middleware"
	"github.com/xraph/cascade/workflow"
)

func setupTestTracer() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return recorder, provider
}

func TestTracing_RecordsSpanOnSuccess(t *testing.T) {
	recorder, provider := setupTestTracer()
	m := mw.TracingWithTracer(provider.Tracer("test"))

	out := m(context.Background(), testInfo(), func(context.Context) workflow.Outcome {
		return workflow.Success()
	})
	if !out.IsSuccess() {
		t.Fatalf("outcome = %+v", out)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "cascade.step.execute" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.Status().Code != otelcodes.Ok {
		t.Errorf("span status = %v, want Ok", span.Status())
	}
}

func TestTracing_MarksFailureSpans(t *testing.T) {
	recorder, provider := setupTestTracer()
	m := mw.TracingWithTracer(provider.Tracer("test"))

	cause := errors.New("card declined")
	m(context.Background(), testInfo(), func(context.Context) workflow.Outcome {
		return workflow.FailureErr(cause, false)
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Status().Code != otelcodes.Error {
		t.Errorf("span status = %v, want Error", span.Status())
	}
	if len(span.Events()) == 0 {
		t.Error("failure span has no recorded error event")
	}
}

func TestTracing_SuspensionIsNotAnError(t *testing.T) {
	recorder, provider := setupTestTracer()
	m := mw.TracingWithTracer(provider.Tracer("test"))

	m(context.Background(), testInfo(), func(context.Context) workflow.Outcome {
		return workflow.Suspend("approval", 0)
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Status().Code == otelcodes.Error {
		t.Error("suspension span marked as error")
	}
}
