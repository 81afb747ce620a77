package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/cascade/workflow"
)

// tracerName is the instrumentation scope name for cascade tracing.
const tracerName = "github.com/xraph/cascade"

// Tracing returns middleware that wraps step execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: cascade.instance.id, cascade.workflow.id,
// cascade.step, cascade.node.id, cascade.attempt. A suspension is a
// normal outcome, so only failures mark the span status as error.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, info *StepInfo, next Handler) workflow.Outcome {
		ctx, span := tracer.Start(ctx, "cascade.step.execute",
			trace.WithAttributes(
				attribute.String("cascade.instance.id", info.InstanceID.String()),
				attribute.String("cascade.workflow.id", info.WorkflowID),
				attribute.String("cascade.step", info.StepName),
				attribute.String("cascade.node.id", info.NodeID),
				attribute.Int("cascade.attempt", info.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		out := next(ctx)
		switch {
		case out.IsFailure():
			if out.Err != nil {
				span.RecordError(out.Err)
			}
			span.SetStatus(codes.Error, out.Message)
		case out.IsSuspend():
			span.SetAttributes(attribute.String("cascade.signal", out.SignalName))
			span.SetStatus(codes.Ok, "")
		default:
			span.SetStatus(codes.Ok, "")
		}

		return out
	}
}
