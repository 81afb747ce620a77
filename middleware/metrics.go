package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/cascade/workflow"
)

// meterName is the instrumentation scope name for cascade metrics.
const meterName = "github.com/xraph/cascade"

// Metrics returns middleware that records per-step execution metrics
// using the global OTel MeterProvider. If no MeterProvider is
// configured, noop instruments are used and this middleware becomes a
// pass-through.
//
// Instruments:
//   - cascade.step.duration (Float64Histogram): execution time in seconds,
//     with attributes: workflow_id, step, outcome
//   - cascade.step.executions (Int64Counter): total step attempts,
//     with attributes: workflow_id, step, outcome
//   - cascade.step.retries (Int64Counter): attempts beyond the first,
//     with attributes: workflow_id, step
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"cascade.step.duration",
		metric.WithDescription("Duration of step execution in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	executions, eErr := meter.Int64Counter(
		"cascade.step.executions",
		metric.WithDescription("Total number of step attempts"),
		metric.WithUnit("{execution}"),
	)
	_ = eErr // noop fallback guaranteed by OTel API contract

	retries, rErr := meter.Int64Counter(
		"cascade.step.retries",
		metric.WithDescription("Step attempts beyond the first"),
		metric.WithUnit("{retry}"),
	)
	_ = rErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, info *StepInfo, next Handler) workflow.Outcome {
		start := time.Now()
		out := next(ctx)
		elapsed := time.Since(start).Seconds()

		attrs := metric.WithAttributes(
			attribute.String("workflow_id", info.WorkflowID),
			attribute.String("step", info.StepName),
			attribute.String("outcome", string(out.Kind)),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)
		if info.Attempt > 0 {
			retries.Add(ctx, 1, metric.WithAttributes(
				attribute.String("workflow_id", info.WorkflowID),
				attribute.String("step", info.StepName),
			))
		}

		return out
	}
}
