package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cascade/workflow"
)

// Logging returns middleware that logs step start and completion.
// Suspensions log at Info: waiting for a signal is normal operation,
// not an error.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, info *StepInfo, next Handler) workflow.Outcome {
		logger.Info("step started",
			slog.String("workflow_id", info.WorkflowID),
			slog.String("instance_id", info.InstanceID.String()),
			slog.String("step", info.StepName),
			slog.Int("attempt", info.Attempt),
		)

		start := time.Now()
		out := next(ctx)
		elapsed := time.Since(start)

		switch {
		case out.IsSuspend():
			logger.Info("step suspended",
				slog.String("workflow_id", info.WorkflowID),
				slog.String("instance_id", info.InstanceID.String()),
				slog.String("step", info.StepName),
				slog.String("signal", out.SignalName),
				slog.Duration("elapsed", elapsed),
			)
		case out.IsFailure():
			logger.Error("step failed",
				slog.String("workflow_id", info.WorkflowID),
				slog.String("instance_id", info.InstanceID.String()),
				slog.String("step", info.StepName),
				slog.Int("attempt", info.Attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", out.Message),
			)
		default:
			logger.Info("step completed",
				slog.String("workflow_id", info.WorkflowID),
				slog.String("instance_id", info.InstanceID.String()),
				slog.String("step", info.StepName),
				slog.Duration("elapsed", elapsed),
			)
		}

		return out
	}
}
