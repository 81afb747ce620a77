package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/cascade/workflow"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to fatal (never retried) failure outcomes
// and logged with a stack trace; the engine runs compensation for them
// exactly as it does for returned failures.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, info *StepInfo, next Handler) (out workflow.Outcome) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("step panicked",
					slog.String("workflow_id", info.WorkflowID),
					slog.String("instance_id", info.InstanceID.String()),
					slog.String("step", info.StepName),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				out = workflow.Fault(fmt.Errorf("panic in step %s: %v", info.StepName, r))
			}
		}()
		return next(ctx)
	}
}
