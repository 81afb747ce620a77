package middleware

import (
	"context"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/workflow"
)

// StepInfo describes the step attempt being executed. The engine fills
// it in before invoking the chain; middleware must treat it as read-only.
type StepInfo struct {
	InstanceID    id.InstanceID
	WorkflowID    string
	StepName      string
	NodeID        string
	Attempt       int
	CorrelationID string
}

// Handler is the terminal function that executes step logic.
type Handler func(ctx context.Context) workflow.Outcome

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the step attempt being executed, and the next handler
// to call. Middleware MUST call next to continue the chain (unless
// short-circuiting).
type Middleware func(ctx context.Context, info *StepInfo, next Handler) workflow.Outcome

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover) executes as:
//
//	logging → recover → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, info *StepInfo, next Handler) workflow.Outcome {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) workflow.Outcome {
				return mw(ctx, info, prev)
			}
		}
		return h(ctx)
	}
}
