package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/middleware"
	"github.com/xraph/cascade/workflow"
)

// Resume delivers a signal to a waiting instance and runs the workflow
// forward until the next terminal outcome or suspension. The signal
// name must match the one the instance is parked on.
//
// If the wait's deadline has already passed, the signal is rejected and
// the instance fails through compensation, exactly as SweepExpired
// would have done.
func (e *Engine) Resume(ctx context.Context, instanceID id.InstanceID, signalName string, payload []byte) (*Result, error) {
	st, err := e.store.LoadState(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if !st.Status.IsWaiting() {
		return nil, fmt.Errorf("%w: instance %s is %s", cascade.ErrNotWaiting, instanceID, st.Status)
	}
	if st.WaitingSignal == nil || st.WaitingSignal.Name != signalName {
		waiting := "<none>"
		if st.WaitingSignal != nil {
			waiting = st.WaitingSignal.Name
		}
		return nil, fmt.Errorf("%w: got %q, instance %s waits for %q",
			cascade.ErrSignalMismatch, signalName, instanceID, waiting)
	}

	expired := st.WaitingSignal.Expired(time.Now().UTC())
	ent, err := e.registry.lookup(st.WorkflowID, st.WorkflowVersion)
	if err != nil {
		return nil, err
	}
	return ent.resume(ctx, e, st, signalName, payload, expired)
}

// ExpireSignal fails a waiting instance whose deadline has passed,
// running compensation. It is a no-op error if the deadline is still in
// the future.
func (e *Engine) ExpireSignal(ctx context.Context, instanceID id.InstanceID) (*Result, error) {
	st, err := e.store.LoadState(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if !st.Status.IsWaiting() || st.WaitingSignal == nil {
		return nil, fmt.Errorf("%w: instance %s is %s", cascade.ErrNotWaiting, instanceID, st.Status)
	}
	if !st.WaitingSignal.Expired(time.Now().UTC()) {
		return nil, fmt.Errorf("cascade/engine: instance %s: signal %q has not expired",
			instanceID, st.WaitingSignal.Name)
	}

	ent, err := e.registry.lookup(st.WorkflowID, st.WorkflowVersion)
	if err != nil {
		return nil, err
	}
	return ent.resume(ctx, e, st, st.WaitingSignal.Name, nil, true)
}

// resumeRun is the typed half of resumption, reached through the
// registry's closure. The instance's persisted node id locates the
// graph position; from there the shared loop takes over.
func resumeRun[T any](ctx context.Context, e *Engine, def *workflow.Definition[T], st *workflow.InstanceState, wfctx *T, signalName string, payload []byte, expired bool) (*Result, error) {
	node, ok := def.NodeByID(st.CurrentNodeID)
	if !ok {
		return nil, cascade.NewExecutionError(cascade.CodeExecutionFailed, nil,
			"instance %s: node %q not in definition %s v%d; was the definition changed without a version bump?",
			st.ID, st.CurrentNodeID, def.WorkflowID(), def.Version())
	}

	e.logger.Info("workflow resuming",
		slog.String("workflow_id", st.WorkflowID),
		slog.String("instance_id", st.ID.String()),
		slog.String("signal", signalName),
		slog.Bool("expired", expired),
	)

	if expired {
		timeout := "unbounded"
		if st.WaitingSignal != nil && st.WaitingSignal.Deadline != nil {
			timeout = st.WaitingSignal.Deadline.Sub(st.CreatedAt).String()
		}
		cause := cascade.NewTimeoutError(cascade.CodeStepTimedOut, timeout, time.Since(st.CreatedAt).String())
		st.History = append(st.History, expiryTrace(st, signalName))
		st.WaitingSignal = nil
		return finishFailed(ctx, e, def, st, wfctx, cause)
	}

	switch n := node.(type) {
	case *workflow.SignalWaitNode[T]:
		step := n.Step()
		info := &middleware.StepInfo{
			InstanceID:    st.ID,
			WorkflowID:    st.WorkflowID,
			StepName:      step.Name(),
			NodeID:        n.ID(),
			CorrelationID: st.CorrelationID,
		}

		started := time.Now().UTC()
		out := e.invoke(ctx, info, step.StepTimeout(), func(c context.Context) workflow.Outcome {
			return step.ProcessSignal(c, wfctx, payload)
		}).Normalized()

		st.History = append(st.History, workflow.StepTrace{
			ID:            id.NewTraceID(),
			StepName:      step.Name(),
			NodeID:        n.ID(),
			Outcome:       out.Kind,
			Message:       out.Message,
			StartedAt:     started,
			CompletedAt:   time.Now().UTC(),
			CorrelationID: st.CorrelationID,
			Metadata:      out.Metadata,
		})

		if out.IsFailure() {
			st.WaitingSignal = nil
			return finishFailed(ctx, e, def, st, wfctx, failureError(step.Name(), out))
		}

		st.Status = workflow.StatusRunning
		st.WaitingSignal = nil
		if err := persist(ctx, e, st, wfctx); err != nil {
			return nil, err
		}
		return runFrom(ctx, e, def, st, wfctx, n.Next())

	case *workflow.StepNode[T]:
		// Legacy sentinel suspension: the signal carries no handler, so
		// resumption re-executes the step, which is now expected to pass.
		st.Status = workflow.StatusRunning
		st.WaitingSignal = nil
		if err := persist(ctx, e, st, wfctx); err != nil {
			return nil, err
		}
		return runFrom(ctx, e, def, st, wfctx, node)

	default:
		return nil, cascade.NewExecutionError(cascade.CodeExecutionFailed, nil,
			"instance %s: cannot resume at node %s of kind %s", st.ID, node.ID(), node.Kind())
	}
}

func expiryTrace(st *workflow.InstanceState, signalName string) workflow.StepTrace {
	now := time.Now().UTC()
	return workflow.StepTrace{
		ID:            id.NewTraceID(),
		StepName:      "signal:" + signalName,
		NodeID:        st.CurrentNodeID,
		Outcome:       workflow.OutcomeFailure,
		Message:       fmt.Sprintf("signal %s: wait deadline expired", signalName),
		StartedAt:     now,
		CompletedAt:   now,
		CorrelationID: st.CorrelationID,
	}
}
