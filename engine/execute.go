package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/backoff"
	"github.com/xraph/cascade/codec"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/middleware"
	"github.com/xraph/cascade/workflow"
)

// RunOption configures a single Execute call, overriding the engine's
// defaults for that run only.
type RunOption func(*runOptions)

type runOptions struct {
	correlationID string
	maxRetries    *int
	strategy      backoff.Strategy
	metrics       *bool
}

// WithCorrelationID tags the instance and all its traces with a
// caller-supplied correlation id.
func WithCorrelationID(cid string) RunOption {
	return func(o *runOptions) { o.correlationID = cid }
}

// WithMaxRetries caps retry attempts for every step of this run.
func WithMaxRetries(n int) RunOption {
	return func(o *runOptions) { o.maxRetries = &n }
}

// WithRetryBackoff overrides the retry delay strategy for this run.
func WithRetryBackoff(s backoff.Strategy) RunOption {
	return func(o *runOptions) { o.strategy = s }
}

// WithMetrics enables or disables metrics derivation for this run.
func WithMetrics(enabled bool) RunOption {
	return func(o *runOptions) { o.metrics = &enabled }
}

// withOverrides returns an engine whose defaults reflect the per-run
// options. The engine struct is plain data, so a shallow copy is enough.
func (e *Engine) withOverrides(ro *runOptions) *Engine {
	if ro.maxRetries == nil && ro.strategy == nil && ro.metrics == nil {
		return e
	}
	eng := *e
	if ro.maxRetries != nil {
		eng.cfg.MaxRetries = *ro.maxRetries
	}
	if ro.strategy != nil {
		eng.strategy = ro.strategy
	}
	if ro.metrics != nil {
		eng.cfg.MetricsEnabled = *ro.metrics
	}
	return &eng
}

// codecFor returns the codec an instance's context was encoded with.
func codecFor(st *workflow.InstanceState) codec.Codec {
	return codec.Get(st.CodecName)
}

// Execute starts a new instance of def with the given context and runs
// it until it completes, fails, suspends on a signal, or is cancelled.
// The instance is persisted before the first step runs, so a crash
// during the run is always recoverable.
//
// Execute is a package function rather than a method so the typed
// definition flows through without reflection.
func Execute[T any](ctx context.Context, e *Engine, def *workflow.Definition[T], wfctx *T, opts ...RunOption) (*Result, error) {
	if e.store == nil {
		return nil, cascade.ErrNoStore
	}

	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}
	e = e.withOverrides(&ro)

	now := time.Now().UTC()
	st := &workflow.InstanceState{
		ID:              id.NewInstanceID(),
		WorkflowID:      def.WorkflowID(),
		WorkflowVersion: def.Version(),
		Status:          workflow.StatusRunning,
		ContextType:     def.ContextType(),
		CodecName:       e.codec.Name(),
		CorrelationID:   ro.correlationID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := persist(ctx, e, st, wfctx); err != nil {
		return nil, err
	}

	e.logger.Info("workflow started",
		slog.String("workflow_id", def.WorkflowID()),
		slog.String("instance_id", st.ID.String()),
		slog.Int("version", def.Version()),
	)

	return runFrom(ctx, e, def, st, wfctx, def.Root())
}

// persist re-encodes the context into the snapshot and saves it.
func persist[T any](ctx context.Context, e *Engine, st *workflow.InstanceState, wfctx *T) error {
	data, err := codecFor(st).Marshal(wfctx)
	if err != nil {
		return fmt.Errorf("cascade/engine: encode context of %s: %w", st.ID, err)
	}
	st.Context = data
	return e.store.SaveState(ctx, st)
}

// runFrom advances the graph from node until a terminal outcome. It is
// the single execution loop shared by fresh runs and resumptions.
func runFrom[T any](ctx context.Context, e *Engine, def *workflow.Definition[T], st *workflow.InstanceState, wfctx *T, node workflow.Node[T]) (*Result, error) {
	var deadline time.Time
	if def.WorkflowTimeout() > 0 {
		deadline = st.CreatedAt.Add(def.WorkflowTimeout())
	}

	for node != nil {
		// Cancellation and the workflow deadline are checked at node
		// boundaries only; a step that is already running finishes its
		// attempt first.
		if ctx.Err() != nil {
			return finishCancelled(ctx, e, st, wfctx)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			cause := cascade.NewTimeoutError(cascade.CodeWorkflowTimedOut,
				def.WorkflowTimeout().String(), time.Since(st.CreatedAt).String())
			return finishFailed(ctx, e, def, st, wfctx, cause)
		}

		st.CurrentNodeID = node.ID()

		switch n := node.(type) {
		case *workflow.ConditionalNode[T]:
			node = n.Choose(wfctx)

		case *workflow.ParallelNode[T]:
			traces, failure := runParallel(ctx, e, def, st, wfctx, n)
			st.History = append(st.History, traces...)
			if failure != nil {
				return finishFailed(ctx, e, def, st, wfctx, failure)
			}
			if err := persist(ctx, e, st, wfctx); err != nil {
				return nil, err
			}
			node = n.Join()

		case *workflow.SignalWaitNode[T]:
			step := n.Step()
			return finishSuspended(ctx, e, st, wfctx, step.SuspendStatus(), step.SignalName(), step.SignalTimeout())

		case *workflow.StepNode[T]:
			outcome, trace := runStepAttempts(ctx, e, st, wfctx, n.Step(), n.ID())

			switch {
			case outcome.IsSuspend():
				// A legacy sentinel suspension parks on the step node
				// itself; resumption re-executes the step.
				return finishSuspended(ctx, e, st, wfctx, workflow.StatusWaitingForSignal, outcome.SignalName, outcome.SignalTimeout)

			case outcome.IsFailure():
				st.History = append(st.History, trace)
				if ctx.Err() != nil {
					// The failure was the caller's cancellation, not the
					// step's own doing.
					return finishCancelled(ctx, e, st, wfctx)
				}
				return finishFailed(ctx, e, def, st, wfctx, failureError(n.Step().Name(), outcome))

			default:
				st.History = append(st.History, trace)
				if err := persist(ctx, e, st, wfctx); err != nil {
					return nil, err
				}
				node = n.Next()
			}

		default:
			return nil, fmt.Errorf("cascade/engine: instance %s: unsupported node kind %s", st.ID, node.Kind())
		}
	}

	return finishCompleted(ctx, e, st, wfctx)
}

// runStepAttempts executes one step through the middleware chain,
// honoring its timeout and the retry policy, and returns the final
// outcome plus the trace entry describing all attempts.
func runStepAttempts[T any](ctx context.Context, e *Engine, st *workflow.InstanceState, wfctx *T, step workflow.Step[T], nodeID string) (workflow.Outcome, workflow.StepTrace) {
	info := &middleware.StepInfo{
		InstanceID:    st.ID,
		WorkflowID:    st.WorkflowID,
		StepName:      step.Name(),
		NodeID:        nodeID,
		CorrelationID: st.CorrelationID,
	}

	started := time.Now().UTC()
	attempt := 0
	var outcome workflow.Outcome

	for {
		info.Attempt = attempt
		outcome = e.invoke(ctx, info, step.StepTimeout(), func(c context.Context) workflow.Outcome {
			return step.Execute(c, wfctx)
		}).Normalized()

		if !outcome.IsFailure() || outcome.Fatal || !outcome.Retryable || !step.CanRetry() {
			break
		}
		if attempt >= e.cfg.MaxRetries {
			outcome.Message = fmt.Sprintf("%s (retries exhausted after %d attempts)", outcome.Message, attempt+1)
			break
		}

		attempt++
		delay := e.strategy.Delay(attempt)
		e.logger.Warn("step retrying",
			slog.String("instance_id", st.ID.String()),
			slog.String("step", step.Name()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", outcome.Message),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			outcome = workflow.FailureErr(ctx.Err(), false)
			goto done
		}
	}
done:

	trace := workflow.StepTrace{
		ID:            id.NewTraceID(),
		StepName:      step.Name(),
		NodeID:        nodeID,
		Outcome:       outcome.Kind,
		Message:       outcome.Message,
		RetryAttempts: attempt,
		StartedAt:     started,
		CompletedAt:   time.Now().UTC(),
		CorrelationID: st.CorrelationID,
		Metadata:      outcome.Metadata,
	}
	return outcome, trace
}

// invoke runs fn through panic recovery, user middleware, and the
// per-attempt timeout race.
func (e *Engine) invoke(ctx context.Context, info *middleware.StepInfo, timeout time.Duration, fn middleware.Handler) workflow.Outcome {
	handler := fn
	if timeout > 0 {
		handler = func(ctx context.Context) workflow.Outcome {
			tctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			ch := make(chan workflow.Outcome, 1)
			start := time.Now()
			go func() {
				defer func() {
					if r := recover(); r != nil {
						ch <- workflow.Fault(fmt.Errorf("panic in step %s: %v", info.StepName, r))
					}
				}()
				ch <- fn(tctx)
			}()

			select {
			case out := <-ch:
				return out
			case <-tctx.Done():
				if ctx.Err() != nil {
					// Parent cancelled, not a step timeout.
					return workflow.FailureErr(ctx.Err(), false)
				}
				// A timeout is never retried: the attempt already consumed
				// its full budget, and re-running it would double the
				// worst-case latency of the whole workflow.
				return workflow.Outcome{
					Kind:      workflow.OutcomeFailure,
					Message:   fmt.Sprintf("step %s timed out after %s", info.StepName, timeout),
					Retryable: false,
					Err:       cascade.NewTimeoutError(cascade.CodeStepTimedOut, timeout.String(), time.Since(start).String()),
				}
			}
		}
	}

	chain := middleware.Chain(append([]middleware.Middleware{middleware.Recover(e.logger)}, e.mw...)...)
	return chain(ctx, info, handler)
}

// runParallel fans the node's branches out on an errgroup and joins.
// The first failure cancels the sibling contexts, but every in-flight
// branch still runs to completion of its current attempt (Wait blocks
// for all of them). Branches share the workflow context and must write
// disjoint fields.
func runParallel[T any](ctx context.Context, e *Engine, def *workflow.Definition[T], st *workflow.InstanceState, wfctx *T, n *workflow.ParallelNode[T]) ([]workflow.StepTrace, *cascade.Error) {
	branches := n.Branches()
	traces := make([]workflow.StepTrace, len(branches))
	outcomes := make([]workflow.Outcome, len(branches))

	g, gctx := errgroup.WithContext(ctx)
	for i, br := range branches {
		sn, ok := br.(*workflow.StepNode[T])
		if !ok {
			return nil, cascade.NewConfigError(cascade.CodeInvalidStep,
				"workflow %s: parallel branch %s is not a step node", def.WorkflowID(), br.ID())
		}
		g.Go(func() error {
			out, trace := runStepAttempts(gctx, e, st, wfctx, sn.Step(), sn.ID())
			if out.IsSuspend() {
				out = workflow.Failuref(false, "step %s: signal waits are not allowed inside parallel branches", sn.Step().Name())
				trace.Outcome = out.Kind
				trace.Message = out.Message
			}
			outcomes[i] = out
			traces[i] = trace
			if out.IsFailure() {
				return errors.New(out.Message)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, out := range outcomes {
		if out.IsFailure() {
			return traces, failureError(branches[i].(*workflow.StepNode[T]).Step().Name(), out)
		}
	}
	return traces, nil
}

// failureError classifies a step failure outcome for the result.
func failureError(stepName string, out workflow.Outcome) *cascade.Error {
	if out.Err != nil {
		var ce *cascade.Error
		if errors.As(out.Err, &ce) {
			return ce
		}
	}
	code := cascade.CodeStepFailed
	if out.Fatal {
		code = cascade.CodeExecutionFailed
	}
	return cascade.NewExecutionError(code, out.Err, "step %s: %s", stepName, out.Message)
}

// compensate walks the history backwards and runs the rollback of every
// successful, not-yet-compensated step. Rollback failures do not stop
// the walk; they are collected and reported together.
func compensate[T any](ctx context.Context, e *Engine, def *workflow.Definition[T], st *workflow.InstanceState, wfctx *T) error {
	var compErrs []error
	for i := len(st.History) - 1; i >= 0; i-- {
		tr := &st.History[i]
		if tr.Outcome != workflow.OutcomeSuccess || tr.Compensated {
			continue
		}
		step, ok := def.StepByName(tr.StepName)
		if !ok {
			continue
		}

		info := &middleware.StepInfo{
			InstanceID:    st.ID,
			WorkflowID:    st.WorkflowID,
			StepName:      step.Name() + ":compensate",
			NodeID:        tr.NodeID,
			CorrelationID: st.CorrelationID,
		}
		out := e.invoke(ctx, info, 0, func(c context.Context) workflow.Outcome {
			return step.Compensate(c, wfctx)
		})
		tr.Compensated = true

		if out.IsFailure() {
			e.logger.Error("compensation failed",
				slog.String("instance_id", st.ID.String()),
				slog.String("step", step.Name()),
				slog.String("error", out.Message),
			)
			compErrs = append(compErrs, fmt.Errorf("compensate %s: %s", step.Name(), out.Message))
		} else {
			e.logger.Info("step compensated",
				slog.String("instance_id", st.ID.String()),
				slog.String("step", step.Name()),
			)
		}
	}

	if len(compErrs) > 0 {
		return cascade.NewExecutionError(cascade.CodeCompensationFailed, errors.Join(compErrs...),
			"%d compensation step(s) failed; manual recovery required", len(compErrs))
	}
	return nil
}

// ── run finishers ──

func finishCompleted[T any](ctx context.Context, e *Engine, st *workflow.InstanceState, wfctx *T) (*Result, error) {
	now := time.Now().UTC()
	st.Status = workflow.StatusCompleted
	st.CurrentNodeID = ""
	st.CompletedAt = &now
	if err := persist(ctx, e, st, wfctx); err != nil {
		return nil, err
	}

	e.logger.Info("workflow completed",
		slog.String("workflow_id", st.WorkflowID),
		slog.String("instance_id", st.ID.String()),
		slog.Duration("elapsed", now.Sub(st.CreatedAt)),
	)
	return e.result(st, nil), nil
}

func finishSuspended[T any](ctx context.Context, e *Engine, st *workflow.InstanceState, wfctx *T, status workflow.Status, signalName string, timeout time.Duration) (*Result, error) {
	wait := &workflow.SignalWait{Name: signalName}
	if timeout > 0 {
		d := time.Now().UTC().Add(timeout)
		wait.Deadline = &d
	}
	st.Status = status
	st.WaitingSignal = wait
	if err := persist(ctx, e, st, wfctx); err != nil {
		return nil, err
	}

	e.logger.Info("workflow suspended",
		slog.String("workflow_id", st.WorkflowID),
		slog.String("instance_id", st.ID.String()),
		slog.String("signal", signalName),
	)
	return e.result(st, nil), nil
}

func finishFailed[T any](ctx context.Context, e *Engine, def *workflow.Definition[T], st *workflow.InstanceState, wfctx *T, cause *cascade.Error) (*Result, error) {
	resultErr := error(cause)
	if compErr := compensate(ctx, e, def, st, wfctx); compErr != nil {
		resultErr = errors.Join(cause, compErr)
	}

	st.Status = workflow.StatusFailed
	st.ErrorMessage = resultErr.Error()
	if err := persist(ctx, e, st, wfctx); err != nil {
		return nil, err
	}

	e.logger.Error("workflow failed",
		slog.String("workflow_id", st.WorkflowID),
		slog.String("instance_id", st.ID.String()),
		slog.String("error", resultErr.Error()),
	)
	return e.result(st, resultErr), nil
}

// finishCancelled marks the instance cancelled without compensation:
// cancellation stops work, it does not unwind it. The instance stays in
// the store for inspection.
func finishCancelled[T any](ctx context.Context, e *Engine, st *workflow.InstanceState, wfctx *T) (*Result, error) {
	cause := cascade.NewExecutionError(cascade.CodeCancelled, ctx.Err(), "cancelled at node %s", st.CurrentNodeID)

	st.Status = workflow.StatusCancelled
	st.ErrorMessage = cause.Error()
	// The caller's context is gone; persist on a detached one.
	if err := persist(context.WithoutCancel(ctx), e, st, wfctx); err != nil {
		return nil, err
	}

	e.logger.Warn("workflow cancelled",
		slog.String("workflow_id", st.WorkflowID),
		slog.String("instance_id", st.ID.String()),
		slog.String("node_id", st.CurrentNodeID),
	)
	return e.result(st, cause), nil
}

func (e *Engine) result(st *workflow.InstanceState, err error) *Result {
	r := &Result{
		InstanceID:    st.ID,
		Status:        st.Status,
		WaitingSignal: st.WaitingSignal,
		History:       st.History,
		Err:           err,
	}
	if e.cfg.MetricsEnabled {
		end := time.Now().UTC()
		if st.CompletedAt != nil {
			end = *st.CompletedAt
		}
		r.Metrics = workflow.ComputeMetrics(st.History, end.Sub(st.CreatedAt))
		if e.metricsHook != nil {
			e.metricsHook(st, r.Metrics)
		}
	}
	return r
}
