package engine

import (
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/workflow"
)

// Result is the structured outcome of an Execute or Resume call. A
// business failure (failed step, rejected approval, expired wait) is
// reported here, not as a Go error; the error return of Execute/Resume
// is reserved for infrastructure problems such as an unreachable store.
type Result struct {
	InstanceID id.InstanceID
	Status     workflow.Status

	// WaitingSignal is set when Status is a waiting status.
	WaitingSignal *workflow.SignalWait

	// History is the instance's trace history at the time the call
	// returned.
	History []workflow.StepTrace

	// Metrics is derived from History when metrics are enabled.
	Metrics *workflow.Metrics

	// Err classifies a failed or cancelled run. Nil otherwise.
	Err error
}

// Running reports whether the instance is still executing. A Result
// returned by Execute or Resume is never running; the predicate exists
// for results rehydrated from a listed snapshot.
func (r *Result) Running() bool { return r.Status == workflow.StatusRunning }

// Completed reports whether the run finished successfully.
func (r *Result) Completed() bool { return r.Status == workflow.StatusCompleted }

// Failed reports whether the run failed (after compensation).
func (r *Result) Failed() bool { return r.Status == workflow.StatusFailed }

// Cancelled reports whether the run was cancelled at a node boundary.
func (r *Result) Cancelled() bool { return r.Status == workflow.StatusCancelled }

// Suspended reports whether the run is parked waiting for a signal.
func (r *Result) Suspended() bool { return r.Status.IsWaiting() }
