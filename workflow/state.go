package workflow

import (
	"time"

	"github.com/xraph/cascade/id"
)

// Status is the lifecycle state of a workflow instance.
type Status string

const (
	// StatusRunning means the engine is actively advancing the graph.
	StatusRunning Status = "running"
	// StatusCompleted means every node finished successfully. Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed means a step failed (after retries) or a wait
	// deadline expired; compensation has already run. Terminal.
	StatusFailed Status = "failed"
	// StatusCancelled means the caller's context was cancelled at a
	// node boundary. Terminal.
	StatusCancelled Status = "cancelled"
	// StatusWaitingForSignal means the instance is parked on a signal.
	StatusWaitingForSignal Status = "waiting_for_signal"
	// StatusWaitingForApproval means the instance is parked on a
	// human approval decision.
	StatusWaitingForApproval Status = "waiting_for_approval"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsWaiting reports whether the instance is parked on an external signal.
func (s Status) IsWaiting() bool {
	return s == StatusWaitingForSignal || s == StatusWaitingForApproval
}

// CanTransition reports whether the status machine permits moving to
// the target status. Terminal statuses permit nothing.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusRunning:
		switch to {
		case StatusCompleted, StatusFailed, StatusCancelled,
			StatusWaitingForSignal, StatusWaitingForApproval:
			return true
		}
	case StatusWaitingForSignal, StatusWaitingForApproval:
		switch to {
		case StatusRunning, StatusFailed, StatusCancelled:
			return true
		}
	}
	return false
}

// SignalWait describes the signal an instance is parked on. Deadline is
// nil for waits that never expire.
type SignalWait struct {
	Name     string     `json:"name"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Expired reports whether the wait's deadline has passed at the given
// instant. Waits without a deadline never expire.
func (w *SignalWait) Expired(now time.Time) bool {
	return w != nil && w.Deadline != nil && now.After(*w.Deadline)
}

// StepTrace is one entry in an instance's append-only execution history.
// Entries are recorded in completion order; the compensation walk reads
// them in reverse.
type StepTrace struct {
	ID            id.TraceID        `json:"id"`
	StepName      string            `json:"stepName"`
	NodeID        string            `json:"nodeId"`
	Outcome       OutcomeKind       `json:"outcome"`
	Message       string            `json:"message,omitempty"`
	RetryAttempts int               `json:"retryAttempts"`
	StartedAt     time.Time         `json:"startedAt"`
	CompletedAt   time.Time         `json:"completedAt"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// Compensated is set once the step's rollback has run during a
	// saga walk, so a second walk never compensates it again.
	Compensated bool `json:"compensated,omitempty"`
}

// Duration returns the wall time the step attempt(s) took.
func (t StepTrace) Duration() time.Duration {
	return t.CompletedAt.Sub(t.StartedAt)
}

// InstanceState is the full persisted snapshot of a workflow instance.
// Everything needed to resume after a process restart lives here: the
// encoded context, the graph position, and the signal the instance is
// waiting on.
type InstanceState struct {
	ID              id.InstanceID `json:"id"`
	WorkflowID      string        `json:"workflowId"`
	WorkflowVersion int           `json:"workflowVersion"`
	Status          Status        `json:"status"`

	// Context is the codec-encoded workflow context. ContextType names
	// the registered Go type it decodes into; CodecName names the codec
	// that produced the bytes.
	Context     []byte `json:"context"`
	ContextType string `json:"contextType"`
	CodecName   string `json:"codecName,omitempty"`

	// CurrentNodeID is the graph position to resume from. Empty while
	// running from the root and on terminal instances.
	CurrentNodeID string      `json:"currentNodeId,omitempty"`
	WaitingSignal *SignalWait `json:"waitingSignal,omitempty"`

	History       []StepTrace `json:"history"`
	CorrelationID string      `json:"correlationId,omitempty"`
	ErrorMessage  string      `json:"errorMessage,omitempty"`

	// Revision guards concurrent writers: a save with a stale revision
	// is rejected with ErrRevisionConflict.
	Revision int64 `json:"revision"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy. Stores hand out clones so callers can not
// mutate persisted state behind the store's back.
func (s *InstanceState) Clone() *InstanceState {
	if s == nil {
		return nil
	}
	out := *s
	if s.Context != nil {
		out.Context = make([]byte, len(s.Context))
		copy(out.Context, s.Context)
	}
	if s.WaitingSignal != nil {
		w := *s.WaitingSignal
		if s.WaitingSignal.Deadline != nil {
			d := *s.WaitingSignal.Deadline
			w.Deadline = &d
		}
		out.WaitingSignal = &w
	}
	if s.History != nil {
		out.History = make([]StepTrace, len(s.History))
		copy(out.History, s.History)
		for i := range out.History {
			if md := s.History[i].Metadata; md != nil {
				cp := make(map[string]string, len(md))
				for k, v := range md {
					cp[k] = v
				}
				out.History[i].Metadata = cp
			}
		}
	}
	if s.CompletedAt != nil {
		c := *s.CompletedAt
		out.CompletedAt = &c
	}
	return &out
}
