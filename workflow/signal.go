package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SignalStep is a step that suspends the workflow until a named signal
// arrives. Execute always yields a suspend outcome; ProcessSignal runs
// when the signal is delivered and decides whether the workflow
// advances.
type SignalStep[T any] interface {
	Step[T]

	// SignalName returns the name the delivered signal must match.
	SignalName() string

	// SignalTimeout returns how long the wait may last before the
	// engine treats it as expired. Zero means wait forever.
	SignalTimeout() time.Duration

	// SuspendStatus returns the instance status recorded while parked,
	// distinguishing plain signal waits from approval gates.
	SuspendStatus() Status

	// ProcessSignal applies the signal payload to the context. A
	// success outcome resumes the workflow at the next node; a failure
	// triggers compensation.
	ProcessSignal(ctx context.Context, wfctx *T, payload []byte) Outcome
}

// ──────────────────────────────────────────────────
// SignalWaitStep
// ──────────────────────────────────────────────────

// SignalWaitStep is the basic signal gate: park until the named signal
// arrives, then hand the raw payload to the apply function.
type SignalWaitStep[T any] struct {
	BaseStep[T]

	name       string
	signalName string
	timeout    time.Duration
	apply      func(ctx context.Context, wfctx *T, payload []byte) Outcome
}

// SignalOption configures a signal wait.
type SignalOption[T any] func(*SignalWaitStep[T])

// WithSignalTimeout bounds the wait; an expired wait fails the workflow
// and triggers compensation.
func WithSignalTimeout[T any](d time.Duration) SignalOption[T] {
	return func(s *SignalWaitStep[T]) { s.timeout = d }
}

// NewSignalWait creates a signal gate named after its signal. apply may
// be nil, in which case the payload is discarded and the workflow
// simply resumes.
func NewSignalWait[T any](signalName string, apply func(ctx context.Context, wfctx *T, payload []byte) Outcome, opts ...SignalOption[T]) *SignalWaitStep[T] {
	s := &SignalWaitStep[T]{
		name:       "wait:" + signalName,
		signalName: signalName,
		apply:      apply,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SignalWaitStep[T]) Name() string { return s.name }

func (s *SignalWaitStep[T]) SignalName() string { return s.signalName }

func (s *SignalWaitStep[T]) SignalTimeout() time.Duration { return s.timeout }

func (s *SignalWaitStep[T]) SuspendStatus() Status { return StatusWaitingForSignal }

func (s *SignalWaitStep[T]) Execute(context.Context, *T) Outcome {
	return Suspend(s.signalName, s.timeout)
}

func (s *SignalWaitStep[T]) ProcessSignal(ctx context.Context, wfctx *T, payload []byte) Outcome {
	if s.apply == nil {
		return Success()
	}
	return s.apply(ctx, wfctx, payload)
}

// ──────────────────────────────────────────────────
// ApprovalStep
// ──────────────────────────────────────────────────

// ApprovalDecision is the JSON payload an approval gate expects.
type ApprovalDecision struct {
	Approved bool   `json:"approved"`
	Actor    string `json:"actor,omitempty"`
	Comments string `json:"comments,omitempty"`
}

// ApprovalStep is a human-in-the-loop gate. The instance parks in
// WaitingForApproval; a rejected decision fails the workflow (and so
// compensates everything before the gate), an approved one resumes it.
type ApprovalStep[T any] struct {
	BaseStep[T]

	name       string
	signalName string
	timeout    time.Duration

	// onDecision, when set, sees every decision (approved or not)
	// before the gate acts on it, and may stage the decision into the
	// context.
	onDecision func(ctx context.Context, wfctx *T, d ApprovalDecision) error
}

// ApprovalOption configures an approval gate.
type ApprovalOption[T any] func(*ApprovalStep[T])

// WithApprovalTimeout bounds how long the gate waits for a decision.
func WithApprovalTimeout[T any](d time.Duration) ApprovalOption[T] {
	return func(s *ApprovalStep[T]) { s.timeout = d }
}

// WithDecisionHook records the decision into the context before the
// gate acts on it.
func WithDecisionHook[T any](fn func(ctx context.Context, wfctx *T, d ApprovalDecision) error) ApprovalOption[T] {
	return func(s *ApprovalStep[T]) { s.onDecision = fn }
}

// NewApproval creates an approval gate listening on signalName.
func NewApproval[T any](signalName string, opts ...ApprovalOption[T]) *ApprovalStep[T] {
	s := &ApprovalStep[T]{
		name:       "approval:" + signalName,
		signalName: signalName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ApprovalStep[T]) Name() string { return s.name }

func (s *ApprovalStep[T]) SignalName() string { return s.signalName }

func (s *ApprovalStep[T]) SignalTimeout() time.Duration { return s.timeout }

func (s *ApprovalStep[T]) SuspendStatus() Status { return StatusWaitingForApproval }

func (s *ApprovalStep[T]) Execute(context.Context, *T) Outcome {
	return Suspend(s.signalName, s.timeout)
}

func (s *ApprovalStep[T]) ProcessSignal(ctx context.Context, wfctx *T, payload []byte) Outcome {
	var d ApprovalDecision
	if err := json.Unmarshal(payload, &d); err != nil {
		return FailureErr(fmt.Errorf("approval %s: invalid decision payload: %w", s.signalName, err), false)
	}
	if s.onDecision != nil {
		if err := s.onDecision(ctx, wfctx, d); err != nil {
			return FailureErr(err, false)
		}
	}
	if !d.Approved {
		actor := d.Actor
		if actor == "" {
			actor = "unknown"
		}
		return Failuref(false, "approval %s: rejected by %s", s.signalName, actor)
	}
	return SuccessWithMetadata(map[string]string{"actor": d.Actor})
}

// ──────────────────────────────────────────────────
// ModificationStep / CommitStep
// ──────────────────────────────────────────────────

// ModificationStep parks the workflow for an externally supplied change
// request. The apply function stages the change into the context only;
// nothing external should be touched until a later commit step runs, so
// a rejection downstream leaves the outside world untouched.
type ModificationStep[T any] struct {
	SignalWaitStep[T]
}

// NewModification creates a modification gate listening on signalName.
// apply stages the requested change into the context.
func NewModification[T any](signalName string, apply func(ctx context.Context, wfctx *T, payload []byte) Outcome, opts ...SignalOption[T]) *ModificationStep[T] {
	inner := NewSignalWait(signalName, apply, opts...)
	inner.name = "modify:" + signalName
	return &ModificationStep[T]{SignalWaitStep: *inner}
}

// NewCommit creates the step that applies previously staged changes to
// the outside world, with a rollback used during compensation. It is a
// plain step; pairing it with a ModificationStep gives the
// stage-then-commit shape.
func NewCommit[T any](name string, commit func(ctx context.Context, wfctx *T) Outcome, rollback func(ctx context.Context, wfctx *T) Outcome) *FuncStep[T] {
	return NewStep(name, commit, WithCompensation[T](rollback))
}
