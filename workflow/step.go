package workflow

import (
	"context"
	"time"
)

// Step is the smallest unit of workflow logic. T is the caller-owned
// context type shared by every step of a definition; steps mutate it in
// place; the engine never clones it between steps, so mutation is the
// coordination mechanism.
//
// Execute must be idempotent-safe when CanRetry reports true: the engine
// may call it more than once with the same context state. Compensate must
// be safe to call even if Execute never ran to completion, and must
// return success for "nothing to undo".
//
// Steps should be stateless; constructed once per definition, invoked
// once per attempt.
type Step[T any] interface {
	// Name returns the stable identifier used in traces and compensation.
	Name() string

	// CanRetry reports whether a retryable failure of this step may be
	// re-attempted by the engine.
	CanRetry() bool

	// StepTimeout returns the per-attempt deadline. Zero means no limit.
	StepTimeout() time.Duration

	// Execute performs the step's work against the shared context.
	Execute(ctx context.Context, wfctx *T) Outcome

	// Compensate undoes the step's completed work (saga rollback).
	Compensate(ctx context.Context, wfctx *T) Outcome
}

// BaseStep provides defaults for optional Step methods: not retryable,
// no timeout, no-op compensation. Embed it and override as needed.
type BaseStep[T any] struct{}

func (BaseStep[T]) CanRetry() bool             { return false }
func (BaseStep[T]) StepTimeout() time.Duration { return 0 }

// Compensate is a no-op: success, nothing to undo.
func (BaseStep[T]) Compensate(context.Context, *T) Outcome { return Success() }

// ──────────────────────────────────────────────────
// FuncStep
// ──────────────────────────────────────────────────

// FuncStep adapts plain functions into a Step. Dependencies are captured
// by the closures at definition-construction time.
type FuncStep[T any] struct {
	name       string
	canRetry   bool
	timeout    time.Duration
	execute    func(ctx context.Context, wfctx *T) Outcome
	compensate func(ctx context.Context, wfctx *T) Outcome
}

// StepOption configures a FuncStep.
type StepOption[T any] func(*FuncStep[T])

// WithRetry marks the step retryable on retryable failures.
func WithRetry[T any]() StepOption[T] {
	return func(s *FuncStep[T]) { s.canRetry = true }
}

// WithStepTimeout sets a per-attempt deadline for the step.
func WithStepTimeout[T any](d time.Duration) StepOption[T] {
	return func(s *FuncStep[T]) { s.timeout = d }
}

// WithCompensation sets the rollback function invoked during a saga
// compensation walk.
func WithCompensation[T any](fn func(ctx context.Context, wfctx *T) Outcome) StepOption[T] {
	return func(s *FuncStep[T]) { s.compensate = fn }
}

// NewStep creates a FuncStep with the given name and execute function.
func NewStep[T any](name string, execute func(ctx context.Context, wfctx *T) Outcome, opts ...StepOption[T]) *FuncStep[T] {
	s := &FuncStep[T]{
		name:    name,
		execute: execute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FuncStep[T]) Name() string               { return s.name }
func (s *FuncStep[T]) CanRetry() bool             { return s.canRetry }
func (s *FuncStep[T]) StepTimeout() time.Duration { return s.timeout }

func (s *FuncStep[T]) Execute(ctx context.Context, wfctx *T) Outcome {
	return s.execute(ctx, wfctx)
}

func (s *FuncStep[T]) Compensate(ctx context.Context, wfctx *T) Outcome {
	if s.compensate == nil {
		return Success()
	}
	return s.compensate(ctx, wfctx)
}
