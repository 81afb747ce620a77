package cascade

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across subsystems.
var (
	// Store errors.
	ErrNoStore          = errors.New("cascade: no store configured")
	ErrStoreClosed      = errors.New("cascade: store closed")
	ErrInstanceNotFound = errors.New("cascade: workflow instance not found")

	// ErrRevisionConflict is returned by SaveState when the persisted
	// revision no longer matches the snapshot being written. Two resumption
	// attempts raced; the loser must reload and retry or give up.
	ErrRevisionConflict = errors.New("cascade: instance revision conflict")

	// Registry errors.
	ErrWorkflowNotRegistered = errors.New("cascade: workflow not registered")
	ErrContextTypeUnknown    = errors.New("cascade: context type not registered")

	// Signal delivery errors.
	ErrNotWaiting     = errors.New("cascade: instance is not waiting for a signal")
	ErrSignalMismatch = errors.New("cascade: signal name does not match waiting signal")

	// State errors.
	ErrInvalidTransition = errors.New("cascade: invalid status transition")
)

// Category classifies an error for operator response. It informs severity
// and dashboards, never program control flow.
type Category string

const (
	// CategoryConfiguration covers mistakes in workflow definitions,
	// surfaced at build time and never retried.
	CategoryConfiguration Category = "configuration"
	// CategoryExecution covers runtime step and workflow failures.
	CategoryExecution Category = "execution"
	// CategoryTimeout covers step and workflow deadline violations.
	CategoryTimeout Category = "timeout"
)

// Severity indicates how urgently an operator should react.
type Severity string

const (
	// SeverityHigh marks errors that fail a single workflow instance.
	SeverityHigh Severity = "high"
	// SeverityCritical marks errors that leave side effects unrecovered
	// (failed compensation) or reject a definition outright.
	SeverityCritical Severity = "critical"
)

// Code identifies the precise error condition. Code implements error so
// representative values work directly as errors.Is targets.
type Code string

func (c Code) Error() string { return string(c) }

const (
	CodeInvalidConfiguration Code = "invalid_configuration"
	CodeMissingRequired      Code = "missing_required"
	CodeInvalidStep          Code = "invalid_step"
	CodeCircularDependency   Code = "circular_dependency"
	CodeInvalidBuilderState  Code = "invalid_builder_state"

	CodeStepFailed         Code = "step_failed"
	CodeExecutionFailed    Code = "execution_failed"
	CodeCompensationFailed Code = "compensation_failed"
	CodeCancelled          Code = "cancelled"

	CodeStepTimedOut     Code = "step_timed_out"
	CodeWorkflowTimedOut Code = "workflow_timed_out"
)

// Error is a classified workflow error. Callers receive it inside a
// structured result; it is never panicked for expected business outcomes.
type Error struct {
	Code     Code
	Category Category
	Severity Severity
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cascade: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("cascade: %s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a Code or an *Error with the same Code,
// so callers can match with errors.Is.
func (e *Error) Is(target error) bool {
	if c, ok := target.(Code); ok {
		return e.Code == c
	}
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewConfigError creates a build-time configuration error. Codes in the
// configuration family default to Critical severity: the definition is
// unusable.
func NewConfigError(code Code, format string, args ...any) *Error {
	return &Error{
		Code:     code,
		Category: CategoryConfiguration,
		Severity: SeverityCritical,
		Message:  fmt.Sprintf(format, args...),
	}
}

// NewExecutionError creates a runtime execution error wrapping a cause.
func NewExecutionError(code Code, cause error, format string, args ...any) *Error {
	sev := SeverityHigh
	if code == CodeCompensationFailed {
		// An unrecovered side effect is always critical.
		sev = SeverityCritical
	}
	return &Error{
		Code:     code,
		Category: CategoryExecution,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Err:      cause,
	}
}

// NewTimeoutError creates a timeout error carrying the configured and
// actual durations for diagnostics.
func NewTimeoutError(code Code, configured, actual string) *Error {
	sev := SeverityHigh
	if code == CodeWorkflowTimedOut {
		sev = SeverityCritical
	}
	return &Error{
		Code:     code,
		Category: CategoryTimeout,
		Severity: sev,
		Message:  fmt.Sprintf("configured %s, elapsed %s", configured, actual),
	}
}
