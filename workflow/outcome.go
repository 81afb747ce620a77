package workflow

import (
	"fmt"
	"strings"
	"time"
)

// OutcomeKind discriminates the variants of a step outcome.
type OutcomeKind string

const (
	// OutcomeSuccess means the step completed and the graph may advance.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeFailure means the step failed; Retryable controls whether the
	// engine consults its retry policy.
	OutcomeFailure OutcomeKind = "failure"
	// OutcomeSuspend means the step is waiting for an external signal.
	// The engine persists the instance and returns control to the caller;
	// this is not an error.
	OutcomeSuspend OutcomeKind = "suspend"
)

// legacySignalPrefix is the historical string sentinel for signal waits,
// embedded in a failure message. Normalized still honors it so steps
// written against the old convention keep working.
const legacySignalPrefix = "WAITING_FOR_SIGNAL:"

// Outcome is the tagged result of a step attempt.
type Outcome struct {
	Kind      OutcomeKind
	Message   string
	Retryable bool
	Err       error
	Metadata  map[string]string

	// Fatal marks an uncaught fault (panic) as opposed to a returned
	// failure. Both end the workflow through compensation, but fatal
	// faults surface with a distinct error code.
	Fatal bool

	// SignalName and SignalTimeout are set on suspend outcomes only.
	SignalName    string
	SignalTimeout time.Duration
}

// Success returns a successful outcome.
func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// SuccessWithMetadata returns a successful outcome carrying metadata
// that is recorded on the trace entry.
func SuccessWithMetadata(md map[string]string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Metadata: md}
}

// Failure returns a failed outcome. retryable controls whether the
// engine consults the retry policy before giving up.
func Failure(message string, retryable bool) Outcome {
	return Outcome{Kind: OutcomeFailure, Message: message, Retryable: retryable}
}

// Failuref is Failure with a formatted message.
func Failuref(retryable bool, format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeFailure, Message: fmt.Sprintf(format, args...), Retryable: retryable}
}

// FailureErr returns a failed outcome wrapping a source error.
func FailureErr(err error, retryable bool) Outcome {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Kind: OutcomeFailure, Message: msg, Retryable: retryable, Err: err}
}

// Fault returns the outcome for an uncaught fault (panic) in a step.
// Fatal faults are never retried.
func Fault(err error) Outcome {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Kind: OutcomeFailure, Message: msg, Err: err, Fatal: true}
}

// Suspend returns the outcome that parks the workflow until the named
// signal arrives. timeout of zero means the wait never expires.
func Suspend(signalName string, timeout time.Duration) Outcome {
	return Outcome{Kind: OutcomeSuspend, SignalName: signalName, SignalTimeout: timeout}
}

// IsSuccess reports whether the outcome is a success.
func (o Outcome) IsSuccess() bool { return o.Kind == OutcomeSuccess }

// IsFailure reports whether the outcome is a failure.
func (o Outcome) IsFailure() bool { return o.Kind == OutcomeFailure }

// IsSuspend reports whether the outcome is a signal-wait suspension.
func (o Outcome) IsSuspend() bool { return o.Kind == OutcomeSuspend }

// Normalized converts a legacy sentinel failure ("WAITING_FOR_SIGNAL:<name>"
// with retryable=false) into an explicit suspend outcome. All other
// outcomes pass through unchanged. The engine normalizes every step
// outcome before acting on it, so both conventions behave identically.
func (o Outcome) Normalized() Outcome {
	if o.Kind != OutcomeFailure || o.Retryable || o.Fatal {
		return o
	}
	name, ok := strings.CutPrefix(o.Message, legacySignalPrefix)
	if !ok || name == "" {
		return o
	}
	return Outcome{
		Kind:       OutcomeSuspend,
		SignalName: name,
		Metadata:   o.Metadata,
	}
}
