package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type reviewCtx struct {
	Amount   float64 `json:"amount"`
	Approver string  `json:"approver"`
}

func TestSignalWaitStepSuspends(t *testing.T) {
	step := NewSignalWait[reviewCtx]("payment-confirmed", nil, WithSignalTimeout[reviewCtx](time.Hour))

	o := step.Execute(context.Background(), &reviewCtx{})
	if !o.IsSuspend() {
		t.Fatalf("Execute = %+v, want suspend", o)
	}
	if o.SignalName != "payment-confirmed" || o.SignalTimeout != time.Hour {
		t.Errorf("suspend fields = %q/%s", o.SignalName, o.SignalTimeout)
	}
	if step.SuspendStatus() != StatusWaitingForSignal {
		t.Errorf("SuspendStatus = %s", step.SuspendStatus())
	}
	if step.Name() != "wait:payment-confirmed" {
		t.Errorf("Name = %q", step.Name())
	}
}

func TestSignalWaitStepAppliesPayload(t *testing.T) {
	step := NewSignalWait("update", func(_ context.Context, c *reviewCtx, payload []byte) Outcome {
		if err := json.Unmarshal(payload, c); err != nil {
			return FailureErr(err, false)
		}
		return Success()
	})

	var c reviewCtx
	o := step.ProcessSignal(context.Background(), &c, []byte(`{"amount": 42.5}`))
	if !o.IsSuccess() {
		t.Fatalf("ProcessSignal = %+v", o)
	}
	if c.Amount != 42.5 {
		t.Errorf("payload not applied: %+v", c)
	}

	// nil apply function resumes without touching the context
	passthrough := NewSignalWait[reviewCtx]("noop", nil)
	if o := passthrough.ProcessSignal(context.Background(), &c, nil); !o.IsSuccess() {
		t.Errorf("nil apply = %+v", o)
	}
}

func TestApprovalStepApproved(t *testing.T) {
	var seen ApprovalDecision
	step := NewApproval("sign-off",
		WithApprovalTimeout[reviewCtx](24*time.Hour),
		WithDecisionHook(func(_ context.Context, c *reviewCtx, d ApprovalDecision) error {
			seen = d
			c.Approver = d.Actor
			return nil
		}))

	if step.SuspendStatus() != StatusWaitingForApproval {
		t.Errorf("SuspendStatus = %s", step.SuspendStatus())
	}
	if step.SignalTimeout() != 24*time.Hour {
		t.Errorf("SignalTimeout = %s", step.SignalTimeout())
	}

	var c reviewCtx
	o := step.ProcessSignal(context.Background(), &c,
		[]byte(`{"approved": true, "actor": "ops-lead", "comments": "lgtm"}`))
	if !o.IsSuccess() {
		t.Fatalf("approved decision = %+v", o)
	}
	if o.Metadata["actor"] != "ops-lead" {
		t.Errorf("actor metadata = %q", o.Metadata["actor"])
	}
	if !seen.Approved || seen.Comments != "lgtm" || c.Approver != "ops-lead" {
		t.Errorf("decision hook saw %+v, ctx %+v", seen, c)
	}
}

func TestApprovalStepRejected(t *testing.T) {
	step := NewApproval[reviewCtx]("sign-off")
	o := step.ProcessSignal(context.Background(), &reviewCtx{},
		[]byte(`{"approved": false, "actor": "cfo"}`))
	if !o.IsFailure() || o.Retryable {
		t.Fatalf("rejected decision = %+v, want non-retryable failure", o)
	}
	if !strings.Contains(o.Message, "cfo") {
		t.Errorf("rejection message %q does not name the actor", o.Message)
	}
}

func TestApprovalStepBadPayload(t *testing.T) {
	step := NewApproval[reviewCtx]("sign-off")
	o := step.ProcessSignal(context.Background(), &reviewCtx{}, []byte(`not json`))
	if !o.IsFailure() || o.Retryable {
		t.Errorf("bad payload = %+v, want non-retryable failure", o)
	}
}

func TestModificationStepStagesOnly(t *testing.T) {
	step := NewModification("change-amount", func(_ context.Context, c *reviewCtx, payload []byte) Outcome {
		if err := json.Unmarshal(payload, c); err != nil {
			return FailureErr(err, false)
		}
		return Success()
	})
	if step.Name() != "modify:change-amount" {
		t.Errorf("Name = %q", step.Name())
	}

	var c reviewCtx
	if o := step.ProcessSignal(context.Background(), &c, []byte(`{"amount": 7}`)); !o.IsSuccess() {
		t.Fatalf("ProcessSignal = %+v", o)
	}
	if c.Amount != 7 {
		t.Errorf("staged amount = %f", c.Amount)
	}
}

func TestCommitStepRollsBackOnCompensate(t *testing.T) {
	var committed, rolledBack bool
	step := NewCommit("apply-change",
		func(context.Context, *reviewCtx) Outcome { committed = true; return Success() },
		func(context.Context, *reviewCtx) Outcome { rolledBack = true; return Success() })

	if o := step.Execute(context.Background(), &reviewCtx{}); !o.IsSuccess() {
		t.Fatalf("Execute = %+v", o)
	}
	if o := step.Compensate(context.Background(), &reviewCtx{}); !o.IsSuccess() {
		t.Fatalf("Compensate = %+v", o)
	}
	if !committed || !rolledBack {
		t.Errorf("committed=%v rolledBack=%v", committed, rolledBack)
	}
}
