package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/engine"
	"github.com/xraph/cascade/workflow"
)

// compRecorder collects compensation invocations in order.
type compRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *compRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *compRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func compStep(name string, rec *compRecorder) workflow.Step[orderCtx] {
	return workflow.NewStep(name,
		func(_ context.Context, c *orderCtx) workflow.Outcome {
			c.Trail = append(c.Trail, name)
			return workflow.Success()
		},
		workflow.WithCompensation(func(context.Context, *orderCtx) workflow.Outcome {
			rec.record(name)
			return workflow.Success()
		}))
}

func failStep(name string) workflow.Step[orderCtx] {
	return workflow.NewStep(name, func(context.Context, *orderCtx) workflow.Outcome {
		return workflow.Failure("downstream rejected the request", false)
	})
}

func TestCompensationRunsInReverseOrder(t *testing.T) {
	rec := &compRecorder{}
	def := mustBuild(t, newBuilder(t, "saga").
		StartWith(compStep("validate", rec)).
		Then(compStep("reserve", rec)).
		Then(compStep("charge", rec)).
		Then(failStep("ship")))

	eng, st := newTestEngine(t)
	res, err := engine.Execute(context.Background(), eng, def, &orderCtx{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !res.Failed() {
		t.Fatalf("result = %+v", res)
	}

	want := []string{"charge", "reserve", "validate"}
	got := rec.names()
	if len(got) != len(want) {
		t.Fatalf("compensation order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("compensation order = %v, want %v", got, want)
		}
	}

	// The trace history records which steps were compensated.
	stored, err := st.LoadState(context.Background(), res.InstanceID)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	for _, tr := range stored.History {
		switch tr.StepName {
		case "validate", "reserve", "charge":
			if !tr.Compensated {
				t.Errorf("step %s not marked compensated", tr.StepName)
			}
		case "ship":
			if tr.Compensated {
				t.Error("failed step marked compensated")
			}
		}
	}
}

func TestCompensationSkipsFailedSteps(t *testing.T) {
	rec := &compRecorder{}
	def := mustBuild(t, newBuilder(t, "saga-skip").
		StartWith(compStep("only", rec)).
		Then(failStep("broken")))

	eng, _ := newTestEngine(t)
	if _, err := engine.Execute(context.Background(), eng, def, &orderCtx{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := rec.names()
	if len(got) != 1 || got[0] != "only" {
		t.Errorf("compensation order = %v, want [only]", got)
	}
}

func TestCompensationFailureIsCritical(t *testing.T) {
	bad := workflow.NewStep("bad-comp",
		func(_ context.Context, c *orderCtx) workflow.Outcome {
			return workflow.Success()
		},
		workflow.WithCompensation(func(context.Context, *orderCtx) workflow.Outcome {
			return workflow.Failure("refund API is down", false)
		}))

	def := mustBuild(t, newBuilder(t, "saga-bad").
		StartWith(bad).
		Then(failStep("broken")))

	eng, _ := newTestEngine(t)
	res, err := engine.Execute(context.Background(), eng, def, &orderCtx{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !res.Failed() {
		t.Fatalf("result = %+v", res)
	}
	if !errors.Is(res.Err, cascade.CodeCompensationFailed) {
		t.Errorf("Err = %v, want compensation failed code", res.Err)
	}
	// The original failure is still visible alongside the rollback one.
	if !errors.Is(res.Err, cascade.CodeStepFailed) {
		t.Errorf("Err = %v, original step failure lost", res.Err)
	}
}

func TestCompensationFailureDoesNotStopTheWalk(t *testing.T) {
	rec := &compRecorder{}
	bad := workflow.NewStep("mid",
		func(context.Context, *orderCtx) workflow.Outcome { return workflow.Success() },
		workflow.WithCompensation(func(context.Context, *orderCtx) workflow.Outcome {
			rec.record("mid")
			return workflow.Failure("rollback failed", false)
		}))

	def := mustBuild(t, newBuilder(t, "saga-walk").
		StartWith(compStep("first", rec)).
		Then(bad).
		Then(failStep("broken")))

	eng, _ := newTestEngine(t)
	if _, err := engine.Execute(context.Background(), eng, def, &orderCtx{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := rec.names()
	if len(got) != 2 || got[0] != "mid" || got[1] != "first" {
		t.Errorf("compensation order = %v, want [mid first]", got)
	}
}

func TestParallelBranchesJoinBeforeSuccessor(t *testing.T) {
	var joined bool
	join := workflow.NewStep("join", func(_ context.Context, c *orderCtx) workflow.Outcome {
		joined = true
		return workflow.Success()
	})

	var left, right sync.Once
	var leftDone, rightDone bool
	leftStep := workflow.NewStep("left", func(context.Context, *orderCtx) workflow.Outcome {
		left.Do(func() { leftDone = true })
		return workflow.Success()
	})
	rightStep := workflow.NewStep("right", func(context.Context, *orderCtx) workflow.Outcome {
		right.Do(func() { rightDone = true })
		return workflow.Success()
	})

	def := mustBuild(t, newBuilder(t, "fanout").
		StartWith(appendStep("start")).
		Split(leftStep, rightStep).
		Then(join))

	eng, _ := newTestEngine(t)
	res, err := engine.Execute(context.Background(), eng, def, &orderCtx{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !res.Completed() {
		t.Fatalf("result = %+v", res)
	}
	if !leftDone || !rightDone || !joined {
		t.Errorf("left=%v right=%v joined=%v", leftDone, rightDone, joined)
	}
	if len(res.History) != 4 {
		t.Errorf("history entries = %d, want 4", len(res.History))
	}
}

func TestParallelBranchFailureCompensatesSiblings(t *testing.T) {
	rec := &compRecorder{}
	def := mustBuild(t, newBuilder(t, "fanout-fail").
		StartWith(compStep("prepare", rec)).
		Split(compStep("ok-branch", rec), failStep("bad-branch")).
		Then(appendStep("never")))

	eng, _ := newTestEngine(t)
	res, err := engine.Execute(context.Background(), eng, def, &orderCtx{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !res.Failed() {
		t.Fatalf("result = %+v", res)
	}

	got := rec.names()
	if len(got) != 2 || got[0] != "ok-branch" || got[1] != "prepare" {
		t.Errorf("compensation order = %v, want [ok-branch prepare]", got)
	}
	for _, tr := range res.History {
		if tr.StepName == "never" {
			t.Error("join successor ran after a branch failure")
		}
	}
}
