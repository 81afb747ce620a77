package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/store"
	"github.com/xraph/cascade/workflow"
)

func newState(workflowID string) *workflow.InstanceState {
	return &workflow.InstanceState{
		ID:          id.NewInstanceID(),
		WorkflowID:  workflowID,
		Status:      workflow.StatusRunning,
		Context:     []byte(`{}`),
		ContextType: workflowID,
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := New()
	ctx := context.Background()

	st := newState("order")
	if err := s.SaveState(ctx, st); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if st.Revision != 1 {
		t.Errorf("Revision after create = %d, want 1", st.Revision)
	}

	loaded, err := s.LoadState(ctx, st.ID)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded.WorkflowID != "order" || loaded.Revision != 1 {
		t.Errorf("loaded = %+v", loaded)
	}

	// The store hands out copies, not the live record.
	loaded.WorkflowID = "mutated"
	again, err := s.LoadState(ctx, st.ID)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if again.WorkflowID != "order" {
		t.Error("LoadState returned shared state")
	}
}

func TestLoadMissing(t *testing.T) {
	s := New()
	if _, err := s.LoadState(context.Background(), id.NewInstanceID()); !errors.Is(err, cascade.ErrInstanceNotFound) {
		t.Errorf("LoadState = %v, want ErrInstanceNotFound", err)
	}
}

func TestRevisionConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	st := newState("order")
	if err := s.SaveState(ctx, st); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Two workers load the same revision; the second save must lose.
	a, _ := s.LoadState(ctx, st.ID)
	b, _ := s.LoadState(ctx, st.ID)

	a.Status = workflow.StatusCompleted
	if err := s.SaveState(ctx, a); err != nil {
		t.Fatalf("first save: %v", err)
	}

	b.Status = workflow.StatusFailed
	if err := s.SaveState(ctx, b); !errors.Is(err, cascade.ErrRevisionConflict) {
		t.Errorf("second save = %v, want ErrRevisionConflict", err)
	}

	final, _ := s.LoadState(ctx, st.ID)
	if final.Status != workflow.StatusCompleted {
		t.Errorf("final status = %s, want the first writer's value", final.Status)
	}
}

func TestCreateTwiceConflicts(t *testing.T) {
	s := New()
	ctx := context.Background()

	st := newState("order")
	if err := s.SaveState(ctx, st); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := newState("order")
	dup.ID = st.ID
	if err := s.SaveState(ctx, dup); !errors.Is(err, cascade.ErrRevisionConflict) {
		t.Errorf("duplicate create = %v, want ErrRevisionConflict", err)
	}
}

func TestListStatesFilters(t *testing.T) {
	s := New()
	ctx := context.Background()

	running := newState("order")
	if err := s.SaveState(ctx, running); err != nil {
		t.Fatal(err)
	}

	waiting := newState("order")
	waiting.Status = workflow.StatusWaitingForSignal
	if err := s.SaveState(ctx, waiting); err != nil {
		t.Fatal(err)
	}

	other := newState("billing")
	if err := s.SaveState(ctx, other); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListStates(ctx, store.ListOpts{Status: workflow.StatusWaitingForSignal})
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	if len(got) != 1 || got[0].ID != waiting.ID {
		t.Errorf("status filter returned %d states", len(got))
	}

	got, err = s.ListStates(ctx, store.ListOpts{WorkflowID: "order"})
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("workflow filter returned %d states, want 2", len(got))
	}

	got, err = s.ListStates(ctx, store.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("limit returned %d states, want 1", len(got))
	}

	got, err = s.ListStates(ctx, store.ListOpts{Offset: 10})
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("out-of-range offset returned %d states", len(got))
	}
}

func TestDeleteState(t *testing.T) {
	s := New()
	ctx := context.Background()

	st := newState("order")
	if err := s.SaveState(ctx, st); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteState(ctx, st.ID); err != nil {
		t.Fatalf("DeleteState: %v", err)
	}
	if _, err := s.LoadState(ctx, st.ID); !errors.Is(err, cascade.ErrInstanceNotFound) {
		t.Errorf("LoadState after delete = %v", err)
	}
	if err := s.DeleteState(ctx, st.ID); !errors.Is(err, cascade.ErrInstanceNotFound) {
		t.Errorf("second delete = %v", err)
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.SaveState(ctx, newState("order")); !errors.Is(err, cascade.ErrStoreClosed) {
		t.Errorf("SaveState on closed store = %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, cascade.ErrStoreClosed) {
		t.Errorf("Ping on closed store = %v", err)
	}
}
