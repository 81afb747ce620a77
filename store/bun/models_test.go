package bunstore

import (
	"testing"
	"time"

	"github.com/xraph/cascade/codec"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/workflow"
)

func TestInstanceModelRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	deadline := now.Add(time.Hour)
	completed := now.Add(2 * time.Minute)

	st := &workflow.InstanceState{
		ID:              id.NewInstanceID(),
		WorkflowID:      "order-fulfillment",
		WorkflowVersion: 3,
		Status:          workflow.StatusWaitingForApproval,
		Context:         []byte(`{"total":99.5}`),
		ContextType:     "order-context",
		CodecName:       codec.NameJSON,
		CurrentNodeID:   "02:approval:manager",
		WaitingSignal:   &workflow.SignalWait{Name: "manager", Deadline: &deadline},
		History: []workflow.StepTrace{
			{
				ID:            id.NewTraceID(),
				StepName:      "reserve",
				NodeID:        "00:reserve",
				Outcome:       workflow.OutcomeSuccess,
				RetryAttempts: 2,
				StartedAt:     now,
				CompletedAt:   now.Add(time.Second),
				Metadata:      map[string]string{"warehouse": "east"},
				Compensated:   true,
			},
		},
		CorrelationID: "corr-42",
		ErrorMessage:  "",
		Revision:      7,
		CreatedAt:     now,
		UpdatedAt:     now.Add(time.Minute),
		CompletedAt:   &completed,
	}

	m, err := toInstanceModel(st)
	if err != nil {
		t.Fatalf("toInstanceModel: %v", err)
	}
	got, err := fromInstanceModel(m)
	if err != nil {
		t.Fatalf("fromInstanceModel: %v", err)
	}

	if got.ID != st.ID {
		t.Errorf("ID = %s, want %s", got.ID, st.ID)
	}
	if got.WorkflowID != st.WorkflowID || got.WorkflowVersion != st.WorkflowVersion {
		t.Errorf("workflow = %s v%d, want %s v%d",
			got.WorkflowID, got.WorkflowVersion, st.WorkflowID, st.WorkflowVersion)
	}
	if got.Status != st.Status {
		t.Errorf("Status = %s, want %s", got.Status, st.Status)
	}
	if string(got.Context) != string(st.Context) || got.ContextType != st.ContextType {
		t.Errorf("context round trip mismatch: %q (%s)", got.Context, got.ContextType)
	}
	if got.CodecName != st.CodecName || got.CurrentNodeID != st.CurrentNodeID {
		t.Errorf("codec/node = %s/%s, want %s/%s",
			got.CodecName, got.CurrentNodeID, st.CodecName, st.CurrentNodeID)
	}
	if got.WaitingSignal == nil || got.WaitingSignal.Name != "manager" {
		t.Fatalf("WaitingSignal = %+v", got.WaitingSignal)
	}
	if got.WaitingSignal.Deadline == nil || !got.WaitingSignal.Deadline.Equal(deadline) {
		t.Errorf("Deadline = %v, want %v", got.WaitingSignal.Deadline, deadline)
	}
	if len(got.History) != 1 {
		t.Fatalf("History length = %d, want 1", len(got.History))
	}
	tr := got.History[0]
	if tr.ID != st.History[0].ID || tr.StepName != "reserve" || tr.NodeID != "00:reserve" {
		t.Errorf("trace = %+v", tr)
	}
	if tr.Outcome != workflow.OutcomeSuccess || tr.RetryAttempts != 2 || !tr.Compensated {
		t.Errorf("trace outcome fields = %+v", tr)
	}
	if tr.Metadata["warehouse"] != "east" {
		t.Errorf("trace metadata = %v", tr.Metadata)
	}
	if got.CorrelationID != st.CorrelationID || got.Revision != st.Revision {
		t.Errorf("correlation/revision = %s/%d", got.CorrelationID, got.Revision)
	}
	if !got.CreatedAt.Equal(st.CreatedAt) || !got.UpdatedAt.Equal(st.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", got.CreatedAt, got.UpdatedAt)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, completed)
	}
}

func TestInstanceModelNilWaitingSignal(t *testing.T) {
	st := &workflow.InstanceState{
		ID:         id.NewInstanceID(),
		WorkflowID: "plain",
		Status:     workflow.StatusRunning,
		Revision:   1,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	m, err := toInstanceModel(st)
	if err != nil {
		t.Fatalf("toInstanceModel: %v", err)
	}
	if m.WaitingSignal != nil {
		t.Errorf("WaitingSignal column = %q, want nil", m.WaitingSignal)
	}

	got, err := fromInstanceModel(m)
	if err != nil {
		t.Fatalf("fromInstanceModel: %v", err)
	}
	if got.WaitingSignal != nil {
		t.Errorf("WaitingSignal = %+v, want nil", got.WaitingSignal)
	}
	if got.History != nil {
		t.Errorf("History = %v, want nil", got.History)
	}
}

func TestInstanceModelRejectsBadID(t *testing.T) {
	m := &instanceModel{ID: "not-a-typeid", Status: string(workflow.StatusRunning)}
	if _, err := fromInstanceModel(m); err == nil {
		t.Fatal("fromInstanceModel accepted a malformed id")
	}
}
