package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/workflow"
)

type instanceModel struct {
	bun.BaseModel `bun:"table:cascade_instances"`

	ID              string     `bun:"id,pk"`
	WorkflowID      string     `bun:"workflow_id,notnull"`
	WorkflowVersion int        `bun:"workflow_version,notnull,default:1"`
	Status          string     `bun:"status,notnull"`
	Context         []byte     `bun:"context,type:bytea"`
	ContextType     string     `bun:"context_type,notnull"`
	CodecName       string     `bun:"codec_name"`
	CurrentNodeID   string     `bun:"current_node_id"`
	WaitingSignal   []byte     `bun:"waiting_signal,type:jsonb"`
	History         []byte     `bun:"history,notnull,type:jsonb"`
	CorrelationID   string     `bun:"correlation_id"`
	ErrorMessage    string     `bun:"error_message"`
	Revision        int64      `bun:"revision,notnull,default:1"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	CompletedAt     *time.Time `bun:"completed_at"`
}

func toInstanceModel(st *workflow.InstanceState) (*instanceModel, error) {
	history, err := json.Marshal(st.History)
	if err != nil {
		return nil, fmt.Errorf("cascade/bun: marshal history: %w", err)
	}
	var waiting []byte
	if st.WaitingSignal != nil {
		waiting, err = json.Marshal(st.WaitingSignal)
		if err != nil {
			return nil, fmt.Errorf("cascade/bun: marshal waiting signal: %w", err)
		}
	}
	return &instanceModel{
		ID:              st.ID.String(),
		WorkflowID:      st.WorkflowID,
		WorkflowVersion: st.WorkflowVersion,
		Status:          string(st.Status),
		Context:         st.Context,
		ContextType:     st.ContextType,
		CodecName:       st.CodecName,
		CurrentNodeID:   st.CurrentNodeID,
		WaitingSignal:   waiting,
		History:         history,
		CorrelationID:   st.CorrelationID,
		ErrorMessage:    st.ErrorMessage,
		Revision:        st.Revision,
		CreatedAt:       st.CreatedAt,
		UpdatedAt:       st.UpdatedAt,
		CompletedAt:     st.CompletedAt,
	}, nil
}

func fromInstanceModel(m *instanceModel) (*workflow.InstanceState, error) {
	parsedID, err := id.ParseInstanceID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("cascade/bun: parse instance id %q: %w", m.ID, err)
	}

	st := &workflow.InstanceState{
		ID:              parsedID,
		WorkflowID:      m.WorkflowID,
		WorkflowVersion: m.WorkflowVersion,
		Status:          workflow.Status(m.Status),
		Context:         m.Context,
		ContextType:     m.ContextType,
		CodecName:       m.CodecName,
		CurrentNodeID:   m.CurrentNodeID,
		CorrelationID:   m.CorrelationID,
		ErrorMessage:    m.ErrorMessage,
		Revision:        m.Revision,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		CompletedAt:     m.CompletedAt,
	}

	if len(m.History) > 0 {
		if err := json.Unmarshal(m.History, &st.History); err != nil {
			return nil, fmt.Errorf("cascade/bun: unmarshal history: %w", err)
		}
	}
	if len(m.WaitingSignal) > 0 {
		st.WaitingSignal = &workflow.SignalWait{}
		if err := json.Unmarshal(m.WaitingSignal, st.WaitingSignal); err != nil {
			return nil, fmt.Errorf("cascade/bun: unmarshal waiting signal: %w", err)
		}
	}
	return st, nil
}
