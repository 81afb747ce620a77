package store

import (
	"context"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/workflow"
)

// StateInfo is a summary of an instance for callers that do not know the
// instance's context type ahead of time: enough to route a signal or
// render a status page without decoding the context.
type StateInfo struct {
	InstanceID      id.InstanceID
	WorkflowID      string
	WorkflowVersion int
	Status          workflow.Status
	WaitingSignal   *workflow.SignalWait
	ContextType     string

	// Resolved is true when ContextType matched one of the caller's
	// candidate type names.
	Resolved bool
}

// ResolveStateInfo loads an instance and reports its status, waiting
// signal, and context type, matching the latter against the caller's
// candidate type names. The context stays encoded; no typed handler is
// needed. An empty candidates list resolves unconditionally.
func ResolveStateInfo(ctx context.Context, s Store, instanceID id.InstanceID, candidates []string) (*StateInfo, error) {
	st, err := s.LoadState(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	info := &StateInfo{
		InstanceID:      st.ID,
		WorkflowID:      st.WorkflowID,
		WorkflowVersion: st.WorkflowVersion,
		Status:          st.Status,
		WaitingSignal:   st.WaitingSignal,
		ContextType:     st.ContextType,
		Resolved:        len(candidates) == 0,
	}
	for _, name := range candidates {
		if name == st.ContextType {
			info.Resolved = true
			break
		}
	}
	return info, nil
}
