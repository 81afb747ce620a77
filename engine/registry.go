package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/workflow"
)

// resumeFunc resumes a persisted instance. The closure created by
// Register captures the typed definition, so no reflection is needed to
// get from stored bytes back to a concrete context type.
type resumeFunc func(ctx context.Context, e *Engine, st *workflow.InstanceState, signalName string, payload []byte, expired bool) (*Result, error)

type entry struct {
	version     int
	contextType string
	resume      resumeFunc
}

// Registry maps workflow ids to versioned resume handlers. Definitions
// are registered at startup; instances persisted by an older process
// resume through the entry matching their recorded version.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string][]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		workflows: make(map[string][]entry),
	}
}

// Register adds a typed definition to the registry. Registering the
// same workflow id and version twice is an error; registering a new
// version alongside an old one is how migrations roll out.
func Register[T any](r *Registry, def *workflow.Definition[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.workflows[def.WorkflowID()]
	for _, ent := range entries {
		if ent.version == def.Version() {
			return cascade.NewConfigError(cascade.CodeInvalidConfiguration,
				"workflow %s version %d already registered", def.WorkflowID(), def.Version())
		}
	}

	ent := entry{
		version:     def.Version(),
		contextType: def.ContextType(),
		resume: func(ctx context.Context, e *Engine, st *workflow.InstanceState, signalName string, payload []byte, expired bool) (*Result, error) {
			if st.ContextType != def.ContextType() {
				return nil, fmt.Errorf("%w: instance %s recorded %q, definition expects %q",
					cascade.ErrContextTypeUnknown, st.ID, st.ContextType, def.ContextType())
			}
			wfctx := new(T)
			if err := codecFor(st).Unmarshal(st.Context, wfctx); err != nil {
				return nil, fmt.Errorf("cascade/engine: decode context of %s: %w", st.ID, err)
			}
			return resumeRun(ctx, e, def, st, wfctx, signalName, payload, expired)
		},
	}

	r.workflows[def.WorkflowID()] = append(entries, ent)
	return nil
}

// lookup returns the entry for a workflow id and version.
func (r *Registry) lookup(workflowID string, version int) (entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ent := range r.workflows[workflowID] {
		if ent.version == version {
			return ent, nil
		}
	}
	return entry{}, fmt.Errorf("%w: %s version %d", cascade.ErrWorkflowNotRegistered, workflowID, version)
}

// Names returns the registered workflow ids, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versions returns the registered versions for a workflow id, ascending.
func (r *Registry) Versions(workflowID string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := make([]int, 0, len(r.workflows[workflowID]))
	for _, ent := range r.workflows[workflowID] {
		versions = append(versions, ent.version)
	}
	sort.Ints(versions)
	return versions
}
