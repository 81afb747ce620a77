// Package memory provides an in-memory Store for tests and
// single-process deployments. All state is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/store"
	"github.com/xraph/cascade/workflow"
)

// Store is a thread-safe in-memory instance store. It deep-copies on
// both save and load so callers never share memory with the store.
type Store struct {
	mu        sync.RWMutex
	instances map[string]*workflow.InstanceState
	closed    bool
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		instances: make(map[string]*workflow.InstanceState),
	}
}

// SaveState persists an instance snapshot with optimistic concurrency.
func (m *Store) SaveState(_ context.Context, state *workflow.InstanceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return cascade.ErrStoreClosed
	}

	key := state.ID.String()
	existing, ok := m.instances[key]

	if state.Revision == 0 {
		if ok {
			return cascade.ErrRevisionConflict
		}
	} else {
		if !ok {
			return cascade.ErrInstanceNotFound
		}
		if existing.Revision != state.Revision {
			return cascade.ErrRevisionConflict
		}
	}

	state.Revision++
	state.UpdatedAt = time.Now().UTC()
	m.instances[key] = state.Clone()
	return nil
}

// LoadState retrieves an instance snapshot by ID.
func (m *Store) LoadState(_ context.Context, instanceID id.InstanceID) (*workflow.InstanceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, cascade.ErrStoreClosed
	}

	st, ok := m.instances[instanceID.String()]
	if !ok {
		return nil, cascade.ErrInstanceNotFound
	}
	return st.Clone(), nil
}

// ListStates returns instances matching the given options.
func (m *Store) ListStates(_ context.Context, opts store.ListOpts) ([]*workflow.InstanceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, cascade.ErrStoreClosed
	}

	result := make([]*workflow.InstanceState, 0, len(m.instances))
	for _, st := range m.instances {
		if opts.Status != "" && st.Status != opts.Status {
			continue
		}
		if opts.WorkflowID != "" && st.WorkflowID != opts.WorkflowID {
			continue
		}
		result = append(result, st.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// DeleteState removes an instance snapshot.
func (m *Store) DeleteState(_ context.Context, instanceID id.InstanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return cascade.ErrStoreClosed
	}

	key := instanceID.String()
	if _, ok := m.instances[key]; !ok {
		return cascade.ErrInstanceNotFound
	}
	delete(m.instances, key)
	return nil
}

// Ping always succeeds while the store is open.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return cascade.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Subsequent operations fail.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
