// Package store defines the persistence contract for workflow instance
// state. Backends: Postgres (via Bun), Redis, and Memory. The engine
// writes a full snapshot at every step boundary, so a process crash
// between steps loses at most the step that was in flight.
package store

import (
	"context"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/workflow"
)

// ListOpts controls filtering and pagination for instance list queries.
type ListOpts struct {
	// Limit is the maximum number of instances to return. Zero means no
	// limit.
	Limit int
	// Offset is the number of instances to skip.
	Offset int
	// Status filters by instance status. Empty means all statuses.
	Status workflow.Status
	// WorkflowID filters by workflow definition. Empty means all.
	WorkflowID string
}

// Store defines the persistence contract for workflow instances.
// Implementations must enforce optimistic concurrency on SaveState: a
// snapshot whose Revision no longer matches the persisted one is
// rejected with cascade.ErrRevisionConflict.
type Store interface {
	// SaveState persists an instance snapshot. Revision zero creates the
	// instance; any other value updates it if the persisted revision
	// matches. On success the snapshot's Revision is advanced in place.
	SaveState(ctx context.Context, state *workflow.InstanceState) error

	// LoadState retrieves an instance snapshot by ID. The returned state
	// is owned by the caller; mutating it does not affect the store.
	LoadState(ctx context.Context, instanceID id.InstanceID) (*workflow.InstanceState, error)

	// ListStates returns instances matching the given options, ordered
	// by creation time.
	ListStates(ctx context.Context, opts ListOpts) ([]*workflow.InstanceState, error)

	// DeleteState removes an instance snapshot.
	DeleteState(ctx context.Context, instanceID id.InstanceID) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources. For backends built on an
	// injected client, the caller keeps ownership of the client.
	Close() error
}
