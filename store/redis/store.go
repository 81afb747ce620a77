// Package redis implements store.Store using Redis. Instances are
// stored as Hashes with the full snapshot as a JSON blob plus a few
// plain fields for filtering; a Lua compare-and-set enforces the
// revision check atomically.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/store"
	"github.com/xraph/cascade/workflow"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Redis key naming conventions. All keys are prefixed with "cascade:"
// to avoid collisions.

const keyPrefix = "cascade:"

// instanceKey returns the key for an instance entity: cascade:instance:{id}
func instanceKey(id string) string { return keyPrefix + "instance:" + id }

// instanceIDsKey is the Set tracking all instance IDs for enumeration.
const instanceIDsKey = keyPrefix + "instance_ids"

// saveScript performs the revision compare-and-set and the snapshot
// write in one atomic unit. ARGV[1] is the expected revision ("0" for
// create), ARGV[2..6] the fields, ARGV[7] the instance id.
var saveScript = goredis.NewScript(`
local rev = redis.call('HGET', KEYS[1], 'revision')
if ARGV[1] == '0' then
  if rev then return 'conflict' end
else
  if not rev then return 'missing' end
  if rev ~= ARGV[1] then return 'conflict' end
end
redis.call('HSET', KEYS[1],
  'data', ARGV[2],
  'status', ARGV[3],
  'workflow_id', ARGV[4],
  'revision', ARGV[5],
  'updated_at', ARGV[6])
redis.call('SADD', KEYS[2], ARGV[7])
return 'ok'
`)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements store.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis
// client lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// SaveState persists an instance snapshot with optimistic concurrency.
func (s *Store) SaveState(ctx context.Context, state *workflow.InstanceState) error {
	expected := state.Revision
	state.Revision++
	state.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(state)
	if err != nil {
		state.Revision = expected
		return fmt.Errorf("cascade/redis: marshal state: %w", err)
	}

	res, err := saveScript.Run(ctx, s.client,
		[]string{instanceKey(state.ID.String()), instanceIDsKey},
		strconv.FormatInt(expected, 10),
		string(data),
		string(state.Status),
		state.WorkflowID,
		strconv.FormatInt(state.Revision, 10),
		state.UpdatedAt.Format(time.RFC3339Nano),
		state.ID.String(),
	).Result()
	if err != nil {
		state.Revision = expected
		return fmt.Errorf("cascade/redis: save state: %w", err)
	}

	switch res {
	case "ok":
		return nil
	case "missing":
		state.Revision = expected
		return cascade.ErrInstanceNotFound
	default:
		state.Revision = expected
		return cascade.ErrRevisionConflict
	}
}

// LoadState retrieves an instance snapshot by ID.
func (s *Store) LoadState(ctx context.Context, instanceID id.InstanceID) (*workflow.InstanceState, error) {
	data, err := s.client.HGet(ctx, instanceKey(instanceID.String()), "data").Result()
	if err == goredis.Nil {
		return nil, cascade.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: load state: %w", err)
	}

	var state workflow.InstanceState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("cascade/redis: unmarshal state: %w", err)
	}
	return &state, nil
}

// ListStates returns instances matching the given options. Filtering
// happens client-side over the enumeration set; acceptable at the
// cardinalities a single engine manages.
func (s *Store) ListStates(ctx context.Context, opts store.ListOpts) ([]*workflow.InstanceState, error) {
	ids, err := s.client.SMembers(ctx, instanceIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: list states smembers: %w", err)
	}

	var states []*workflow.InstanceState
	for _, iID := range ids {
		data, getErr := s.client.HGet(ctx, instanceKey(iID), "data").Result()
		if getErr != nil {
			continue
		}
		var st workflow.InstanceState
		if json.Unmarshal([]byte(data), &st) != nil {
			continue
		}
		if opts.Status != "" && st.Status != opts.Status {
			continue
		}
		if opts.WorkflowID != "" && st.WorkflowID != opts.WorkflowID {
			continue
		}
		states = append(states, &st)
	}

	sort.Slice(states, func(i, k int) bool {
		return states[i].CreatedAt.Before(states[k].CreatedAt)
	})

	if opts.Offset >= len(states) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Offset > 0 {
		states = states[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(states) {
		states = states[:opts.Limit]
	}
	return states, nil
}

// DeleteState removes an instance snapshot.
func (s *Store) DeleteState(ctx context.Context, instanceID id.InstanceID) error {
	iID := instanceID.String()
	exists, err := s.client.Exists(ctx, instanceKey(iID)).Result()
	if err != nil {
		return fmt.Errorf("cascade/redis: delete state exists: %w", err)
	}
	if exists == 0 {
		return cascade.ErrInstanceNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, instanceKey(iID))
	pipe.SRem(ctx, instanceIDsKey, iID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cascade/redis: delete state: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
