// Package bunstore implements store.Store on PostgreSQL through the Bun
// ORM. Revision checks ride on a conditional UPDATE, so two engines
// racing on the same instance resolve through ErrRevisionConflict
// without any advisory locking.
package bunstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/store"
	"github.com/xraph/cascade/workflow"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a Bun ORM implementation of store.Store using PostgreSQL
// dialect. The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a new Bun store. The caller owns the db lifecycle.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a PostgreSQL connection from a DSN and wraps it in a
// *bun.DB ready for New. The caller owns the returned DB.
func Connect(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate runs all embedded SQL migration files in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cascade_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("cascade/bun: create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("cascade/bun: read migrations: %w", err)
	}

	// Sort by filename for deterministic order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var applied bool
		err = s.db.NewSelect().
			ColumnExpr("TRUE").
			TableExpr("cascade_migrations").
			Where("filename = ?", entry.Name()).
			Scan(ctx, &applied)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("cascade/bun: check migration %s: %w", entry.Name(), err)
		}
		if applied {
			continue
		}

		content, readErr := migrationsFS.ReadFile("migrations/" + entry.Name())
		if readErr != nil {
			return fmt.Errorf("cascade/bun: read migration %s: %w", entry.Name(), readErr)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("cascade/bun: apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO cascade_migrations (filename) VALUES (?)", entry.Name()); err != nil {
			return fmt.Errorf("cascade/bun: record migration %s: %w", entry.Name(), err)
		}
		s.logger.Info("applied migration", slog.String("filename", entry.Name()))
	}
	return nil
}

// SaveState persists an instance snapshot with optimistic concurrency.
func (s *Store) SaveState(ctx context.Context, state *workflow.InstanceState) error {
	expected := state.Revision
	state.Revision++
	state.UpdatedAt = time.Now().UTC()

	model, err := toInstanceModel(state)
	if err != nil {
		state.Revision = expected
		return err
	}

	if expected == 0 {
		res, insErr := s.db.NewInsert().
			Model(model).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if insErr != nil {
			state.Revision = expected
			return fmt.Errorf("cascade/bun: insert state: %w", insErr)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			state.Revision = expected
			return cascade.ErrRevisionConflict
		}
		return nil
	}

	res, updErr := s.db.NewUpdate().
		Model(model).
		WherePK().
		Where("revision = ?", expected).
		Exec(ctx)
	if updErr != nil {
		state.Revision = expected
		return fmt.Errorf("cascade/bun: update state: %w", updErr)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		state.Revision = expected
		// Distinguish a missing row from a stale revision.
		exists, exErr := s.db.NewSelect().
			Model((*instanceModel)(nil)).
			Where("id = ?", state.ID.String()).
			Exists(ctx)
		if exErr != nil {
			return fmt.Errorf("cascade/bun: update state exists: %w", exErr)
		}
		if !exists {
			return cascade.ErrInstanceNotFound
		}
		return cascade.ErrRevisionConflict
	}
	return nil
}

// LoadState retrieves an instance snapshot by ID.
func (s *Store) LoadState(ctx context.Context, instanceID id.InstanceID) (*workflow.InstanceState, error) {
	model := new(instanceModel)
	err := s.db.NewSelect().
		Model(model).
		Where("id = ?", instanceID.String()).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cascade.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cascade/bun: load state: %w", err)
	}
	return fromInstanceModel(model)
}

// ListStates returns instances matching the given options.
func (s *Store) ListStates(ctx context.Context, opts store.ListOpts) ([]*workflow.InstanceState, error) {
	var models []instanceModel
	q := s.db.NewSelect().
		Model(&models).
		Order("created_at ASC")
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.WorkflowID != "" {
		q = q.Where("workflow_id = ?", opts.WorkflowID)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("cascade/bun: list states: %w", err)
	}

	states := make([]*workflow.InstanceState, 0, len(models))
	for i := range models {
		st, err := fromInstanceModel(&models[i])
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

// DeleteState removes an instance snapshot.
func (s *Store) DeleteState(ctx context.Context, instanceID id.InstanceID) error {
	res, err := s.db.NewDelete().
		Model((*instanceModel)(nil)).
		Where("id = ?", instanceID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cascade/bun: delete state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cascade.ErrInstanceNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error { return nil }
