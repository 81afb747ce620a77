package engine

import (
	"log/slog"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/backoff"
	"github.com/xraph/cascade/codec"
	"github.com/xraph/cascade/middleware"
	"github.com/xraph/cascade/store"
	"github.com/xraph/cascade/workflow"
)

// Engine executes workflow definitions against a persistence store. It
// is safe for concurrent use; all per-run state lives in the instance
// snapshot, never in the engine.
type Engine struct {
	store       store.Store
	registry    *Registry
	logger      *slog.Logger
	cfg         cascade.Config
	strategy    backoff.Strategy
	mw          []middleware.Middleware
	codec       codec.Codec
	metricsHook func(*workflow.InstanceState, *workflow.Metrics)
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConfig overrides the engine-wide execution defaults.
func WithConfig(cfg cascade.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithBackoff sets the retry delay strategy for all steps.
func WithBackoff(s backoff.Strategy) Option {
	return func(e *Engine) { e.strategy = s }
}

// WithMiddleware appends middleware applied around every step attempt,
// inside the engine's own panic recovery.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Engine) { e.mw = append(e.mw, mws...) }
}

// WithCodec sets the codec used to encode contexts of new instances.
// Existing instances keep decoding with the codec recorded on them.
func WithCodec(c codec.Codec) Option {
	return func(e *Engine) { e.codec = c }
}

// WithMetricsHook sets a hook that runs after the built-in metrics are
// derived from the trace history, letting callers record custom
// measurements on Metrics.Custom. The hook sees the final instance
// snapshot and must not mutate it.
func WithMetricsHook(hook func(st *workflow.InstanceState, m *workflow.Metrics)) Option {
	return func(e *Engine) { e.metricsHook = hook }
}

// New creates an Engine on the given store and registry.
func New(st store.Store, reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		registry: reg,
		logger:   slog.Default(),
		cfg:      cascade.DefaultConfig(),
		strategy: backoff.DefaultStrategy(),
		codec:    &codec.JSON{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's persistence store.
func (e *Engine) Store() store.Store { return e.store }

// Registry returns the engine's workflow registry.
func (e *Engine) Registry() *Registry { return e.registry }
