// Package signal delivers external signals to suspended workflow
// instances and sweeps waits whose deadlines have passed. It is the
// boundary a webhook handler or message consumer calls into; the engine
// does the actual resumption.
package signal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/cascade/engine"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/store"
	"github.com/xraph/cascade/workflow"
)

// Deliverer routes signals to waiting instances.
type Deliverer struct {
	store   store.Store
	engine  *engine.Engine
	logger  *slog.Logger
	limiter *rate.Limiter
}

// Option configures the Deliverer.
type Option func(*Deliverer)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Deliverer) { d.logger = l }
}

// WithSweepRate caps how many expirations per second a sweep processes.
// Each expiration runs a compensation walk, so an unpaced sweep over a
// large backlog can hammer downstream systems.
func WithSweepRate(perSecond float64, burst int) Option {
	return func(d *Deliverer) { d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewDeliverer creates a Deliverer over the engine's store.
func NewDeliverer(st store.Store, eng *engine.Engine, opts ...Option) *Deliverer {
	d := &Deliverer{
		store:   st,
		engine:  eng,
		logger:  slog.Default(),
		limiter: rate.NewLimiter(rate.Limit(50), 10),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver routes a signal payload to a waiting instance and runs the
// workflow forward. Each delivery is tagged with a fresh signal id for
// the audit log.
func (d *Deliverer) Deliver(ctx context.Context, instanceID id.InstanceID, signalName string, payload []byte) (*engine.Result, error) {
	sigID := id.NewSignalID()
	d.logger.Info("signal received",
		slog.String("signal_id", sigID.String()),
		slog.String("instance_id", instanceID.String()),
		slog.String("signal", signalName),
		slog.Int("payload_bytes", len(payload)),
	)

	res, err := d.engine.Resume(ctx, instanceID, signalName, payload)
	if err != nil {
		d.logger.Error("signal delivery failed",
			slog.String("signal_id", sigID.String()),
			slog.String("instance_id", instanceID.String()),
			slog.String("signal", signalName),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("cascade/signal: deliver %s to %s: %w", signalName, instanceID, err)
	}

	d.logger.Info("signal delivered",
		slog.String("signal_id", sigID.String()),
		slog.String("instance_id", instanceID.String()),
		slog.String("status", string(res.Status)),
	)
	return res, nil
}

// SweepExpired scans waiting instances and fails every one whose wait
// deadline has passed, running its compensation. Returns the number of
// instances expired. Run it periodically from a ticker goroutine.
func (d *Deliverer) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired := 0

	for _, status := range []workflow.Status{workflow.StatusWaitingForSignal, workflow.StatusWaitingForApproval} {
		states, err := d.store.ListStates(ctx, store.ListOpts{Status: status})
		if err != nil {
			return expired, fmt.Errorf("cascade/signal: sweep list %s: %w", status, err)
		}

		for _, st := range states {
			if !st.WaitingSignal.Expired(now) {
				continue
			}
			if err := d.limiter.Wait(ctx); err != nil {
				return expired, err
			}

			if _, err := d.engine.ExpireSignal(ctx, st.ID); err != nil {
				// Another worker may have resumed or expired it first;
				// log and move on.
				d.logger.Warn("sweep skip",
					slog.String("instance_id", st.ID.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			expired++
			d.logger.Info("wait expired",
				slog.String("instance_id", st.ID.String()),
				slog.String("signal", st.WaitingSignal.Name),
			)
		}
	}
	return expired, nil
}
