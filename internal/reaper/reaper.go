// Package reaper downgrades tenants whose entitlement expiry has passed
// and tears down their workers. It runs as a fixed-interval background
// loop; a single pass is exported for tests and manual runs.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shopmux/shopmux/internal/store"
	"github.com/shopmux/shopmux/internal/supervisor"
)

// WorkerStopper is the slice of the supervisor the reaper needs.
type WorkerStopper interface {
	Stop(ctx context.Context, tenantID int64) (supervisor.StopResult, error)
}

// Observer receives downgrade notifications. Nil is valid.
type Observer interface {
	TenantDowngraded(tenantID int64)
}

// PassStats summarizes one reaper pass.
type PassStats struct {
	Scanned    int
	Downgraded int
	Errors     int
}

// Reaper sweeps elevated tenants on a fixed interval.
type Reaper struct {
	store    store.Store
	sup      WorkerStopper
	observer Observer
	interval time.Duration
	logger   *slog.Logger
}

// New builds a Reaper. interval zero means 24h.
func New(st store.Store, sup WorkerStopper, observer Observer, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{store: st, sup: sup, observer: observer, interval: interval, logger: logger}
}

// Run executes passes until ctx is cancelled. The first pass runs
// immediately so a long interval never delays overdue downgrades across a
// process restart.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper running", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunPass(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case now := <-ticker.C:
			r.RunPass(ctx, now.UTC())
		}
	}
}

// RunPass scans all elevated tenants once, using now as the observation
// instant for every expiry comparison in the pass. One tenant's failure
// never aborts the rest.
//
// The downgrade is the idempotency guard: it only fires while the tenant is
// still elevated with an expiry before now, so a pass replayed against an
// already-downgraded tenant does nothing, a concurrent manual revoke cannot
// double-fire the observer, and a grant extending the expiry mid-pass wins.
func (r *Reaper) RunPass(ctx context.Context, now time.Time) PassStats {
	stats := PassStats{}
	pass := uuid.NewString()[:8]

	profiles, err := r.store.ListElevated(ctx)
	if err != nil {
		r.logger.Error("reaper: list elevated tenants failed", "pass", pass, "error", err)
		stats.Errors++
		return stats
	}
	stats.Scanned = len(profiles)

	for _, p := range profiles {
		if p.Expiry == nil || !p.Expiry.Before(now) {
			continue
		}
		if err := r.reap(ctx, p.TenantID, now); err != nil {
			r.logger.Error("reaper: downgrade failed", "pass", pass, "tenant", p.TenantID, "error", err)
			stats.Errors++
			continue
		}
		stats.Downgraded++
	}

	if stats.Downgraded > 0 || stats.Errors > 0 {
		r.logger.Info("reaper pass done", "pass", pass,
			"scanned", stats.Scanned, "downgraded", stats.Downgraded, "errors", stats.Errors)
	}
	return stats
}

func (r *Reaper) reap(ctx context.Context, tenantID int64, now time.Time) error {
	changed, err := r.store.DowngradeExpired(ctx, tenantID, now)
	if err != nil {
		return err
	}
	if !changed {
		// Someone else downgraded, or a grant pushed the expiry past the
		// pass instant, between the scan and now.
		return nil
	}

	r.logger.Info("entitlement expired", "tenant", tenantID)
	if _, err := r.sup.Stop(ctx, tenantID); err != nil {
		// The downgrade stands; the stuck worker is the supervisor's loud
		// failure to surface.
		return err
	}
	if r.observer != nil {
		r.observer.TenantDowngraded(tenantID)
	}
	return nil
}
