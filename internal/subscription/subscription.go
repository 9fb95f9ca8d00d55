// Package subscription manages tenant entitlements: grants, revocations,
// and the startup sweep that brings entitled workers back up after a
// process restart.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopmux/shopmux/internal/store"
	"github.com/shopmux/shopmux/internal/supervisor"
)

// WorkerControl is the slice of the supervisor the entitlement flows need.
type WorkerControl interface {
	Start(ctx context.Context, tenantID int64, token string) (supervisor.StartResult, error)
	Stop(ctx context.Context, tenantID int64) (supervisor.StopResult, error)
}

// Service applies entitlement changes and keeps worker state in step with
// them. All collaborators are injected; the service holds no process-wide
// state.
type Service struct {
	store  store.Store
	sup    WorkerControl
	month  time.Duration
	logger *slog.Logger
}

// New builds a Service. month is the extension unit for grants; zero means
// 30 days.
func New(st store.Store, sup WorkerControl, month time.Duration, logger *slog.Logger) *Service {
	if month <= 0 {
		month = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, sup: sup, month: month, logger: logger}
}

// Grant elevates a tenant for the given number of months, extending from
// the current expiry when one is still in the future. The tenant's worker
// is started when a token is on file; a start failure does not undo the
// grant.
func (s *Service) Grant(ctx context.Context, tenantID int64, months int) (*store.Profile, error) {
	if months <= 0 {
		return nil, fmt.Errorf("grant months must be positive, got %d", months)
	}
	p, err := s.store.GetProfile(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	base := time.Now().UTC()
	if p.Expiry != nil && p.Expiry.After(base) {
		base = p.Expiry.UTC()
	}
	expiry := base.Add(time.Duration(months) * s.month)

	if err := s.store.SetEntitlement(ctx, tenantID, store.TierElevated, &expiry); err != nil {
		return nil, err
	}
	s.logger.Info("entitlement granted", "tenant", tenantID, "months", months, "expiry", expiry)

	if p.WorkerToken != "" {
		if _, err := s.sup.Start(ctx, tenantID, p.WorkerToken); err != nil {
			s.logger.Error("worker start after grant failed", "tenant", tenantID, "error", err)
		}
	}
	return s.store.GetProfile(ctx, tenantID)
}

// Revoke drops a tenant to the standard tier and stops their worker.
// Already-standard tenants and tenants without a running worker are fine.
func (s *Service) Revoke(ctx context.Context, tenantID int64) error {
	if err := s.store.SetEntitlement(ctx, tenantID, store.TierStandard, nil); err != nil {
		return err
	}
	s.logger.Info("entitlement revoked", "tenant", tenantID)

	if _, err := s.sup.Stop(ctx, tenantID); err != nil {
		return fmt.Errorf("stop worker after revoke: %w", err)
	}
	return nil
}

// SweepStartup starts workers for every elevated tenant with a token on
// file. Safe against concurrent starters: the supervisor's AlreadyRunning
// outcome makes a repeat attempt a no-op. Per-tenant failures are logged
// and skipped.
func (s *Service) SweepStartup(ctx context.Context) (int, error) {
	profiles, err := s.store.ListElevated(ctx)
	if err != nil {
		return 0, fmt.Errorf("list elevated tenants: %w", err)
	}

	started := 0
	for _, p := range profiles {
		if p.WorkerToken == "" {
			continue
		}
		res, err := s.sup.Start(ctx, p.TenantID, p.WorkerToken)
		if err != nil {
			s.logger.Error("startup sweep: worker start failed", "tenant", p.TenantID, "error", err)
			continue
		}
		if res == supervisor.Started {
			started++
		}
	}
	s.logger.Info("startup sweep complete", "candidates", len(profiles), "started", started)
	return started, nil
}
