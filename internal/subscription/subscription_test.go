package subscription

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopmux/shopmux/internal/store"
	"github.com/shopmux/shopmux/internal/supervisor"
)

type fakeControl struct {
	mu       sync.Mutex
	running  map[int64]bool
	startErr error
	starts   []int64
	stops    []int64
}

func newFakeControl() *fakeControl {
	return &fakeControl{running: map[int64]bool{}}
}

func (f *fakeControl) Start(ctx context.Context, tenantID int64, token string) (supervisor.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return 0, f.startErr
	}
	if f.running[tenantID] {
		return supervisor.AlreadyRunning, nil
	}
	f.running[tenantID] = true
	f.starts = append(f.starts, tenantID)
	return supervisor.Started, nil
}

func (f *fakeControl) Stop(ctx context.Context, tenantID int64) (supervisor.StopResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[tenantID] {
		return supervisor.NotRunning, nil
	}
	delete(f.running, tenantID)
	f.stops = append(f.stops, tenantID)
	return supervisor.Stopped, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

const month = 30 * 24 * time.Hour

func TestGrantElevatesAndStartsWorker(t *testing.T) {
	st := newTestStore(t)
	ctrl := newFakeControl()
	svc := New(st, ctrl, month, slog.Default())
	ctx := context.Background()

	if _, err := st.EnsureProfile(ctx, 7, "alice"); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	if err := st.SetWorkerToken(ctx, 7, "worker-token"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	p, err := svc.Grant(ctx, 7, 2)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !p.Elevated() {
		t.Fatal("expected elevated tier after grant")
	}
	if p.Expiry == nil {
		t.Fatal("expected expiry after grant")
	}
	want := time.Now().UTC().Add(2 * month)
	if d := p.Expiry.Sub(want); d < -time.Minute || d > time.Minute {
		t.Fatalf("expiry %v not near %v", p.Expiry, want)
	}
	if len(ctrl.starts) != 1 || ctrl.starts[0] != 7 {
		t.Fatalf("expected worker start for tenant 7, got %v", ctrl.starts)
	}
}

func TestGrantExtendsFutureExpiry(t *testing.T) {
	st := newTestStore(t)
	svc := New(st, newFakeControl(), month, slog.Default())
	ctx := context.Background()

	if _, err := st.EnsureProfile(ctx, 7, "alice"); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	future := time.Now().UTC().Add(10 * 24 * time.Hour)
	if err := st.SetEntitlement(ctx, 7, store.TierElevated, &future); err != nil {
		t.Fatalf("set entitlement: %v", err)
	}

	p, err := svc.Grant(ctx, 7, 1)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	want := future.Add(month)
	if d := p.Expiry.Sub(want); d < -time.Minute || d > time.Minute {
		t.Fatalf("expected extension from prior expiry, got %v want %v", p.Expiry, want)
	}
}

func TestGrantMissingProfile(t *testing.T) {
	st := newTestStore(t)
	svc := New(st, newFakeControl(), month, slog.Default())

	if _, err := svc.Grant(context.Background(), 99, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestRevokeStopsWorkerAndClearsExpiry(t *testing.T) {
	st := newTestStore(t)
	ctrl := newFakeControl()
	svc := New(st, ctrl, month, slog.Default())
	ctx := context.Background()

	if _, err := st.EnsureProfile(ctx, 7, "alice"); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	if err := st.SetWorkerToken(ctx, 7, "worker-token"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if _, err := svc.Grant(ctx, 7, 1); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := svc.Revoke(ctx, 7); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	p, err := st.GetProfile(ctx, 7)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.Elevated() || p.Expiry != nil {
		t.Fatalf("expected standard tier with no expiry, got %+v", p)
	}
	if len(ctrl.stops) != 1 || ctrl.stops[0] != 7 {
		t.Fatalf("expected worker stop for tenant 7, got %v", ctrl.stops)
	}
}

func TestRevokeIdleTenantIsBenign(t *testing.T) {
	st := newTestStore(t)
	svc := New(st, newFakeControl(), month, slog.Default())
	ctx := context.Background()

	if _, err := st.EnsureProfile(ctx, 7, "alice"); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	if err := svc.Revoke(ctx, 7); err != nil {
		t.Fatalf("revoke idle tenant: %v", err)
	}
}

func TestSweepStartup(t *testing.T) {
	st := newTestStore(t)
	ctrl := newFakeControl()
	svc := New(st, ctrl, month, slog.Default())
	ctx := context.Background()

	expiry := time.Now().UTC().Add(month)
	seed := []struct {
		id       int64
		tier     string
		token    string
		prestart bool
	}{
		{1, store.TierElevated, "token-1", false},
		{2, store.TierElevated, "token-2", true}, // already running
		{3, store.TierElevated, "", false},       // no token yet
		{4, store.TierStandard, "token-4", false},
	}
	for _, s := range seed {
		if _, err := st.EnsureProfile(ctx, s.id, "user"); err != nil {
			t.Fatalf("ensure profile: %v", err)
		}
		if s.token != "" {
			if err := st.SetWorkerToken(ctx, s.id, s.token); err != nil {
				t.Fatalf("set token: %v", err)
			}
		}
		if s.tier == store.TierElevated {
			if err := st.SetEntitlement(ctx, s.id, s.tier, &expiry); err != nil {
				t.Fatalf("set entitlement: %v", err)
			}
		}
		if s.prestart {
			ctrl.running[s.id] = true
		}
	}

	started, err := svc.SweepStartup(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if started != 1 {
		t.Fatalf("expected 1 fresh start, got %d", started)
	}
	if len(ctrl.starts) != 1 || ctrl.starts[0] != 1 {
		t.Fatalf("unexpected starts %v", ctrl.starts)
	}
}
