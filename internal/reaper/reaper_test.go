package reaper

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

type fakeStopper struct {
	mu      sync.Mutex
	stops   []int64
	failFor map[int64]error
}

func (f *fakeStopper) Stop(ctx context.Context, tenantID int64) (supervisor.StopResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[tenantID]; err != nil {
		return 0, err
	}
	f.stops = append(f.stops, tenantID)
	return supervisor.Stopped, nil
}

type fakeObserver struct {
	mu         sync.Mutex
	downgraded []int64
}

func (f *fakeObserver) TenantDowngraded(tenantID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downgraded = append(f.downgraded, tenantID)
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

func seedElevated(t *testing.T, st store.Store, tenantID int64, expiry *time.Time) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.EnsureProfile(ctx, tenantID, "user"); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	if err := st.SetEntitlement(ctx, tenantID, store.TierElevated, expiry); err != nil {
		t.Fatalf("set entitlement: %v", err)
	}
}

func TestPassDowngradesExpired(t *testing.T) {
	st := newTestStore(t)
	stopper := &fakeStopper{}
	observer := &fakeObserver{}
	r := New(st, stopper, observer, time.Hour, slog.Default())

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	seedElevated(t, st, 1, &past)
	seedElevated(t, st, 2, &future)
	seedElevated(t, st, 3, nil) // elevated with no expiry never reaps

	stats := r.RunPass(context.Background(), now)
	if stats.Scanned != 3 || stats.Downgraded != 1 || stats.Errors != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	p1, _ := st.GetProfile(context.Background(), 1)
	if p1.Elevated() || p1.Expiry != nil {
		t.Fatalf("tenant 1 should be downgraded with cleared expiry, got %+v", p1)
	}
	p2, _ := st.GetProfile(context.Background(), 2)
	if !p2.Elevated() {
		t.Fatal("tenant 2 must stay elevated")
	}
	p3, _ := st.GetProfile(context.Background(), 3)
	if !p3.Elevated() {
		t.Fatal("tenant 3 must stay elevated")
	}

	if len(stopper.stops) != 1 || stopper.stops[0] != 1 {
		t.Fatalf("expected stop for tenant 1 only, got %v", stopper.stops)
	}
	if len(observer.downgraded) != 1 || observer.downgraded[0] != 1 {
		t.Fatalf("expected downgrade notice for tenant 1, got %v", observer.downgraded)
	}
}

func TestExpiryExactlyNowIsNotReaped(t *testing.T) {
	st := newTestStore(t)
	r := New(st, &fakeStopper{}, nil, time.Hour, slog.Default())

	now := time.Now().UTC().Truncate(time.Second)
	seedElevated(t, st, 1, &now)

	stats := r.RunPass(context.Background(), now)
	if stats.Downgraded != 0 {
		t.Fatalf("expiry equal to now must not reap, stats %+v", stats)
	}
}

func TestRepeatedPassIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	observer := &fakeObserver{}
	r := New(st, &fakeStopper{}, observer, time.Hour, slog.Default())

	past := time.Now().UTC().Add(-time.Hour)
	seedElevated(t, st, 1, &past)

	now := time.Now().UTC()
	r.RunPass(context.Background(), now)
	stats := r.RunPass(context.Background(), now)
	if stats.Scanned != 0 || stats.Downgraded != 0 {
		t.Fatalf("second pass should find nothing, stats %+v", stats)
	}
	if len(observer.downgraded) != 1 {
		t.Fatalf("observer fired %d times, want 1", len(observer.downgraded))
	}
}

func TestOneTenantFailureDoesNotAbortPass(t *testing.T) {
	st := newTestStore(t)
	stopper := &fakeStopper{failFor: map[int64]error{1: errors.New("worker stuck")}}
	r := New(st, stopper, nil, time.Hour, slog.Default())

	past := time.Now().UTC().Add(-time.Hour)
	seedElevated(t, st, 1, &past)
	seedElevated(t, st, 2, &past)

	stats := r.RunPass(context.Background(), time.Now().UTC())
	if stats.Downgraded != 1 || stats.Errors != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	// Tenant 2 was still processed.
	if len(stopper.stops) != 1 || stopper.stops[0] != 2 {
		t.Fatalf("expected stop for tenant 2, got %v", stopper.stops)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st := newTestStore(t)
	r := New(st, &fakeStopper{}, nil, 10*time.Millisecond, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop on cancel")
	}
}
