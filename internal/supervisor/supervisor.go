// Package supervisor owns the lifecycle of per-tenant worker bots: at most
// one live worker per tenant, started and stopped on demand, torn down
// together at shutdown.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopmux/shopmux/internal/dispatch"
	"github.com/shopmux/shopmux/internal/transport"
)

// StartResult reports the outcome of Start. AlreadyRunning is a benign
// idempotency outcome, not a failure.
type StartResult int

const (
	Started StartResult = iota
	AlreadyRunning
)

// StopResult reports the outcome of Stop. NotRunning is benign.
type StopResult int

const (
	Stopped StopResult = iota
	NotRunning
)

// CancellationTimeoutError reports a worker that did not exit within the
// stop timeout. The registry entry is kept so the tenant stays marked busy;
// the operator retries the stop.
type CancellationTimeoutError struct {
	TenantID int64
	Timeout  time.Duration
}

func (e *CancellationTimeoutError) Error() string {
	return fmt.Sprintf("supervisor: worker %d did not exit within %v", e.TenantID, e.Timeout)
}

// Lifecycle receives worker state transitions. Implementations must not
// block; nil is a valid value everywhere a Lifecycle is accepted.
type Lifecycle interface {
	WorkerStarted(tenantID int64, identity transport.Identity)
	WorkerStopped(tenantID int64, reason string)
}

// WorkerStatus is a point-in-time view of one tenant's worker.
type WorkerStatus struct {
	TenantID int64
	Running  bool
	Identity transport.Identity
	Since    time.Time
}

type worker struct {
	tenantID int64
	token    string
	sess     transport.Session
	identity transport.Identity
	cancel   context.CancelFunc
	done     chan struct{}
	started  time.Time
	// stopping is set (under regMu) by a cooperative stop so the worker
	// goroutine does not mistake the exit for a crash.
	stopping bool
}

// Supervisor is safe for concurrent use. Operations on the same tenant
// serialize on a per-tenant lock; operations on different tenants never
// block each other.
type Supervisor struct {
	opener       transport.Opener
	tree         *dispatch.Tree
	logger       *slog.Logger
	lifecycle    Lifecycle
	stopTimeout  time.Duration
	restartDelay time.Duration

	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex

	regMu   sync.Mutex
	workers map[int64]*worker
}

// Options tune supervisor behavior.
type Options struct {
	// StopTimeout bounds how long Stop waits for worker exit. Zero means
	// 10s.
	StopTimeout time.Duration
	// RestartDelay is the pause between the stop and start halves of
	// Restart. Zero means 1s.
	RestartDelay time.Duration
	// Lifecycle receives transitions; may be nil.
	Lifecycle Lifecycle
}

// New builds a Supervisor dispatching worker traffic into tree.
func New(opener transport.Opener, tree *dispatch.Tree, logger *slog.Logger, opts Options) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = time.Second
	}
	return &Supervisor{
		opener:       opener,
		tree:         tree,
		logger:       logger,
		lifecycle:    opts.Lifecycle,
		stopTimeout:  opts.StopTimeout,
		restartDelay: opts.RestartDelay,
		locks:        make(map[int64]*sync.Mutex),
		workers:      make(map[int64]*worker),
	}
}

func (s *Supervisor) tenantLock(tenantID int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.locks[tenantID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[tenantID] = mu
	}
	return mu
}

// Start brings up a worker for the tenant on the given token. Returns
// AlreadyRunning without touching anything when a worker already exists.
// A failed open leaves no trace in the registry.
func (s *Supervisor) Start(ctx context.Context, tenantID int64, token string) (StartResult, error) {
	mu := s.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	return s.startLocked(ctx, tenantID, token)
}

func (s *Supervisor) startLocked(ctx context.Context, tenantID int64, token string) (StartResult, error) {
	if s.lookup(tenantID) != nil {
		return AlreadyRunning, nil
	}

	sess, err := s.opener.Open(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("open worker session for tenant %d: %w", tenantID, err)
	}
	if err := sess.DiscardPending(ctx); err != nil {
		sess.Close()
		return 0, fmt.Errorf("discard backlog for tenant %d: %w", tenantID, err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		tenantID: tenantID,
		token:    token,
		sess:     sess,
		identity: sess.Identity(),
		cancel:   cancel,
		done:     make(chan struct{}),
		started:  time.Now().UTC(),
	}

	pump := dispatch.NewPump(s.tree, sess, token, s.logger)

	// Register before the goroutine runs: an instantly failing pump must
	// find the record, or its crash cleanup would skip and leave a stale
	// entry behind.
	s.regMu.Lock()
	s.workers[tenantID] = w
	s.regMu.Unlock()
	go s.run(wctx, w, pump)

	s.logger.Info("worker started", "tenant", tenantID, "bot", w.identity.Username)
	if s.lifecycle != nil {
		s.lifecycle.WorkerStarted(tenantID, w.identity)
	}
	return Started, nil
}

func (s *Supervisor) run(ctx context.Context, w *worker, pump *dispatch.Pump) {
	defer close(w.done)
	err := pump.Run(ctx)

	// Cooperative stop flags the worker before cancelling; anything still
	// registered and unflagged here is a worker that died on its own.
	s.regMu.Lock()
	crashed := s.workers[w.tenantID] == w && !w.stopping
	if crashed {
		delete(s.workers, w.tenantID)
	}
	s.regMu.Unlock()

	if crashed {
		w.sess.Close()
		if err != nil {
			s.logger.Error("worker failed", "tenant", w.tenantID, "error", err)
		} else {
			s.logger.Warn("worker exited unexpectedly", "tenant", w.tenantID)
		}
		if s.lifecycle != nil {
			s.lifecycle.WorkerStopped(w.tenantID, "failed")
		}
	}
}

// Stop tears down the tenant's worker: cancel, wait for the goroutine to
// exit, then release the session. Returns NotRunning when there is nothing
// to stop. A worker that outlives the stop timeout stays registered and the
// call fails loudly.
func (s *Supervisor) Stop(ctx context.Context, tenantID int64) (StopResult, error) {
	mu := s.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()
	return s.stopLocked(ctx, tenantID, "stopped")
}

func (s *Supervisor) stopLocked(ctx context.Context, tenantID int64, reason string) (StopResult, error) {
	w := s.lookup(tenantID)
	if w == nil {
		return NotRunning, nil
	}

	// Cancellation is cooperative: the pump sees it at the receive boundary,
	// so a handler already in flight finishes before done closes. The session
	// stays open until then so that handler can still send.
	s.regMu.Lock()
	w.stopping = true
	s.regMu.Unlock()
	w.cancel()

	select {
	case <-w.done:
	case <-time.After(s.stopTimeout):
		return 0, &CancellationTimeoutError{TenantID: tenantID, Timeout: s.stopTimeout}
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	w.sess.Close()

	s.regMu.Lock()
	if s.workers[tenantID] == w {
		delete(s.workers, tenantID)
	}
	s.regMu.Unlock()

	s.logger.Info("worker stopped", "tenant", tenantID, "reason", reason)
	if s.lifecycle != nil {
		s.lifecycle.WorkerStopped(tenantID, reason)
	}
	return Stopped, nil
}

// Restart stops then starts the tenant's worker. A tenant with no running
// worker just gets a fresh start.
func (s *Supervisor) Restart(ctx context.Context, tenantID int64, token string) error {
	mu := s.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	res, err := s.stopLocked(ctx, tenantID, "restarting")
	if err != nil {
		return err
	}
	if res == Stopped {
		select {
		case <-time.After(s.restartDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Start inline under the held lock; calling Start would self-deadlock.
	_, err = s.startLocked(ctx, tenantID, token)
	return err
}

func (s *Supervisor) lookup(tenantID int64) *worker {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	return s.workers[tenantID]
}

// Status reports the tenant's worker state without touching the platform.
func (s *Supervisor) Status(tenantID int64) WorkerStatus {
	w := s.lookup(tenantID)
	if w == nil {
		return WorkerStatus{TenantID: tenantID}
	}
	return WorkerStatus{TenantID: tenantID, Running: true, Identity: w.identity, Since: w.started}
}

// Running returns the number of live workers.
func (s *Supervisor) Running() int {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	return len(s.workers)
}

// TenantIDs lists tenants with live workers, sorted for stable output.
func (s *Supervisor) TenantIDs() []int64 {
	s.regMu.Lock()
	ids := make([]int64, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.regMu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// StopAll stops every worker, continuing past per-tenant failures and
// returning the first error encountered.
func (s *Supervisor) StopAll(ctx context.Context) error {
	var firstErr error
	for _, tenantID := range s.TenantIDs() {
		if _, err := s.Stop(ctx, tenantID); err != nil {
			s.logger.Error("stop worker failed", "tenant", tenantID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
