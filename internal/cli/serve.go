package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopmux/shopmux/internal/alerts"
	"github.com/shopmux/shopmux/internal/config"
	"github.com/shopmux/shopmux/internal/directory"
	"github.com/shopmux/shopmux/internal/dispatch"
	"github.com/shopmux/shopmux/internal/events"
	"github.com/shopmux/shopmux/internal/handlers"
	"github.com/shopmux/shopmux/internal/health"
	"github.com/shopmux/shopmux/internal/reaper"
	"github.com/shopmux/shopmux/internal/store"
	"github.com/shopmux/shopmux/internal/subscription"
	"github.com/shopmux/shopmux/internal/supervisor"
	"github.com/shopmux/shopmux/internal/telegram"
	"github.com/shopmux/shopmux/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the master bot and all tenant workers",
	RunE:  runServe,
}

var serveSignalNotify = signal.Notify
var serveSignalStop = signal.Stop

// lifecycleFan forwards worker transitions to the lifecycle topic and, for
// failures, to the ops channel. Supervisor callbacks must not block, so
// everything fans out on goroutines.
type lifecycleFan struct {
	alerts *alerts.Notifier
	events *events.Publisher
}

func (l *lifecycleFan) WorkerStarted(tenantID int64, identity transport.Identity) {
	go l.events.Publish(context.Background(), events.Record{
		Type:     events.TypeWorkerStarted,
		TenantID: tenantID,
		Detail:   identity.Username,
	})
}

func (l *lifecycleFan) WorkerStopped(tenantID int64, reason string) {
	go func() {
		ctx := context.Background()
		l.events.Publish(ctx, events.Record{
			Type:     events.TypeWorkerStopped,
			TenantID: tenantID,
			Detail:   reason,
		})
		if reason == "failed" {
			l.alerts.Notify(ctx, fmt.Sprintf("⚠️ shopmux: worker for tenant %d crashed", tenantID))
		}
	}()
}

func (l *lifecycleFan) TenantDowngraded(tenantID int64) {
	go func() {
		ctx := context.Background()
		l.events.Publish(ctx, events.Record{
			Type:     events.TypeTenantDowngraded,
			TenantID: tenantID,
		})
		l.alerts.Notify(ctx, fmt.Sprintf("shopmux: tenant %d downgraded, subscription expired", tenantID))
	}()
}

func runServe(cmd *cobra.Command, args []string) error {
	printHeader("🛍 ShopMux")
	fmt.Println("Starting ShopMux...")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := config.EnsureDir(filepath.Dir(cfg.Store.Path)); err != nil {
		return fmt.Errorf("store dir: %w", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	fmt.Printf("💾 Store: %s\n", cfg.Store.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opener := telegram.NewOpener(cfg.Master.APIBase, cfg.Master.PollTimeout)
	masterID, err := opener.Validate(ctx, cfg.Master.Token)
	if err != nil {
		return fmt.Errorf("master token: %w", err)
	}
	fmt.Printf("🤖 Master bot: @%s\n", masterID.Username)

	var publisher *events.Publisher
	if cfg.Events.Enabled {
		if publisher = events.New(cfg.Events.Brokers, cfg.Events.Topic, logger); publisher != nil {
			defer publisher.Close()
			fmt.Printf("📡 Lifecycle events → %s (%s)\n", cfg.Events.Topic, cfg.Events.Brokers)
		}
	}
	var notifier *alerts.Notifier
	if cfg.Alerts.Enabled {
		if notifier = alerts.New(cfg.Alerts.SlackToken, cfg.Alerts.SlackChannel, logger); notifier != nil {
			fmt.Printf("🔔 Ops alerts → %s\n", cfg.Alerts.SlackChannel)
		}
	}
	fan := &lifecycleFan{alerts: notifier, events: publisher}

	tree := dispatch.NewTree(dispatch.NewResolver(directory.New(st)), logger)
	sup := supervisor.New(opener, tree, logger, supervisor.Options{
		StopTimeout:  cfg.Supervisor.StopTimeout,
		RestartDelay: cfg.Supervisor.RestartDelay,
		Lifecycle:    fan,
	})
	subs := subscription.New(st, sup, cfg.Limits.GrantMonth, logger)

	handlers.Register(tree, &handlers.Deps{
		Store:          st,
		Workers:        sup,
		Subs:           subs,
		Opener:         opener,
		AdminIDs:       cfg.Master.AdminIDs,
		FreeLimit:      cfg.Limits.FreeProducts,
		MasterUsername: masterID.Username,
		Logger:         logger,
	})

	sigChan := make(chan os.Signal, 1)
	serveSignalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer serveSignalStop(sigChan)

	// Bring back workers for tenants that are still entitled to one.
	restored, err := subs.SweepStartup(ctx)
	if err != nil {
		return fmt.Errorf("startup sweep: %w", err)
	}
	fmt.Printf("👷 Restored %d tenant worker(s)\n", restored)

	if cfg.Reaper.Enabled {
		go reaper.New(st, sup, fan, cfg.Reaper.Interval, logger).Run(ctx)
	}
	if cfg.Health.Enabled {
		hs := health.New(cfg.Health.Host, cfg.Health.Port, version, sup.Running, logger)
		go func() {
			if err := hs.Run(ctx); err != nil {
				logger.Error("health server stopped", "error", err)
			}
		}()
		fmt.Printf("❤️ Health endpoint: http://%s:%d/healthz\n", cfg.Health.Host, cfg.Health.Port)
	}

	masterSess, err := opener.Open(ctx, cfg.Master.Token)
	if err != nil {
		return fmt.Errorf("open master session: %w", err)
	}
	if err := masterSess.DiscardPending(ctx); err != nil {
		logger.Warn("master backlog discard failed", "error", err)
	}
	pump := dispatch.NewPump(tree, masterSess, cfg.Master.Token, logger)
	pumpDone := make(chan error, 1)
	go func() { pumpDone <- pump.Run(ctx) }()

	fmt.Println("✅ ShopMux is running. Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-sigChan:
		fmt.Println("\n🛑 Shutting down...")
		cancel()
		// Let an in-flight master handler finish before the session goes away.
		<-pumpDone
	case runErr = <-pumpDone:
		if runErr != nil {
			fmt.Printf("Master pump failed: %v\n", runErr)
		}
		cancel()
	}

	_ = masterSess.Close()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Supervisor.StopTimeout)
	defer stopCancel()
	if err := sup.StopAll(stopCtx); err != nil {
		logger.Error("worker shutdown incomplete", "error", err)
	}
	fmt.Println("👋 Stopped.")
	return runErr
}
