// Package handlers is the shared dispatch tree content: every command,
// callback and conversation step served on the master surface and on
// tenant workers. Registration order is the routing precedence and lives
// in one place, Register.
package handlers

import (
	"context"
	"log/slog"

	"github.com/shopmux/shopmux/internal/dispatch"
	"github.com/shopmux/shopmux/internal/store"
	"github.com/shopmux/shopmux/internal/supervisor"
	"github.com/shopmux/shopmux/internal/transport"
)

// Workers is the slice of the supervisor the handlers drive. Restart covers
// first-time provisioning too; handlers never call Start directly.
type Workers interface {
	Restart(ctx context.Context, tenantID int64, token string) error
	Status(tenantID int64) supervisor.WorkerStatus
}

// Entitlements is the slice of the subscription service the sysadmin
// commands drive.
type Entitlements interface {
	Grant(ctx context.Context, tenantID int64, months int) (*store.Profile, error)
	Revoke(ctx context.Context, tenantID int64) error
}

// Deps carries everything the handler set needs. All collaborators are
// injected; handlers keep no state of their own beyond the form store
// inside the tree.
type Deps struct {
	Store    store.Store
	Workers  Workers
	Subs     Entitlements
	Opener   transport.Opener
	AdminIDs []int64
	// FreeLimit is the product cap for standard-tier shops.
	FreeLimit int
	// MasterUsername builds public deep links (t.me/<master>?start=CODE).
	MasterUsername string
	Logger         *slog.Logger
}

func (d *Deps) isAdmin(userID int64) bool {
	for _, id := range d.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (d *Deps) log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Register wires the full handler set into tree. The call order below IS
// the precedence order; nothing else decides which router sees an event
// first.
func Register(tree *dispatch.Tree, d *Deps) {
	registerSysadmin(tree.Router("sysadmin"), d)
	registerShopAdmin(tree.Router("shopadmin"), d)
	registerSettings(tree.Router("settings"), d)
	registerPayment(tree.Router("payment"), d)
	registerMaster(tree.Router("master"), d)
	registerCustomer(tree.Router("customer"), d)
}
