package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopmux/shopmux/internal/dispatch"
	"github.com/shopmux/shopmux/internal/store"
)

// registerSysadmin wires the platform-operator commands. They only exist
// on the master surface and only for configured admin ids; everyone else
// falls through to the lower routers as if the commands didn't exist.
func registerSysadmin(r *dispatch.Router, d *Deps) {
	gate := func(pred dispatch.Predicate) dispatch.Predicate {
		return dispatch.All(pred, func(ec *dispatch.EventContext) bool {
			return ec.Master && ec.User != nil && d.isAdmin(ec.User.ID)
		})
	}

	r.Handle(gate(dispatch.Command("master")), d.handleMasterStats)
	r.Handle(gate(dispatch.Command("grantpro")), d.handleGrant)
	r.Handle(gate(dispatch.Command("revokepro")), d.handleRevoke)
	r.Handle(gate(dispatch.Command("userinfo")), d.handleUserInfo)
	r.Handle(gate(dispatch.Command("listpro")), d.handleListTier(store.TierElevated))
	r.Handle(gate(dispatch.Command("listfree")), d.handleListTier(store.TierStandard))
}

func (d *Deps) handleMasterStats(ctx context.Context, ec *dispatch.EventContext) error {
	stats, err := d.Store.Stats(ctx)
	if err != nil {
		return err
	}
	return ec.Reply(ctx, fmt.Sprintf(
		"📊 Platform\n\nTenants: %d (pro %d / free %d)\nProducts: %d\nOrders: %d",
		stats.TotalTenants, stats.ElevatedTenants, stats.StandardTenants,
		stats.TotalProducts, stats.TotalOrders))
}

func parseTenantArg(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	return id, err == nil && id > 0
}

func (d *Deps) handleGrant(ctx context.Context, ec *dispatch.EventContext) error {
	args := dispatch.CommandArgs(ec.Text())
	tenantID, ok := parseTenantArg(args)
	if !ok {
		return ec.Reply(ctx, "Usage: /grantpro <user_id> [months]")
	}
	months := 1
	if len(args) > 1 {
		if m, err := strconv.Atoi(args[1]); err == nil && m > 0 {
			months = m
		}
	}

	p, err := d.Subs.Grant(ctx, tenantID, months)
	if errors.Is(err, store.ErrNotFound) {
		return ec.Reply(ctx, fmt.Sprintf("No profile for user %d — they need to /start first.", tenantID))
	}
	if err != nil {
		return err
	}

	// Best effort: the user may have blocked the bot.
	if err := ec.SendTo(ctx, tenantID, fmt.Sprintf(msgGranted, p.Expiry.Format("2 Jan 2006"))); err != nil {
		d.log().Warn("grant notification failed", "tenant", tenantID, "error", err)
	}
	return ec.Reply(ctx, fmt.Sprintf("Granted %d month(s) to %d, active until %s.",
		months, tenantID, p.Expiry.Format(time.RFC1123)))
}

func (d *Deps) handleRevoke(ctx context.Context, ec *dispatch.EventContext) error {
	tenantID, ok := parseTenantArg(dispatch.CommandArgs(ec.Text()))
	if !ok {
		return ec.Reply(ctx, "Usage: /revokepro <user_id>")
	}
	if err := d.Subs.Revoke(ctx, tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ec.Reply(ctx, fmt.Sprintf("No profile for user %d.", tenantID))
		}
		return err
	}
	if err := ec.SendTo(ctx, tenantID, msgRevoked); err != nil {
		d.log().Warn("revoke notification failed", "tenant", tenantID, "error", err)
	}
	return ec.Reply(ctx, fmt.Sprintf("Revoked pro for %d.", tenantID))
}

func (d *Deps) handleUserInfo(ctx context.Context, ec *dispatch.EventContext) error {
	tenantID, ok := parseTenantArg(dispatch.CommandArgs(ec.Text()))
	if !ok {
		return ec.Reply(ctx, "Usage: /userinfo <user_id>")
	}
	p, err := d.Store.GetProfile(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return ec.Reply(ctx, fmt.Sprintf("No profile for user %d.", tenantID))
	}
	if err != nil {
		return err
	}

	products, err := d.Store.CountProducts(ctx, tenantID)
	if err != nil {
		return err
	}
	expiry := "—"
	if p.Expiry != nil {
		expiry = p.Expiry.Format(time.RFC1123)
	}
	worker := "not running"
	if st := d.Workers.Status(tenantID); st.Running {
		worker = fmt.Sprintf("@%s since %s", st.Identity.Username, st.Since.Format(time.RFC1123))
	}
	token := "not set"
	if p.WorkerToken != "" {
		token = "set"
	}
	return ec.Reply(ctx, fmt.Sprintf(
		"👤 %d (@%s)\nTier: %s\nExpiry: %s\nShop code: %s\nProducts: %d\nBot token: %s\nWorker: %s",
		p.TenantID, p.Username, p.Tier, expiry, p.ShopCode, products, token, worker))
}

func (d *Deps) handleListTier(tier string) dispatch.Handler {
	return func(ctx context.Context, ec *dispatch.EventContext) error {
		profiles, err := d.Store.ListByTier(ctx, tier)
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			return ec.Reply(ctx, "No tenants on this tier.")
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s tenants (%d):\n", tier, len(profiles))
		for _, p := range profiles {
			fmt.Fprintf(&b, "• %d @%s", p.TenantID, p.Username)
			if p.Expiry != nil {
				fmt.Fprintf(&b, " — until %s", p.Expiry.Format("2 Jan 2006"))
			}
			b.WriteString("\n")
		}
		return ec.Reply(ctx, strings.TrimRight(b.String(), "\n"))
	}
}
