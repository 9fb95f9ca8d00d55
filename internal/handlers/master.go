package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/shopmux/shopmux/internal/dispatch"
	"github.com/shopmux/shopmux/internal/store"
	"github.com/shopmux/shopmux/internal/transport"
)

func onMaster(ec *dispatch.EventContext) bool { return ec.Master }

// registerMaster wires the master-surface dashboard: registration,
// deep-link shop browsing, and the home menu.
func registerMaster(r *dispatch.Router, d *Deps) {
	r.Handle(dispatch.All(onMaster, dispatch.Command("start")), d.handleMasterStart)
	r.Handle(dispatch.All(onMaster, dispatch.Command("help")), d.handleMasterHome)
	r.Handle(dispatch.All(onMaster, dispatch.CallbackPrefix("home")), d.handleHomeCallback)
}

// handleMasterStart registers the user on first contact. "/start CODE"
// deep-links into another tenant's catalog instead.
func (d *Deps) handleMasterStart(ctx context.Context, ec *dispatch.EventContext) error {
	if _, err := d.Store.EnsureProfile(ctx, ec.User.ID, ec.User.Username); err != nil {
		d.log().Error("profile registration failed", "user", ec.User.ID, "error", err)
		return ec.Reply(ctx, msgStoreDown)
	}

	args := dispatch.CommandArgs(ec.Text())
	if len(args) > 0 {
		return d.openShopByCode(ctx, ec, args[0])
	}
	return d.sendHome(ctx, ec, 0)
}

func (d *Deps) openShopByCode(ctx context.Context, ec *dispatch.EventContext, code string) error {
	seller, err := d.Store.GetProfileByShopCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, store.ErrNotFound) {
		return ec.Reply(ctx, msgShopNotFound)
	}
	if err != nil {
		d.log().Error("shop code lookup failed", "code", code, "error", err)
		return ec.Reply(ctx, msgStoreDown)
	}
	return d.sendCatalog(ctx, ec, seller.TenantID, "")
}

func (d *Deps) handleMasterHome(ctx context.Context, ec *dispatch.EventContext) error {
	return d.sendHome(ctx, ec, 0)
}

func (d *Deps) handleHomeCallback(ctx context.Context, ec *dispatch.EventContext) error {
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	return d.sendHome(ctx, ec, ec.Event.Callback.Message.ID)
}

func (d *Deps) sendHome(ctx context.Context, ec *dispatch.EventContext, editID int64) error {
	buttons := [][]transport.Button{
		{{Text: "🛍 My Shop", Data: "admin:shop"}},
		{{Text: "⚙️ Settings", Data: "set:menu"}, {Text: "🔗 Shop Link", Data: "set:link"}},
		{{Text: "⭐ Upgrade to Pro", Data: "upgrade:menu"}},
	}
	return ec.Session.Send(ctx, &transport.Outbound{
		ChatID:        ec.ChatID(),
		Text:          msgWelcome,
		Buttons:       buttons,
		EditMessageID: editID,
	})
}
