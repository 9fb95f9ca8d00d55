package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/shopmux/shopmux/internal/dispatch"
	"github.com/shopmux/shopmux/internal/store"
	"github.com/shopmux/shopmux/internal/transport"
)

// registerSettings wires shop configuration: payment methods, the tenant's
// own bot token, product migration, and the public shop link.
func registerSettings(r *dispatch.Router, d *Deps) {
	owner := dispatch.Owner()

	r.Handle(dispatch.All(owner, dispatch.Command("settings")), d.handleSettingsCommand)
	r.Handle(dispatch.All(owner, dispatch.CallbackPrefix("set:")), d.handleSettingsCallback)
	r.Handle(dispatch.All(owner, dispatch.CallbackPrefix("pay:")), d.handleWalletStart)
	r.Handle(dispatch.All(owner, dispatch.CallbackPrefix("migrate:")), d.handleMigration)
	r.Handle(dispatch.All(owner, dispatch.FormStep("settings:pay")), d.handleWalletValue)
	r.Handle(dispatch.All(owner, dispatch.FormStep("settings:token")), d.handleTokenValue)
}

func (d *Deps) handleSettingsCommand(ctx context.Context, ec *dispatch.EventContext) error {
	return d.sendSettingsMenu(ctx, ec, false)
}

func (d *Deps) handleSettingsCallback(ctx context.Context, ec *dispatch.EventContext) error {
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	switch dispatch.CallbackArg(ec, "set:") {
	case "menu":
		return d.sendSettingsMenu(ctx, ec, true)
	case "token":
		return d.startTokenForm(ctx, ec)
	case "link":
		return d.sendShopLink(ctx, ec)
	}
	return nil
}

// sendSettingsMenu lists the payment methods the tenant's tier allows.
// Standard shops get the two basic wallets; ETH, SOL and PayPal ride on
// the pro tier.
func (d *Deps) sendSettingsMenu(ctx context.Context, ec *dispatch.EventContext, edit bool) error {
	p, err := d.ownProfile(ctx, ec)
	if err != nil {
		return err
	}

	fields := []string{store.PayBTC, store.PayLTC}
	if p.Elevated() {
		fields = append(fields, store.PayETH, store.PaySOL, store.PayPayPal)
	}
	var buttons [][]transport.Button
	for _, field := range fields {
		label := paymentLabel(field)
		if p.PaymentMethod(field) != "" {
			label += " ✓"
		}
		buttons = append(buttons, []transport.Button{{Text: "💳 " + label, Data: "pay:" + field}})
	}
	buttons = append(buttons, []transport.Button{{Text: "🤖 Bot token", Data: "set:token"}})
	if ec.Master {
		buttons = append(buttons, []transport.Button{{Text: "⬅️ Back", Data: "home"}})
	}

	text := "⚙️ Settings\n\nTap a payment method to set it."
	if edit {
		return ec.Edit(ctx, text, buttons)
	}
	return ec.ReplyButtons(ctx, text, buttons)
}

// ---------------------------------------------------------------------------
// Payment methods
// ---------------------------------------------------------------------------

func (d *Deps) handleWalletStart(ctx context.Context, ec *dispatch.EventContext) error {
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	field := dispatch.CallbackArg(ec, "pay:")
	switch field {
	case store.PayBTC, store.PayLTC, store.PayETH, store.PaySOL, store.PayPayPal:
	default:
		return nil
	}
	form := ec.StartForm("settings:pay")
	form.Data["field"] = field
	if field == store.PayPayPal {
		return ec.Reply(ctx, msgAskPayPal)
	}
	return ec.Reply(ctx, fmt.Sprintf(msgAskWallet, paymentLabel(field)))
}

func (d *Deps) handleWalletValue(ctx context.Context, ec *dispatch.EventContext) error {
	field := ec.Form().Data["field"]
	value := strings.TrimSpace(ec.Text())
	if !validPayment(field, value) {
		if field == store.PayPayPal {
			return ec.Reply(ctx, msgBadEmail)
		}
		return ec.Reply(ctx, fmt.Sprintf(msgBadWallet, paymentLabel(field)))
	}
	if err := d.Store.SetPaymentMethod(ctx, ec.User.ID, field, value); err != nil {
		return err
	}
	ec.ClearForm()
	return ec.Reply(ctx, fmt.Sprintf(msgWalletSaved, paymentLabel(field)))
}

// ---------------------------------------------------------------------------
// Worker bot token
// ---------------------------------------------------------------------------

func (d *Deps) startTokenForm(ctx context.Context, ec *dispatch.EventContext) error {
	p, err := d.ownProfile(ctx, ec)
	if err != nil {
		return err
	}
	if !p.Elevated() {
		return ec.Reply(ctx, msgElevatedOnly)
	}
	ec.StartForm("settings:token")
	return ec.Reply(ctx, msgAskBotToken)
}

// handleTokenValue provisions the tenant's own bot: shape check, live
// check against the platform, persist, then (re)start the worker.
func (d *Deps) handleTokenValue(ctx context.Context, ec *dispatch.EventContext) error {
	token := strings.TrimSpace(ec.Text())
	if !validTokenFormat(token) {
		return ec.Reply(ctx, msgBadTokenFormat)
	}
	identity, err := d.Opener.Validate(ctx, token)
	if transport.IsIdentityInvalid(err) {
		return ec.Reply(ctx, msgBadTokenLive)
	}
	if err != nil {
		d.log().Error("token validation failed", "tenant", ec.User.ID, "error", err)
		return ec.Reply(ctx, msgStoreDown)
	}

	if err := d.Store.SetWorkerToken(ctx, ec.User.ID, token); err != nil {
		return err
	}
	ec.ClearForm()

	// Best effort: a missing command menu never blocks provisioning.
	if prov, ok := d.Opener.(transport.Provisioner); ok {
		if err := prov.SetupIdentity(ctx, token); err != nil {
			d.log().Warn("bot profile setup failed", "tenant", ec.User.ID, "error", err)
		}
	}

	// Restart covers both cases: replacing a running worker's token and
	// first-time provisioning of an idle tenant.
	if err := d.Workers.Restart(ctx, ec.User.ID, token); err != nil {
		d.log().Error("worker start failed", "tenant", ec.User.ID, "error", err)
		return ec.Reply(ctx, msgStoreDown)
	}
	if err := ec.Reply(ctx, fmt.Sprintf(msgBotConnected, identity.Username)); err != nil {
		return err
	}
	return d.offerMigration(ctx, ec)
}

// offerMigration asks whether the products created on the master surface
// should also be served by the freshly connected bot. Skipped when there is
// nothing to migrate or the tenant already answered.
func (d *Deps) offerMigration(ctx context.Context, ec *dispatch.EventContext) error {
	p, err := d.Store.GetProfile(ctx, ec.User.ID)
	if err != nil {
		return err
	}
	if p.MigrationCompleted {
		return nil
	}
	n, err := d.Store.CountProducts(ctx, p.TenantID)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return ec.ReplyButtons(ctx, fmt.Sprintf(msgMigrationOffer, n), [][]transport.Button{
		{{Text: "✅ Yes", Data: "migrate:yes"}, {Text: "❌ Not now", Data: "migrate:no"}},
	})
}

func (d *Deps) handleMigration(ctx context.Context, ec *dispatch.EventContext) error {
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	if dispatch.CallbackArg(ec, "migrate:") != "yes" {
		return ec.Edit(ctx, msgMigrationSkip, nil)
	}
	if err := d.Store.SetMigrationCompleted(ctx, ec.User.ID, true); err != nil {
		return err
	}
	n, err := d.Store.CountProducts(ctx, ec.User.ID)
	if err != nil {
		return err
	}
	return ec.Edit(ctx, fmt.Sprintf(msgMigrationDone, n), nil)
}

// ---------------------------------------------------------------------------
// Shop link
// ---------------------------------------------------------------------------

// sendShopLink publishes the deep link into this shop via the master bot,
// with a QR image for offline sharing.
func (d *Deps) sendShopLink(ctx context.Context, ec *dispatch.EventContext) error {
	p, err := d.ownProfile(ctx, ec)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("https://t.me/%s?start=%s", d.MasterUsername, p.ShopCode)
	caption := fmt.Sprintf(msgShopLink, link)

	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		d.log().Warn("qr render failed", "tenant", p.TenantID, "error", err)
		return ec.Reply(ctx, caption)
	}
	return ec.SendPhoto(ctx, png, "shop-"+strconv.FormatInt(p.TenantID, 10)+".png", caption)
}
