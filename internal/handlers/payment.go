package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopmux/shopmux/internal/dispatch"
	"github.com/shopmux/shopmux/internal/transport"
)

// registerPayment wires the upgrade funnel. Billing itself is manual: the
// tenant picks a plan, the operators get pinged and grant it with
// /grantpro after payment clears.
func registerPayment(r *dispatch.Router, d *Deps) {
	r.Handle(dispatch.Command("upgrade"), d.handleUpgradeMenu)
	r.Handle(dispatch.CallbackPrefix("upgrade:"), d.handleUpgradeCallback)
}

func (d *Deps) handleUpgradeMenu(ctx context.Context, ec *dispatch.EventContext) error {
	return d.sendUpgradePitch(ctx, ec, false)
}

func (d *Deps) handleUpgradeCallback(ctx context.Context, ec *dispatch.EventContext) error {
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	arg := dispatch.CallbackArg(ec, "upgrade:")
	if arg == "menu" {
		return d.sendUpgradePitch(ctx, ec, true)
	}
	months, err := strconv.Atoi(arg)
	if err != nil || months <= 0 {
		return nil
	}
	return d.requestUpgrade(ctx, ec, months)
}

func (d *Deps) sendUpgradePitch(ctx context.Context, ec *dispatch.EventContext, edit bool) error {
	buttons := [][]transport.Button{
		{{Text: "1 month", Data: "upgrade:1"}, {Text: "3 months", Data: "upgrade:3"}},
		{{Text: "12 months", Data: "upgrade:12"}},
	}
	if ec.Master {
		buttons = append(buttons, []transport.Button{{Text: "⬅️ Back", Data: "home"}})
	}
	if edit {
		return ec.Edit(ctx, msgUpgradePitch, buttons)
	}
	return ec.ReplyButtons(ctx, msgUpgradePitch, buttons)
}

func (d *Deps) requestUpgrade(ctx context.Context, ec *dispatch.EventContext, months int) error {
	if err := ec.Reply(ctx, fmt.Sprintf(msgUpgradeRequest, months)); err != nil {
		return err
	}
	// Ping every operator; skip whoever has never opened the master bot.
	note := fmt.Sprintf(msgUpgradeNotify, ec.User.ID, ec.User.Username, months)
	for _, adminID := range d.AdminIDs {
		if err := ec.SendTo(ctx, adminID, note); err != nil {
			d.log().Warn("upgrade notification failed", "admin", adminID, "error", err)
		}
	}
	return nil
}
