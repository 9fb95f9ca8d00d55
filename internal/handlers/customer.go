package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopmux/shopmux/internal/dispatch"
	"github.com/shopmux/shopmux/internal/store"
	"github.com/shopmux/shopmux/internal/transport"
)

// registerCustomer wires the buying side: catalog browsing, product pages
// and orders. It is the lowest router, so anything the admin and settings
// routers claimed never lands here.
func registerCustomer(r *dispatch.Router, d *Deps) {
	onWorker := func(ec *dispatch.EventContext) bool { return ec.Resolved && !ec.Master }

	r.Handle(dispatch.All(onWorker, dispatch.Command("start")), d.handleWorkerStart)
	r.Handle(dispatch.CallbackPrefix("cat:"), d.handleCatalogCallback)
	r.Handle(dispatch.CallbackPrefix("prod:"), d.handleProductView)
	r.Handle(dispatch.CallbackPrefix("buy:"), d.handleBuy)
}

func (d *Deps) handleWorkerStart(ctx context.Context, ec *dispatch.EventContext) error {
	return d.sendCatalog(ctx, ec, ec.TenantID, "")
}

// sendCatalog renders a seller's product list. Callback data always
// carries the seller id so the same view works on the master surface,
// where the surface alone doesn't name a shop.
func (d *Deps) sendCatalog(ctx context.Context, ec *dispatch.EventContext, sellerID int64, category string) error {
	products, err := d.Store.ListProducts(ctx, sellerID, category)
	if err != nil {
		d.log().Error("catalog load failed", "seller", sellerID, "error", err)
		return ec.Reply(ctx, msgStoreDown)
	}
	if len(products) == 0 && category == "" {
		return ec.Reply(ctx, msgNoProducts)
	}

	var buttons [][]transport.Button
	categories, err := d.Store.ListCategories(ctx, sellerID)
	if err != nil {
		return err
	}
	if len(categories) > 0 {
		row := []transport.Button{{Text: "All", Data: fmt.Sprintf("cat:%d:", sellerID)}}
		for _, c := range categories {
			row = append(row, transport.Button{Text: c.Name, Data: fmt.Sprintf("cat:%d:%s", sellerID, c.Name)})
		}
		buttons = append(buttons, row)
	}
	for _, p := range products {
		buttons = append(buttons, []transport.Button{{
			Text: fmt.Sprintf("%s — %.2f", p.Name, p.Price),
			Data: fmt.Sprintf("prod:%d", p.ID),
		}})
	}

	title := "🛍 Shop"
	if category != "" {
		title = fmt.Sprintf("🛍 Shop — %s", category)
	}
	if ec.Event.Callback != nil {
		return ec.Edit(ctx, title, buttons)
	}
	return ec.ReplyButtons(ctx, title, buttons)
}

func (d *Deps) handleCatalogCallback(ctx context.Context, ec *dispatch.EventContext) error {
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	arg := dispatch.CallbackArg(ec, "cat:")
	sellerStr, category, _ := strings.Cut(arg, ":")
	sellerID, err := strconv.ParseInt(sellerStr, 10, 64)
	if err != nil {
		return nil // stale or malformed button
	}
	return d.sendCatalog(ctx, ec, sellerID, category)
}

func (d *Deps) handleProductView(ctx context.Context, ec *dispatch.EventContext) error {
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	productID, err := strconv.ParseInt(dispatch.CallbackArg(ec, "prod:"), 10, 64)
	if err != nil {
		return nil
	}
	p, err := d.Store.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return ec.Edit(ctx, msgNoProducts, nil)
	}
	if err != nil {
		return err
	}
	stock, err := d.Store.UnitCount(ctx, p.ID)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", p.Description)
	}
	fmt.Fprintf(&b, "\nPrice: %.2f\nIn stock: %d", p.Price, stock)

	buttons := [][]transport.Button{
		{{Text: "🛒 Buy", Data: fmt.Sprintf("buy:%d", p.ID)}},
		{{Text: "⬅️ Back", Data: fmt.Sprintf("cat:%d:", p.OwnerID)}},
	}
	if stock == 0 {
		buttons = buttons[1:]
	}
	return ec.Edit(ctx, b.String(), buttons)
}

func (d *Deps) handleBuy(ctx context.Context, ec *dispatch.EventContext) error {
	productID, err := strconv.ParseInt(dispatch.CallbackArg(ec, "buy:"), 10, 64)
	if err != nil {
		return ec.Ack(ctx, "")
	}
	p, err := d.Store.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return ec.Ack(ctx, msgSoldOut)
	}
	if err != nil {
		return err
	}

	stock, err := d.Store.UnitCount(ctx, p.ID)
	if err != nil {
		return err
	}
	if stock == 0 {
		return ec.Ack(ctx, msgSoldOut)
	}

	seller, err := d.Store.GetProfile(ctx, p.OwnerID)
	if err != nil {
		return err
	}
	payment := paymentLines(seller)
	if payment == "" {
		return ec.Ack(ctx, msgNoPayment)
	}

	order, err := d.Store.CreateOrder(ctx, ec.User.ID, p.OwnerID, p.ID)
	if err != nil {
		return err
	}
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	if err := ec.Reply(ctx, fmt.Sprintf(msgOrderPlaced, payment)); err != nil {
		return err
	}

	// Best effort: the seller may not have opened this surface yet.
	notify := fmt.Sprintf(msgOrderNotify, shortOrderID(order.ID), buyerName(ec.User), p.Name, p.Price)
	confirm := [][]transport.Button{{{Text: "✅ Payment received", Data: "confirm:" + order.ID}}}
	if err := ec.SendButtonsTo(ctx, p.OwnerID, notify, confirm); err != nil {
		d.log().Warn("order notification failed", "seller", p.OwnerID, "order", order.ID, "error", err)
	}
	return nil
}

func shortOrderID(id string) string {
	if len(id) > 8 {
		return "#" + id[:8]
	}
	return "#" + id
}

func buyerName(u *transport.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("user %d", u.ID)
}
