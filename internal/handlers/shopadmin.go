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

// registerShopAdmin wires storefront management for shop owners: the shop
// dashboard, the add-product conversation, refills, categories, and order
// confirmation.
func registerShopAdmin(r *dispatch.Router, d *Deps) {
	owner := dispatch.Owner()
	onWorker := func(ec *dispatch.EventContext) bool { return !ec.Master }

	r.Handle(dispatch.All(owner, onWorker, dispatch.Command("start")), d.handleShopDashboard)
	r.Handle(dispatch.All(owner, dispatch.Command("shop")), d.handleShopDashboard)
	r.Handle(dispatch.All(owner, dispatch.CallbackPrefix("admin:")), d.handleAdminCallback)
	r.Handle(dispatch.All(owner, dispatch.CallbackPrefix("prodadm:")), d.handleProductAdmin)
	r.Handle(dispatch.All(owner, dispatch.CallbackPrefix("refill:")), d.handleRefillStart)
	r.Handle(dispatch.All(owner, dispatch.CallbackPrefix("editprice:")), d.handlePriceEditStart)
	r.Handle(dispatch.All(owner, dispatch.CallbackPrefix("delprod:")), d.handleProductDelete)
	r.Handle(dispatch.All(owner, dispatch.CallbackPrefix("delcat:")), d.handleCategoryDelete)
	r.Handle(dispatch.All(owner, dispatch.CallbackPrefix("confirm:")), d.handleOrderConfirm)
	r.Handle(dispatch.All(owner, dispatch.FormPrefix("product:")), d.handleProductForm)
	r.Handle(dispatch.All(owner, dispatch.FormStep("refill:units")), d.handleRefillUnits)
	r.Handle(dispatch.All(owner, dispatch.FormStep("editprice:value")), d.handlePriceEditValue)
	r.Handle(dispatch.All(owner, dispatch.FormStep("category:name")), d.handleCategoryName)
}

// ownProfile returns the acting owner's profile, creating it on first
// contact with a worker surface started before the master ever saw them.
func (d *Deps) ownProfile(ctx context.Context, ec *dispatch.EventContext) (*store.Profile, error) {
	if ec.Profile != nil && ec.Profile.TenantID == ec.User.ID {
		return ec.Profile, nil
	}
	return d.Store.EnsureProfile(ctx, ec.User.ID, ec.User.Username)
}

func (d *Deps) handleShopDashboard(ctx context.Context, ec *dispatch.EventContext) error {
	return d.sendShopDashboard(ctx, ec, false)
}

func (d *Deps) sendShopDashboard(ctx context.Context, ec *dispatch.EventContext, edit bool) error {
	p, err := d.ownProfile(ctx, ec)
	if err != nil {
		return err
	}
	products, err := d.Store.CountProducts(ctx, p.TenantID)
	if err != nil {
		return err
	}
	stats, err := d.Store.SellerStats(ctx, p.TenantID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("🛍 Your shop (%s)\n\nProducts: %d\nOrders: %d (%d open)",
		p.Tier, products, stats.Total, stats.Pending)
	buttons := [][]transport.Button{
		{{Text: "➕ Add product", Data: "admin:add"}, {Text: "📦 Products", Data: "admin:products"}},
		{{Text: "🗂 Categories", Data: "admin:cats"}, {Text: "📋 Orders", Data: "admin:orders"}},
		{{Text: "👥 Customers", Data: "admin:customers"}},
	}
	if ec.Master {
		buttons = append(buttons, []transport.Button{{Text: "⬅️ Back", Data: "home"}})
	}
	if edit {
		return ec.Edit(ctx, text, buttons)
	}
	return ec.ReplyButtons(ctx, text, buttons)
}

func (d *Deps) handleAdminCallback(ctx context.Context, ec *dispatch.EventContext) error {
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	switch dispatch.CallbackArg(ec, "admin:") {
	case "shop":
		return d.sendShopDashboard(ctx, ec, true)
	case "add":
		return d.startProductForm(ctx, ec)
	case "products":
		return d.sendProductAdminList(ctx, ec)
	case "cats":
		return d.sendCategoryMenu(ctx, ec)
	case "catnew":
		ec.StartForm("category:name")
		return ec.Reply(ctx, msgAskCategoryName)
	case "orders":
		return d.sendOrderStats(ctx, ec)
	case "customers":
		return d.sendCustomers(ctx, ec)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Add-product conversation
// ---------------------------------------------------------------------------

func (d *Deps) startProductForm(ctx context.Context, ec *dispatch.EventContext) error {
	p, err := d.ownProfile(ctx, ec)
	if err != nil {
		return err
	}
	if !p.Elevated() {
		n, err := d.Store.CountProducts(ctx, p.TenantID)
		if err != nil {
			return err
		}
		if n >= d.FreeLimit {
			return ec.Reply(ctx, fmt.Sprintf(msgProductLimit, d.FreeLimit))
		}
	}
	ec.StartForm("product:name")
	return ec.Reply(ctx, msgAskProductName)
}

// handleProductForm walks the add-product conversation one answer at a
// time. Standard-tier shops skip the category and image steps; those are
// pro features.
func (d *Deps) handleProductForm(ctx context.Context, ec *dispatch.EventContext) error {
	p, err := d.ownProfile(ctx, ec)
	if err != nil {
		return err
	}
	form := ec.Form()
	text := strings.TrimSpace(ec.Text())

	switch form.Name {
	case "product:name":
		name, ok := validProductName(text)
		if !ok {
			return ec.Reply(ctx, msgBadName)
		}
		form.Data["name"] = name
		form.Advance("product:desc")
		return ec.Reply(ctx, msgAskProductDesc)

	case "product:desc":
		if text != "-" {
			form.Data["desc"] = text
		}
		form.Advance("product:price")
		return ec.Reply(ctx, msgAskProductPrice)

	case "product:price":
		price, ok := validPrice(text)
		if !ok {
			return ec.Reply(ctx, msgBadPrice)
		}
		form.Data["price"] = strconv.FormatFloat(price, 'f', -1, 64)
		if p.Elevated() {
			form.Advance("product:category")
			return ec.Reply(ctx, msgAskProductCat)
		}
		form.Advance("product:units")
		return ec.Reply(ctx, msgAskProductUnits)

	case "product:category":
		if text != "-" {
			form.Data["category"] = text
		}
		form.Advance("product:image")
		return ec.Reply(ctx, msgAskProductImage)

	case "product:image":
		if ec.Event.Message.PhotoID != "" {
			form.Data["image"] = ec.Event.Message.PhotoID
		} else if text != "-" {
			return ec.Reply(ctx, msgAskProductImage)
		}
		form.Advance("product:units")
		return ec.Reply(ctx, msgAskProductUnits)

	case "product:units":
		units := parseUnits(ec.Text())
		price, _ := strconv.ParseFloat(form.Data["price"], 64)
		product, err := d.Store.AddProduct(ctx, &store.Product{
			OwnerID:     p.TenantID,
			Name:        form.Data["name"],
			Description: form.Data["desc"],
			Price:       price,
			Category:    form.Data["category"],
			ImageID:     form.Data["image"],
		})
		if err != nil {
			return err
		}
		if len(units) > 0 {
			if _, err := d.Store.RefillUnits(ctx, product.ID, p.TenantID, units); err != nil {
				return err
			}
		}
		// Keep the category list in step with free-typed names.
		if c := form.Data["category"]; c != "" {
			if _, err := d.Store.CreateCategory(ctx, p.TenantID, c); err != nil {
				d.log().Debug("category upsert skipped", "name", c, "error", err)
			}
		}
		ec.ClearForm()
		return ec.Reply(ctx, fmt.Sprintf(msgProductSaved, product.Name, len(units)))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Product administration
// ---------------------------------------------------------------------------

func (d *Deps) sendProductAdminList(ctx context.Context, ec *dispatch.EventContext) error {
	products, err := d.Store.ListProducts(ctx, ec.User.ID, "")
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return ec.Edit(ctx, msgNoProducts, [][]transport.Button{
			{{Text: "➕ Add product", Data: "admin:add"}},
		})
	}
	var buttons [][]transport.Button
	for _, p := range products {
		buttons = append(buttons, []transport.Button{{
			Text: fmt.Sprintf("%s — %.2f", p.Name, p.Price),
			Data: fmt.Sprintf("prodadm:%d", p.ID),
		}})
	}
	buttons = append(buttons, []transport.Button{{Text: "⬅️ Back", Data: "admin:shop"}})
	return ec.Edit(ctx, "📦 Your products", buttons)
}

func (d *Deps) handleProductAdmin(ctx context.Context, ec *dispatch.EventContext) error {
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	productID, err := strconv.ParseInt(dispatch.CallbackArg(ec, "prodadm:"), 10, 64)
	if err != nil {
		return nil
	}
	p, err := d.Store.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return d.sendProductAdminList(ctx, ec)
	}
	if err != nil {
		return err
	}
	if p.OwnerID != ec.User.ID {
		return nil
	}
	stock, err := d.Store.UnitCount(ctx, p.ID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("%s\nPrice: %.2f\nCategory: %s\nIn stock: %d",
		p.Name, p.Price, orDash(p.Category), stock)
	buttons := [][]transport.Button{
		{{Text: "📥 Refill stock", Data: fmt.Sprintf("refill:%d", p.ID)}},
		{{Text: "💲 Change price", Data: fmt.Sprintf("editprice:%d", p.ID)}},
		{{Text: "🗑 Delete", Data: fmt.Sprintf("delprod:%d", p.ID)}},
		{{Text: "⬅️ Back", Data: "admin:products"}},
	}
	return ec.Edit(ctx, text, buttons)
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func (d *Deps) handleRefillStart(ctx context.Context, ec *dispatch.EventContext) error {
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	productID := dispatch.CallbackArg(ec, "refill:")
	if _, err := strconv.ParseInt(productID, 10, 64); err != nil {
		return nil
	}
	form := ec.StartForm("refill:units")
	form.Data["product"] = productID
	return ec.Reply(ctx, msgAskRefillUnits)
}

func (d *Deps) handleRefillUnits(ctx context.Context, ec *dispatch.EventContext) error {
	form := ec.Form()
	productID, err := strconv.ParseInt(form.Data["product"], 10, 64)
	if err != nil {
		ec.ClearForm()
		return nil
	}
	units := parseUnits(ec.Text())
	if len(units) == 0 {
		return ec.Reply(ctx, msgAskRefillUnits)
	}
	added, err := d.Store.RefillUnits(ctx, productID, ec.User.ID, units)
	if errors.Is(err, store.ErrNotFound) {
		ec.ClearForm()
		return ec.Reply(ctx, msgNoProducts)
	}
	if err != nil {
		return err
	}
	total, err := d.Store.UnitCount(ctx, productID)
	if err != nil {
		return err
	}
	ec.ClearForm()
	return ec.Reply(ctx, fmt.Sprintf(msgUnitsAdded, added, total))
}

func (d *Deps) handlePriceEditStart(ctx context.Context, ec *dispatch.EventContext) error {
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	productID := dispatch.CallbackArg(ec, "editprice:")
	if _, err := strconv.ParseInt(productID, 10, 64); err != nil {
		return nil
	}
	form := ec.StartForm("editprice:value")
	form.Data["product"] = productID
	return ec.Reply(ctx, msgAskNewPrice)
}

func (d *Deps) handlePriceEditValue(ctx context.Context, ec *dispatch.EventContext) error {
	form := ec.Form()
	productID, err := strconv.ParseInt(form.Data["product"], 10, 64)
	if err != nil {
		ec.ClearForm()
		return nil
	}
	price, ok := validPrice(strings.TrimSpace(ec.Text()))
	if !ok {
		return ec.Reply(ctx, msgBadPrice)
	}
	err = d.Store.UpdateProduct(ctx, productID, ec.User.ID, map[string]any{"price": price})
	if errors.Is(err, store.ErrNotFound) {
		ec.ClearForm()
		return ec.Reply(ctx, msgNoProducts)
	}
	if err != nil {
		return err
	}
	ec.ClearForm()
	return ec.Reply(ctx, fmt.Sprintf(msgPriceUpdated, price))
}

func (d *Deps) handleProductDelete(ctx context.Context, ec *dispatch.EventContext) error {
	productID, err := strconv.ParseInt(dispatch.CallbackArg(ec, "delprod:"), 10, 64)
	if err != nil {
		return ec.Ack(ctx, "")
	}
	err = d.Store.DeleteProduct(ctx, productID, ec.User.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := ec.Ack(ctx, msgProductDeleted); err != nil {
		return err
	}
	return d.sendProductAdminList(ctx, ec)
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

func (d *Deps) sendCategoryMenu(ctx context.Context, ec *dispatch.EventContext) error {
	p, err := d.ownProfile(ctx, ec)
	if err != nil {
		return err
	}
	if !p.Elevated() {
		return ec.Edit(ctx, msgElevatedOnly, [][]transport.Button{
			{{Text: "⭐ Upgrade", Data: "upgrade:menu"}},
			{{Text: "⬅️ Back", Data: "admin:shop"}},
		})
	}
	categories, err := d.Store.ListCategories(ctx, p.TenantID)
	if err != nil {
		return err
	}
	var buttons [][]transport.Button
	for _, c := range categories {
		buttons = append(buttons, []transport.Button{{
			Text: "🗑 " + c.Name,
			Data: fmt.Sprintf("delcat:%d", c.ID),
		}})
	}
	buttons = append(buttons,
		[]transport.Button{{Text: "➕ New category", Data: "admin:catnew"}},
		[]transport.Button{{Text: "⬅️ Back", Data: "admin:shop"}})
	return ec.Edit(ctx, "🗂 Categories (tap to delete)", buttons)
}

func (d *Deps) handleCategoryName(ctx context.Context, ec *dispatch.EventContext) error {
	name := strings.TrimSpace(ec.Text())
	if name == "" || len(name) > 50 {
		return ec.Reply(ctx, msgAskCategoryName)
	}
	c, err := d.Store.CreateCategory(ctx, ec.User.ID, name)
	if err != nil {
		ec.ClearForm()
		return ec.Reply(ctx, fmt.Sprintf("Couldn't create %q — maybe it already exists.", name))
	}
	ec.ClearForm()
	return ec.Reply(ctx, fmt.Sprintf(msgCategorySaved, c.Name))
}

func (d *Deps) handleCategoryDelete(ctx context.Context, ec *dispatch.EventContext) error {
	categoryID, err := strconv.ParseInt(dispatch.CallbackArg(ec, "delcat:"), 10, 64)
	if err != nil {
		return ec.Ack(ctx, "")
	}
	err = d.Store.DeleteCategory(ctx, categoryID, ec.User.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := ec.Ack(ctx, msgCategoryDeleted); err != nil {
		return err
	}
	return d.sendCategoryMenu(ctx, ec)
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

func (d *Deps) sendOrderStats(ctx context.Context, ec *dispatch.EventContext) error {
	stats, err := d.Store.SellerStats(ctx, ec.User.ID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("📋 Orders\n\nTotal: %d\nOpen: %d\nCompleted: %d",
		stats.Total, stats.Pending, stats.Completed)
	return ec.Edit(ctx, text, [][]transport.Button{{{Text: "⬅️ Back", Data: "admin:shop"}}})
}

func (d *Deps) sendCustomers(ctx context.Context, ec *dispatch.EventContext) error {
	buyers, err := d.Store.CustomerIDs(ctx, ec.User.ID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("👥 %d customer(s) have ordered from you.", len(buyers))
	return ec.Edit(ctx, text, [][]transport.Button{{{Text: "⬅️ Back", Data: "admin:shop"}}})
}

// handleOrderConfirm is the seller's "payment received" action: complete
// the order, pop exactly one unit, deliver it to the buyer.
func (d *Deps) handleOrderConfirm(ctx context.Context, ec *dispatch.EventContext) error {
	orderID := dispatch.CallbackArg(ec, "confirm:")
	order, err := d.Store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return ec.Ack(ctx, msgOrderClosed)
	}
	if err != nil {
		return err
	}
	if order.SellerID != ec.User.ID {
		return ec.Ack(ctx, msgNotAuthorized)
	}

	unit, err := d.Store.ConfirmOrder(ctx, orderID)
	switch {
	case errors.Is(err, store.ErrOrderClosed):
		return ec.Ack(ctx, msgOrderClosed)
	case errors.Is(err, store.ErrNoStock):
		return ec.Ack(ctx, msgSoldOut)
	case err != nil:
		return err
	}

	if err := ec.SendTo(ctx, order.BuyerID, fmt.Sprintf(msgOrderDelivered, unit)); err != nil {
		// The unit is popped and the order completed; the seller must hand
		// it over manually.
		d.log().Error("unit delivery failed", "order", orderID, "buyer", order.BuyerID, "error", err)
		return ec.Ack(ctx, "Confirmed, but delivery to the buyer failed — send the item manually.")
	}
	if err := ec.Ack(ctx, ""); err != nil {
		return err
	}
	return ec.Edit(ctx, fmt.Sprintf("%s\n\n%s", shortOrderID(orderID), msgOrderConfirmed), nil)
}
