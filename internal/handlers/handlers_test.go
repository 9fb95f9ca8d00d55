package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopmux/shopmux/internal/directory"
	"github.com/shopmux/shopmux/internal/dispatch"
	"github.com/shopmux/shopmux/internal/store"
	"github.com/shopmux/shopmux/internal/supervisor"
	"github.com/shopmux/shopmux/internal/transport"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// recordSession captures everything handlers send on one surface.
type recordSession struct {
	id transport.Identity

	mu   sync.Mutex
	sent []*transport.Outbound
}

func newRecordSession(id int64, username string) *recordSession {
	return &recordSession{id: transport.Identity{ID: id, Username: username}}
}

func (s *recordSession) Identity() transport.Identity { return s.id }

func (s *recordSession) ReceiveNext(ctx context.Context) (*transport.Event, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *recordSession) Send(ctx context.Context, msg *transport.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordSession) DiscardPending(ctx context.Context) error { return nil }
func (s *recordSession) Close() error                             { return nil }

func (s *recordSession) outbox() []*transport.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*transport.Outbound(nil), s.sent...)
}

// lastText returns the most recent non-ack send, skipping callback answers.
func (s *recordSession) lastText() string {
	out := s.outbox()
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].CallbackID == "" {
			return out[i].Text
		}
	}
	return ""
}

// lastAck returns the most recent callback answer text.
func (s *recordSession) lastAck() string {
	out := s.outbox()
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].CallbackID != "" {
			return out[i].Text
		}
	}
	return ""
}

// sentTo returns sends addressed to the given chat, acks excluded.
func (s *recordSession) sentTo(chatID int64) []*transport.Outbound {
	var out []*transport.Outbound
	for _, m := range s.outbox() {
		if m.CallbackID == "" && m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

type fakeWorkers struct {
	mu       sync.Mutex
	restarts []int64
	statuses map[int64]supervisor.WorkerStatus
}

func (f *fakeWorkers) Restart(ctx context.Context, tenantID int64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, tenantID)
	return nil
}

func (f *fakeWorkers) Status(tenantID int64) supervisor.WorkerStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[tenantID]
}

type fakeSubs struct {
	st      store.Store
	grants  []int64
	revokes []int64
}

func (f *fakeSubs) Grant(ctx context.Context, tenantID int64, months int) (*store.Profile, error) {
	if _, err := f.st.GetProfile(ctx, tenantID); err != nil {
		return nil, err
	}
	expiry := time.Now().AddDate(0, 0, 30*months)
	if err := f.st.SetEntitlement(ctx, tenantID, store.TierElevated, &expiry); err != nil {
		return nil, err
	}
	f.grants = append(f.grants, tenantID)
	return f.st.GetProfile(ctx, tenantID)
}

func (f *fakeSubs) Revoke(ctx context.Context, tenantID int64) error {
	if err := f.st.SetEntitlement(ctx, tenantID, store.TierStandard, nil); err != nil {
		return err
	}
	f.revokes = append(f.revokes, tenantID)
	return nil
}

// fakeOpener validates tokens against a fixed allow list.
type fakeOpener struct {
	valid map[string]transport.Identity
}

func (f *fakeOpener) Validate(ctx context.Context, token string) (transport.Identity, error) {
	if id, ok := f.valid[token]; ok {
		return id, nil
	}
	return transport.Identity{}, &transport.IdentityInvalidError{Reason: "unknown token"}
}

func (f *fakeOpener) Open(ctx context.Context, token string) (transport.Session, error) {
	id, err := f.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	return newRecordSession(id.ID, id.Username), nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

const (
	masterToken = "master-token"
	adminID     = int64(1000)
	goodToken   = "123456789:AAExampleExampleExampleExampleExample"
)

type harness struct {
	st      store.Store
	tree    *dispatch.Tree
	workers *fakeWorkers
	subs    *fakeSubs
	opener  *fakeOpener
	master  *recordSession
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	workers := &fakeWorkers{statuses: map[int64]supervisor.WorkerStatus{}}
	subs := &fakeSubs{st: st}
	opener := &fakeOpener{valid: map[string]transport.Identity{
		goodToken: {ID: 7000, Username: "tenant_shop_bot"},
	}}

	tree := dispatch.NewTree(dispatch.NewResolver(directory.New(st)), slog.Default())
	Register(tree, &Deps{
		Store:          st,
		Workers:        workers,
		Subs:           subs,
		Opener:         opener,
		AdminIDs:       []int64{adminID},
		FreeLimit:      2,
		MasterUsername: "shopmux_bot",
	})

	return &harness{
		st:      st,
		tree:    tree,
		workers: workers,
		subs:    subs,
		opener:  opener,
		master:  newRecordSession(1, "shopmux_bot"),
	}
}

func (h *harness) message(t *testing.T, sess *recordSession, token string, userID int64, text string) {
	t.Helper()
	ev := &transport.Event{Message: &transport.Message{
		From:   &transport.User{ID: userID, Username: fmt.Sprintf("user%d", userID)},
		ChatID: userID,
		Text:   text,
	}}
	if err := h.tree.Dispatch(context.Background(), token, sess, ev); err != nil {
		t.Fatalf("dispatch %q: %v", text, err)
	}
}

func (h *harness) callback(t *testing.T, sess *recordSession, token string, userID int64, data string) {
	t.Helper()
	ev := &transport.Event{Callback: &transport.Callback{
		ID:      "cb",
		From:    &transport.User{ID: userID, Username: fmt.Sprintf("user%d", userID)},
		Data:    data,
		Message: &transport.Message{ID: 500, ChatID: userID},
	}}
	if err := h.tree.Dispatch(context.Background(), token, sess, ev); err != nil {
		t.Fatalf("dispatch callback %q: %v", data, err)
	}
}

func (h *harness) seedProfile(t *testing.T, tenantID int64) *store.Profile {
	t.Helper()
	p, err := h.st.EnsureProfile(context.Background(), tenantID, fmt.Sprintf("user%d", tenantID))
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return p
}

func (h *harness) elevate(t *testing.T, tenantID int64) {
	t.Helper()
	expiry := time.Now().AddDate(0, 1, 0)
	if err := h.st.SetEntitlement(context.Background(), tenantID, store.TierElevated, &expiry); err != nil {
		t.Fatalf("elevate: %v", err)
	}
}

func (h *harness) seedProduct(t *testing.T, ownerID int64, name string, units ...string) *store.Product {
	t.Helper()
	ctx := context.Background()
	p, err := h.st.AddProduct(ctx, &store.Product{OwnerID: ownerID, Name: name, Price: 9.99})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if len(units) > 0 {
		if _, err := h.st.RefillUnits(ctx, p.ID, ownerID, units); err != nil {
			t.Fatalf("seed units: %v", err)
		}
	}
	return p
}

// ---------------------------------------------------------------------------
// Master surface
// ---------------------------------------------------------------------------

func TestMasterStartRegistersAndShowsHome(t *testing.T) {
	h := newHarness(t)
	h.message(t, h.master, masterToken, 7, "/start")

	if _, err := h.st.GetProfile(context.Background(), 7); err != nil {
		t.Fatalf("profile not registered: %v", err)
	}
	out := h.master.outbox()
	if len(out) != 1 || !strings.Contains(out[0].Text, "Welcome") || len(out[0].Buttons) == 0 {
		t.Fatalf("expected home menu, got %+v", out)
	}
}

func TestMasterStartDeepLinkOpensShop(t *testing.T) {
	h := newHarness(t)
	seller := h.seedProfile(t, 9)
	h.seedProduct(t, 9, "VPN Key", "k-1")

	h.message(t, h.master, masterToken, 7, "/start "+seller.ShopCode)

	out := h.master.outbox()
	last := out[len(out)-1]
	if !strings.Contains(last.Text, "Shop") {
		t.Fatalf("expected catalog, got %q", last.Text)
	}
	var found bool
	for _, row := range last.Buttons {
		for _, b := range row {
			if strings.HasPrefix(b.Data, "prod:") {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("catalog has no product buttons")
	}
}

func TestMasterStartBadCode(t *testing.T) {
	h := newHarness(t)
	h.message(t, h.master, masterToken, 7, "/start NOPE99")
	if h.master.lastText() != msgShopNotFound {
		t.Fatalf("expected shop-not-found, got %q", h.master.lastText())
	}
}

// ---------------------------------------------------------------------------
// Sysadmin commands
// ---------------------------------------------------------------------------

func TestSysadminGate(t *testing.T) {
	h := newHarness(t)

	// Non-admins fall through; /master matches nothing else, so no reply.
	h.message(t, h.master, masterToken, 7, "/master")
	if n := len(h.master.outbox()); n != 0 {
		t.Fatalf("non-admin got %d replies", n)
	}

	h.message(t, h.master, masterToken, adminID, "/master")
	if !strings.Contains(h.master.lastText(), "Platform") {
		t.Fatalf("expected platform stats, got %q", h.master.lastText())
	}
}

func TestGrantAndRevoke(t *testing.T) {
	h := newHarness(t)
	h.seedProfile(t, 7)

	h.message(t, h.master, masterToken, adminID, "/grantpro 7 2")
	if len(h.subs.grants) != 1 || h.subs.grants[0] != 7 {
		t.Fatalf("grant not recorded: %v", h.subs.grants)
	}
	if !strings.Contains(h.master.lastText(), "Granted 2 month(s)") {
		t.Fatalf("unexpected reply %q", h.master.lastText())
	}
	// The tenant gets pinged too.
	if msgs := h.master.sentTo(7); len(msgs) != 1 {
		t.Fatalf("expected 1 tenant notification, got %d", len(msgs))
	}

	h.message(t, h.master, masterToken, adminID, "/revokepro 7")
	if len(h.subs.revokes) != 1 || h.subs.revokes[0] != 7 {
		t.Fatalf("revoke not recorded: %v", h.subs.revokes)
	}
}

func TestGrantUnknownTenant(t *testing.T) {
	h := newHarness(t)
	h.message(t, h.master, masterToken, adminID, "/grantpro 404")
	if !strings.Contains(h.master.lastText(), "No profile") {
		t.Fatalf("unexpected reply %q", h.master.lastText())
	}
}

// ---------------------------------------------------------------------------
// Add-product conversation
// ---------------------------------------------------------------------------

func TestAddProductFlowStandardTier(t *testing.T) {
	h := newHarness(t)
	h.seedProfile(t, 7)

	h.callback(t, h.master, masterToken, 7, "admin:add")
	if h.master.lastText() != msgAskProductName {
		t.Fatalf("expected name prompt, got %q", h.master.lastText())
	}

	h.message(t, h.master, masterToken, 7, "VPN Key")
	h.message(t, h.master, masterToken, 7, "Fast and private")
	h.message(t, h.master, masterToken, 7, "9,99") // comma decimal

	// Standard tier skips category and image, straight to units.
	if h.master.lastText() != msgAskProductUnits {
		t.Fatalf("expected units prompt, got %q", h.master.lastText())
	}
	h.message(t, h.master, masterToken, 7, "key-1\nkey-2\n\nkey-3")

	products, err := h.st.ListProducts(context.Background(), 7, "")
	if err != nil || len(products) != 1 {
		t.Fatalf("expected 1 product, got %d (%v)", len(products), err)
	}
	p := products[0]
	if p.Name != "VPN Key" || p.Price != 9.99 || p.Description != "Fast and private" {
		t.Fatalf("unexpected product %+v", p)
	}
	if n, _ := h.st.UnitCount(context.Background(), p.ID); n != 3 {
		t.Fatalf("expected 3 units, got %d", n)
	}
}

func TestAddProductRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	h.seedProfile(t, 7)

	h.callback(t, h.master, masterToken, 7, "admin:add")
	h.message(t, h.master, masterToken, 7, "x") // too short
	if h.master.lastText() != msgBadName {
		t.Fatalf("expected bad-name reply, got %q", h.master.lastText())
	}
	h.message(t, h.master, masterToken, 7, "VPN Key")
	h.message(t, h.master, masterToken, 7, "-")
	h.message(t, h.master, masterToken, 7, "free?!")
	if h.master.lastText() != msgBadPrice {
		t.Fatalf("expected bad-price reply, got %q", h.master.lastText())
	}
}

func TestAddProductFreeLimit(t *testing.T) {
	h := newHarness(t)
	h.seedProfile(t, 7)
	h.seedProduct(t, 7, "One")
	h.seedProduct(t, 7, "Two")

	h.callback(t, h.master, masterToken, 7, "admin:add")
	if !strings.Contains(h.master.lastText(), "up to 2 products") {
		t.Fatalf("expected limit message, got %q", h.master.lastText())
	}
}

func TestAddProductElevatedAsksCategoryAndImage(t *testing.T) {
	h := newHarness(t)
	h.seedProfile(t, 7)
	h.elevate(t, 7)

	h.callback(t, h.master, masterToken, 7, "admin:add")
	h.message(t, h.master, masterToken, 7, "VPN Key")
	h.message(t, h.master, masterToken, 7, "-")
	h.message(t, h.master, masterToken, 7, "9.99")
	if h.master.lastText() != msgAskProductCat {
		t.Fatalf("expected category prompt, got %q", h.master.lastText())
	}
	h.message(t, h.master, masterToken, 7, "Security")
	if h.master.lastText() != msgAskProductImage {
		t.Fatalf("expected image prompt, got %q", h.master.lastText())
	}
	h.message(t, h.master, masterToken, 7, "-")
	h.message(t, h.master, masterToken, 7, "key-1")

	products, _ := h.st.ListProducts(context.Background(), 7, "Security")
	if len(products) != 1 {
		t.Fatalf("expected product in category, got %d", len(products))
	}
	// Free-typed category names become real categories.
	cats, _ := h.st.ListCategories(context.Background(), 7)
	if len(cats) != 1 || cats[0].Name != "Security" {
		t.Fatalf("expected category upsert, got %+v", cats)
	}
}

func TestEditProductPrice(t *testing.T) {
	h := newHarness(t)
	h.seedProfile(t, 7)
	p := h.seedProduct(t, 7, "VPN Key")

	h.callback(t, h.master, masterToken, 7, fmt.Sprintf("editprice:%d", p.ID))
	if h.master.lastText() != msgAskNewPrice {
		t.Fatalf("expected price prompt, got %q", h.master.lastText())
	}
	h.message(t, h.master, masterToken, 7, "free?!")
	if h.master.lastText() != msgBadPrice {
		t.Fatalf("expected bad-price reply, got %q", h.master.lastText())
	}
	h.message(t, h.master, masterToken, 7, "24,99")

	got, err := h.st.GetProduct(context.Background(), p.ID)
	if err != nil || got.Price != 24.99 {
		t.Fatalf("price not updated: %+v err=%v", got, err)
	}
	if !strings.Contains(h.master.lastText(), "24.99") {
		t.Fatalf("expected confirmation, got %q", h.master.lastText())
	}
}

func TestEditProductPriceCrossOwner(t *testing.T) {
	h := newHarness(t)
	h.seedProfile(t, 7)
	h.seedProfile(t, 8)
	p := h.seedProduct(t, 7, "VPN Key")

	h.callback(t, h.master, masterToken, 8, fmt.Sprintf("editprice:%d", p.ID))
	h.message(t, h.master, masterToken, 8, "0.01")

	got, _ := h.st.GetProduct(context.Background(), p.ID)
	if got.Price != 9.99 {
		t.Fatalf("cross-owner edit must not change the price, got %+v", got)
	}
	if h.master.lastText() != msgNoProducts {
		t.Fatalf("expected not-found reply, got %q", h.master.lastText())
	}
}

// ---------------------------------------------------------------------------
// Buy and confirm
// ---------------------------------------------------------------------------

// workerSurface provisions tenant 9 with a worker token and returns a
// session standing in for their bot.
func (h *harness) workerSurface(t *testing.T, tenantID int64) (*recordSession, string) {
	t.Helper()
	h.seedProfile(t, tenantID)
	token := fmt.Sprintf("worker-token-%d", tenantID)
	if err := h.st.SetWorkerToken(context.Background(), tenantID, token); err != nil {
		t.Fatalf("set worker token: %v", err)
	}
	return newRecordSession(8000+tenantID, "worker_bot"), token
}

func TestBuyAndConfirmDeliversUnit(t *testing.T) {
	h := newHarness(t)
	sess, token := h.workerSurface(t, 9)
	if err := h.st.SetPaymentMethod(context.Background(), 9, store.PayBTC, "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"); err != nil {
		t.Fatalf("set payment: %v", err)
	}
	p := h.seedProduct(t, 9, "VPN Key", "the-only-key")

	// Buyer 42 orders on the worker surface.
	h.callback(t, sess, token, 42, fmt.Sprintf("buy:%d", p.ID))

	buyerMsgs := sess.sentTo(42)
	if len(buyerMsgs) != 1 || !strings.Contains(buyerMsgs[0].Text, "BTC:") {
		t.Fatalf("buyer got %+v", buyerMsgs)
	}
	sellerMsgs := sess.sentTo(9)
	if len(sellerMsgs) != 1 {
		t.Fatalf("seller got %d notifications", len(sellerMsgs))
	}
	var confirmData string
	for _, row := range sellerMsgs[0].Buttons {
		for _, b := range row {
			if strings.HasPrefix(b.Data, "confirm:") {
				confirmData = b.Data
			}
		}
	}
	if confirmData == "" {
		t.Fatalf("no confirm button in %+v", sellerMsgs[0].Buttons)
	}

	// Seller confirms payment: the unit goes to the buyer.
	h.callback(t, sess, token, 9, confirmData)
	buyerMsgs = sess.sentTo(42)
	if len(buyerMsgs) != 2 || !strings.Contains(buyerMsgs[1].Text, "the-only-key") {
		t.Fatalf("unit not delivered: %+v", buyerMsgs)
	}
	if n, _ := h.st.UnitCount(context.Background(), p.ID); n != 0 {
		t.Fatalf("unit not popped, %d left", n)
	}

	// A second confirmation is refused.
	h.callback(t, sess, token, 9, confirmData)
	if sess.lastAck() != msgOrderClosed {
		t.Fatalf("expected closed ack, got %q", sess.lastAck())
	}
}

func TestBuyWithoutPaymentMethods(t *testing.T) {
	h := newHarness(t)
	sess, token := h.workerSurface(t, 9)
	p := h.seedProduct(t, 9, "VPN Key", "k-1")

	h.callback(t, sess, token, 42, fmt.Sprintf("buy:%d", p.ID))
	if sess.lastAck() != msgNoPayment {
		t.Fatalf("expected no-payment ack, got %q", sess.lastAck())
	}
	stats, _ := h.st.SellerStats(context.Background(), 9)
	if stats.Total != 0 {
		t.Fatal("order must not be created without payment methods")
	}
}

func TestBuySoldOut(t *testing.T) {
	h := newHarness(t)
	sess, token := h.workerSurface(t, 9)
	p := h.seedProduct(t, 9, "VPN Key") // no units

	h.callback(t, sess, token, 42, fmt.Sprintf("buy:%d", p.ID))
	if sess.lastAck() != msgSoldOut {
		t.Fatalf("expected sold-out ack, got %q", sess.lastAck())
	}
}

func TestConfirmByNonSellerRefused(t *testing.T) {
	h := newHarness(t)
	h.workerSurface(t, 9)
	if err := h.st.SetPaymentMethod(context.Background(), 9, store.PayBTC, "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"); err != nil {
		t.Fatalf("set payment: %v", err)
	}
	p := h.seedProduct(t, 9, "VPN Key", "k-1")
	order, err := h.st.CreateOrder(context.Background(), 42, 9, p.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// User 42 is not the seller; on the master surface they resolve as
	// owner of their own context, so the handler's seller check must hold.
	h.callback(t, h.master, masterToken, 42, "confirm:"+order.ID)
	if h.master.lastAck() != msgNotAuthorized {
		t.Fatalf("expected refusal, got %q", h.master.lastAck())
	}
	if n, _ := h.st.UnitCount(context.Background(), p.ID); n != 1 {
		t.Fatal("unit must not be popped")
	}
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func TestSettingsMenuTierGates(t *testing.T) {
	h := newHarness(t)
	h.seedProfile(t, 7)

	h.callback(t, h.master, masterToken, 7, "set:menu")
	out := h.master.outbox()
	menu := out[len(out)-1]
	if buttonWithData(menu.Buttons, "pay:"+store.PayPayPal) {
		t.Fatal("standard tier must not see PayPal")
	}
	if !buttonWithData(menu.Buttons, "pay:"+store.PayBTC) {
		t.Fatal("BTC button missing")
	}

	h.elevate(t, 7)
	h.callback(t, h.master, masterToken, 7, "set:menu")
	out = h.master.outbox()
	menu = out[len(out)-1]
	if !buttonWithData(menu.Buttons, "pay:"+store.PayPayPal) {
		t.Fatal("elevated tier must see PayPal")
	}
}

func buttonWithData(rows [][]transport.Button, data string) bool {
	for _, row := range rows {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}

func TestWalletFlow(t *testing.T) {
	h := newHarness(t)
	h.seedProfile(t, 7)

	h.callback(t, h.master, masterToken, 7, "pay:"+store.PayBTC)
	h.message(t, h.master, masterToken, 7, "not-an-address")
	if !strings.Contains(h.master.lastText(), "valid BTC address") {
		t.Fatalf("expected rejection, got %q", h.master.lastText())
	}
	h.message(t, h.master, masterToken, 7, "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2")

	p, _ := h.st.GetProfile(context.Background(), 7)
	if p.WalletBTC != "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2" {
		t.Fatalf("wallet not saved: %q", p.WalletBTC)
	}
}

func TestTokenProvisioning(t *testing.T) {
	h := newHarness(t)
	h.seedProfile(t, 7)

	// Standard tier is refused outright.
	h.callback(t, h.master, masterToken, 7, "set:token")
	if h.master.lastText() != msgElevatedOnly {
		t.Fatalf("expected tier gate, got %q", h.master.lastText())
	}

	h.elevate(t, 7)
	h.seedProduct(t, 7, "VPN Key", "k-1") // triggers the migration offer

	h.callback(t, h.master, masterToken, 7, "set:token")
	h.message(t, h.master, masterToken, 7, "garbage")
	if h.master.lastText() != msgBadTokenFormat {
		t.Fatalf("expected format rejection, got %q", h.master.lastText())
	}

	// Well-formed but rejected by the platform.
	h.message(t, h.master, masterToken, 7, "111111111:"+strings.Repeat("x", 35))
	if h.master.lastText() != msgBadTokenLive {
		t.Fatalf("expected live rejection, got %q", h.master.lastText())
	}

	h.message(t, h.master, masterToken, 7, goodToken)

	p, _ := h.st.GetProfile(context.Background(), 7)
	if p.WorkerToken != goodToken {
		t.Fatalf("token not persisted: %q", p.WorkerToken)
	}
	if len(h.workers.restarts) != 1 || h.workers.restarts[0] != 7 {
		t.Fatalf("worker not restarted: %v", h.workers.restarts)
	}
	out := h.master.outbox()
	var connected, offered bool
	for _, m := range out {
		if strings.Contains(m.Text, "@tenant_shop_bot is live") {
			connected = true
		}
		if strings.Contains(m.Text, "Serve them from your new bot") {
			offered = true
		}
	}
	if !connected || !offered {
		t.Fatalf("connected=%v offered=%v", connected, offered)
	}

	h.callback(t, h.master, masterToken, 7, "migrate:yes")
	p, _ = h.st.GetProfile(context.Background(), 7)
	if !p.MigrationCompleted {
		t.Fatal("migration flag not set")
	}
}

func TestShopLinkSendsQR(t *testing.T) {
	h := newHarness(t)
	p := h.seedProfile(t, 7)

	h.callback(t, h.master, masterToken, 7, "set:link")
	out := h.master.outbox()
	last := out[len(out)-1]
	want := "https://t.me/shopmux_bot?start=" + p.ShopCode
	if !strings.Contains(last.Text, want) {
		t.Fatalf("link missing, got %q want %q", last.Text, want)
	}
	if len(last.Photo) == 0 {
		t.Fatal("expected QR image bytes")
	}
}

// ---------------------------------------------------------------------------
// Upgrade funnel
// ---------------------------------------------------------------------------

func TestUpgradeRequestNotifiesAdmins(t *testing.T) {
	h := newHarness(t)
	h.seedProfile(t, 7)

	h.callback(t, h.master, masterToken, 7, "upgrade:3")
	userMsgs := h.master.sentTo(7)
	if len(userMsgs) != 1 || !strings.Contains(userMsgs[0].Text, "3-month upgrade") {
		t.Fatalf("missing confirmation, got %+v", userMsgs)
	}
	adminMsgs := h.master.sentTo(adminID)
	if len(adminMsgs) != 1 || !strings.Contains(adminMsgs[0].Text, "3 month(s)") {
		t.Fatalf("admin notification wrong: %+v", adminMsgs)
	}
}

func TestUpgradeMenuFromCommand(t *testing.T) {
	h := newHarness(t)
	h.seedProfile(t, 7)
	h.message(t, h.master, masterToken, 7, "/upgrade")
	out := h.master.outbox()
	last := out[len(out)-1]
	if !strings.Contains(last.Text, "Pick a plan") || !buttonWithData(last.Buttons, "upgrade:12") {
		t.Fatalf("unexpected pitch %+v", last)
	}
}
