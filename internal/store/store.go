// Package store is the record store behind shopmux: tenant profiles, products,
// categories, orders and per-product inventory units. The orchestration core
// touches only the profile entitlement fields; everything else serves the
// storefront handlers.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Entitlement tiers.
const (
	TierStandard = "standard"
	TierElevated = "elevated"
)

// Order statuses.
const (
	OrderPending   = "pending"
	OrderCompleted = "completed"
)

// Payment method field names accepted by SetPaymentMethod.
const (
	PayBTC    = "wallet_btc"
	PayLTC    = "wallet_ltc"
	PayETH    = "wallet_eth"
	PaySOL    = "wallet_sol"
	PayPayPal = "paypal_email"
)

// Profile is one tenant account.
type Profile struct {
	TenantID           int64      `json:"tenant_id"`
	Username           string     `json:"username"`
	Tier               string     `json:"tier"`
	Expiry             *time.Time `json:"expiry,omitempty"`
	WorkerToken        string     `json:"worker_token,omitempty"`
	ShopCode           string     `json:"shop_code"`
	WalletBTC          string     `json:"wallet_btc,omitempty"`
	WalletLTC          string     `json:"wallet_ltc,omitempty"`
	WalletETH          string     `json:"wallet_eth,omitempty"`
	WalletSOL          string     `json:"wallet_sol,omitempty"`
	PayPalEmail        string     `json:"paypal_email,omitempty"`
	MigrationCompleted bool       `json:"migration_completed"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Elevated reports whether the profile currently holds the elevated tier.
func (p *Profile) Elevated() bool { return p.Tier == TierElevated }

// PaymentMethod returns the stored value for a payment field name.
func (p *Profile) PaymentMethod(field string) string {
	switch field {
	case PayBTC:
		return p.WalletBTC
	case PayLTC:
		return p.WalletLTC
	case PayETH:
		return p.WalletETH
	case PaySOL:
		return p.WalletSOL
	case PayPayPal:
		return p.PayPalEmail
	}
	return ""
}

// Product is one sellable listing.
type Product struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Category    string    `json:"category,omitempty"`
	ImageID     string    `json:"image_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Category groups a tenant's products.
type Category struct {
	ID      int64  `json:"id"`
	OwnerID int64  `json:"owner_id"`
	Name    string `json:"name"`
}

// Order is one purchase attempt.
type Order struct {
	ID        string    `json:"id"`
	BuyerID   int64     `json:"buyer_id"`
	SellerID  int64     `json:"seller_id"`
	ProductID int64     `json:"product_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderStats summarizes a seller's orders.
type OrderStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

// PlatformStats summarizes the whole install for the system admin.
type PlatformStats struct {
	TotalTenants    int `json:"total_tenants"`
	StandardTenants int `json:"standard_tenants"`
	ElevatedTenants int `json:"elevated_tenants"`
	TotalProducts   int `json:"total_products"`
	TotalOrders     int `json:"total_orders"`
}

// ErrNotFound reports that a record does not exist. Never returned for
// backing-store faults; see Unavailable.
var ErrNotFound = errors.New("store: not found")

// ErrNoStock reports that a product's inventory is empty.
var ErrNoStock = errors.New("store: no stock")

// ErrOrderClosed reports a confirmation attempt on an order that is no
// longer pending.
var ErrOrderClosed = errors.New("store: order already closed")

// Unavailable wraps a backing-store fault. Callers must treat it as "could
// not ask", never as "no such record".
type Unavailable struct {
	Op  string
	Err error
}

func (e *Unavailable) Error() string { return fmt.Sprintf("store: %s unavailable: %v", e.Op, e.Err) }
func (e *Unavailable) Unwrap() error { return e.Err }

// IsUnavailable reports whether err wraps an Unavailable fault.
func IsUnavailable(err error) bool {
	var u *Unavailable
	return errors.As(err, &u)
}

// Store is the record service contract.
type Store interface {
	// Profiles.
	GetProfile(ctx context.Context, tenantID int64) (*Profile, error)
	GetProfileByWorkerToken(ctx context.Context, token string) (*Profile, error)
	GetProfileByShopCode(ctx context.Context, code string) (*Profile, error)
	// EnsureProfile creates the profile on first contact and returns it,
	// generating a shop code when missing.
	EnsureProfile(ctx context.Context, tenantID int64, username string) (*Profile, error)
	ListElevated(ctx context.Context) ([]*Profile, error)
	ListByTier(ctx context.Context, tier string) ([]*Profile, error)
	// SetEntitlement sets tier and expiry together. Tier standard clears
	// expiry regardless of the argument.
	SetEntitlement(ctx context.Context, tenantID int64, tier string, expiry *time.Time) error
	// DowngradeExpired atomically downgrades an elevated tenant to standard
	// and clears expiry, but only while the stored expiry is strictly before
	// now: a grant that extends the expiry between scan and downgrade wins.
	// Returns false when nothing changed, which makes repeated reaper passes
	// idempotent.
	DowngradeExpired(ctx context.Context, tenantID int64, now time.Time) (bool, error)
	SetWorkerToken(ctx context.Context, tenantID int64, token string) error
	SetPaymentMethod(ctx context.Context, tenantID int64, field, value string) error
	SetMigrationCompleted(ctx context.Context, tenantID int64, done bool) error

	// Products.
	AddProduct(ctx context.Context, p *Product) (*Product, error)
	GetProduct(ctx context.Context, productID int64) (*Product, error)
	ListProducts(ctx context.Context, ownerID int64, category string) ([]*Product, error)
	UpdateProduct(ctx context.Context, productID, ownerID int64, fields map[string]any) error
	DeleteProduct(ctx context.Context, productID, ownerID int64) error
	CountProducts(ctx context.Context, ownerID int64) (int, error)

	// Categories.
	ListCategories(ctx context.Context, ownerID int64) ([]*Category, error)
	CreateCategory(ctx context.Context, ownerID int64, name string) (*Category, error)
	DeleteCategory(ctx context.Context, categoryID, ownerID int64) error

	// Inventory: an ordered FIFO of opaque units per product.
	RefillUnits(ctx context.Context, productID, ownerID int64, units []string) (int, error)
	UnitCount(ctx context.Context, productID int64) (int, error)

	// Orders.
	CreateOrder(ctx context.Context, buyerID, sellerID, productID int64) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	// ConfirmOrder marks the order completed and pops exactly one inventory
	// unit, atomically: two confirmations racing for the last unit cannot
	// both succeed. Returns ErrNoStock when the inventory is empty.
	ConfirmOrder(ctx context.Context, orderID string) (string, error)
	CustomerIDs(ctx context.Context, sellerID int64) ([]int64, error)
	SellerStats(ctx context.Context, sellerID int64) (*OrderStats, error)
	Stats(ctx context.Context) (*PlatformStats, error)

	Close() error
}
