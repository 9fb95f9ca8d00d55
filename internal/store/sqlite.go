package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const shopCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (and creates, if needed) the database at dbPath and applies the
// schema.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// OpenDB wraps an existing database handle. The schema is applied; the caller
// keeps ownership of db's lifetime only until Close is called on the store.
func OpenDB(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("apply store schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// DB exposes the underlying handle for diagnostics and tests.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func unavailable(op string, err error) error { return &Unavailable{Op: op, Err: err} }

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

const profileColumns = `tenant_id, username, tier, expiry, worker_token, shop_code,
	wallet_btc, wallet_ltc, wallet_eth, wallet_sol, paypal_email, migration_completed, created_at`

func scanProfile(row interface{ Scan(...any) error }) (*Profile, error) {
	var p Profile
	var expiry sql.NullTime
	err := row.Scan(&p.TenantID, &p.Username, &p.Tier, &expiry, &p.WorkerToken, &p.ShopCode,
		&p.WalletBTC, &p.WalletLTC, &p.WalletETH, &p.WalletSOL, &p.PayPalEmail,
		&p.MigrationCompleted, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		t := expiry.Time.UTC()
		p.Expiry = &t
	}
	return &p, nil
}

func (s *SQLiteStore) getProfileWhere(ctx context.Context, op, where string, args ...any) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE `+where, args...)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(op, err)
	}
	return p, nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, tenantID int64) (*Profile, error) {
	return s.getProfileWhere(ctx, "get profile", "tenant_id = ?", tenantID)
}

func (s *SQLiteStore) GetProfileByWorkerToken(ctx context.Context, token string) (*Profile, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotFound
	}
	return s.getProfileWhere(ctx, "get profile by token", "worker_token = ?", token)
}

func (s *SQLiteStore) GetProfileByShopCode(ctx context.Context, code string) (*Profile, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrNotFound
	}
	return s.getProfileWhere(ctx, "get profile by shop code", "shop_code = ?", code)
}

func (s *SQLiteStore) EnsureProfile(ctx context.Context, tenantID int64, username string) (*Profile, error) {
	p, err := s.GetProfile(ctx, tenantID)
	switch {
	case err == nil:
		if p.ShopCode == "" {
			// Older rows may predate shop codes; backfill on read.
			code, err := s.uniqueShopCode(ctx)
			if err != nil {
				return nil, err
			}
			if _, err := s.db.ExecContext(ctx, `UPDATE profiles SET shop_code = ? WHERE tenant_id = ?`, code, tenantID); err != nil {
				return nil, unavailable("assign shop code", err)
			}
			p.ShopCode = code
		}
		return p, nil
	case errors.Is(err, ErrNotFound):
		code, err := s.uniqueShopCode(ctx)
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO profiles (tenant_id, username, tier, shop_code) VALUES (?, ?, ?, ?)`,
			tenantID, username, TierStandard, code)
		if err != nil {
			return nil, unavailable("create profile", err)
		}
		return s.GetProfile(ctx, tenantID)
	default:
		return nil, err
	}
}

func (s *SQLiteStore) uniqueShopCode(ctx context.Context) (string, error) {
	for range 10 {
		code, err := shopCode(6)
		if err != nil {
			return "", unavailable("generate shop code", err)
		}
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM profiles WHERE shop_code = ?`, code).Scan(&n); err != nil {
			return "", unavailable("check shop code", err)
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", unavailable("generate shop code", errors.New("exhausted attempts"))
}

func shopCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = shopCodeAlphabet[int(b)%len(shopCodeAlphabet)]
	}
	return string(out), nil
}

func (s *SQLiteStore) ListElevated(ctx context.Context) ([]*Profile, error) {
	return s.ListByTier(ctx, TierElevated)
}

func (s *SQLiteStore) ListByTier(ctx context.Context, tier string) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE tier = ? ORDER BY tenant_id`, tier)
	if err != nil {
		return nil, unavailable("list by tier", err)
	}
	defer rows.Close()
	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, unavailable("list by tier", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list by tier", err)
	}
	return out, nil
}

func (s *SQLiteStore) SetEntitlement(ctx context.Context, tenantID int64, tier string, expiry *time.Time) error {
	if tier != TierStandard && tier != TierElevated {
		return fmt.Errorf("unknown tier %q", tier)
	}
	var exp sql.NullTime
	if tier == TierElevated && expiry != nil {
		exp = sql.NullTime{Time: expiry.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET tier = ?, expiry = ? WHERE tenant_id = ?`,
		tier, exp, tenantID)
	if err != nil {
		return unavailable("set entitlement", err)
	}
	return requireAffected(res, "set entitlement")
}

func (s *SQLiteStore) DowngradeExpired(ctx context.Context, tenantID int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET tier = ?, expiry = NULL WHERE tenant_id = ? AND tier = ? AND expiry IS NOT NULL AND expiry < ?`,
		TierStandard, tenantID, TierElevated, now.UTC())
	if err != nil {
		return false, unavailable("downgrade tenant", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("downgrade tenant", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) SetWorkerToken(ctx context.Context, tenantID int64, token string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET worker_token = ? WHERE tenant_id = ?`, token, tenantID)
	if err != nil {
		return unavailable("set worker token", err)
	}
	return requireAffected(res, "set worker token")
}

func (s *SQLiteStore) SetPaymentMethod(ctx context.Context, tenantID int64, field, value string) error {
	switch field {
	case PayBTC, PayLTC, PayETH, PaySOL, PayPayPal:
	default:
		return fmt.Errorf("unknown payment field %q", field)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET `+field+` = ? WHERE tenant_id = ?`, value, tenantID)
	if err != nil {
		return unavailable("set payment method", err)
	}
	return requireAffected(res, "set payment method")
}

func (s *SQLiteStore) SetMigrationCompleted(ctx context.Context, tenantID int64, done bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET migration_completed = ? WHERE tenant_id = ?`, done, tenantID)
	if err != nil {
		return unavailable("set migration flag", err)
	}
	return requireAffected(res, "set migration flag")
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

func (s *SQLiteStore) AddProduct(ctx context.Context, p *Product) (*Product, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (owner_id, name, description, price, category, image_id) VALUES (?, ?, ?, ?, ?, ?)`,
		p.OwnerID, p.Name, p.Description, p.Price, p.Category, p.ImageID)
	if err != nil {
		return nil, unavailable("add product", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, unavailable("add product", err)
	}
	return s.GetProduct(ctx, id)
}

func (s *SQLiteStore) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, description, price, category, image_id, created_at FROM products WHERE id = ?`,
		productID)
	var p Product
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Price, &p.Category, &p.ImageID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get product", err)
	}
	return &p, nil
}

func (s *SQLiteStore) ListProducts(ctx context.Context, ownerID int64, category string) ([]*Product, error) {
	query := `SELECT id, owner_id, name, description, price, category, image_id, created_at
		FROM products WHERE owner_id = ?`
	args := []any{ownerID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list products", err)
	}
	defer rows.Close()
	var out []*Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Price, &p.Category, &p.ImageID, &p.CreatedAt); err != nil {
			return nil, unavailable("list products", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list products", err)
	}
	return out, nil
}

var productFields = map[string]bool{
	"name": true, "description": true, "price": true, "category": true, "image_id": true,
}

func (s *SQLiteStore) UpdateProduct(ctx context.Context, productID, ownerID int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	var sets []string
	var args []any
	for k, v := range fields {
		if !productFields[k] {
			return fmt.Errorf("unknown product field %q", k)
		}
		sets = append(sets, k+" = ?")
		args = append(args, v)
	}
	args = append(args, productID, ownerID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET `+strings.Join(sets, ", ")+` WHERE id = ? AND owner_id = ?`, args...)
	if err != nil {
		return unavailable("update product", err)
	}
	return requireAffected(res, "update product")
}

func (s *SQLiteStore) DeleteProduct(ctx context.Context, productID, ownerID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("delete product", err)
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ? AND owner_id = ?`, productID, ownerID)
	if err != nil {
		return unavailable("delete product", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete product", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_units WHERE product_id = ?`, productID); err != nil {
		return unavailable("delete product", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE product_id = ?`, productID); err != nil {
		return unavailable("delete product", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("delete product", err)
	}
	return nil
}

func (s *SQLiteStore) CountProducts(ctx context.Context, ownerID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM products WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, unavailable("count products", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

func (s *SQLiteStore) ListCategories(ctx context.Context, ownerID int64) ([]*Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, name FROM categories WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, unavailable("list categories", err)
	}
	defer rows.Close()
	var out []*Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name); err != nil {
			return nil, unavailable("list categories", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list categories", err)
	}
	return out, nil
}

func (s *SQLiteStore) CreateCategory(ctx context.Context, ownerID int64, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty category name")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO categories (owner_id, name) VALUES (?, ?)`, ownerID, name)
	if err != nil {
		return nil, unavailable("create category", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, unavailable("create category", err)
	}
	return &Category{ID: id, OwnerID: ownerID, Name: name}, nil
}

func (s *SQLiteStore) DeleteCategory(ctx context.Context, categoryID, ownerID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("delete category", err)
	}
	defer tx.Rollback()
	var name string
	err = tx.QueryRowContext(ctx, `SELECT name FROM categories WHERE id = ? AND owner_id = ?`, categoryID, ownerID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return unavailable("delete category", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, categoryID); err != nil {
		return unavailable("delete category", err)
	}
	// Orphaned products fall back to uncategorized.
	if _, err := tx.ExecContext(ctx, `UPDATE products SET category = '' WHERE owner_id = ? AND category = ?`, ownerID, name); err != nil {
		return unavailable("delete category", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("delete category", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

func (s *SQLiteStore) RefillUnits(ctx context.Context, productID, ownerID int64, units []string) (int, error) {
	var cleaned []string
	for _, u := range units {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	if len(cleaned) == 0 {
		return 0, nil
	}
	var owner int64
	err := s.db.QueryRowContext(ctx, `SELECT owner_id FROM products WHERE id = ?`, productID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, unavailable("refill units", err)
	}
	if owner != ownerID {
		return 0, ErrNotFound
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("refill units", err)
	}
	defer tx.Rollback()
	for _, u := range cleaned {
		if _, err := tx.ExecContext(ctx, `INSERT INTO inventory_units (product_id, unit) VALUES (?, ?)`, productID, u); err != nil {
			return 0, unavailable("refill units", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("refill units", err)
	}
	return len(cleaned), nil
}

func (s *SQLiteStore) UnitCount(ctx context.Context, productID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM inventory_units WHERE product_id = ?`, productID).Scan(&n); err != nil {
		return 0, unavailable("count units", err)
	}
	return n, nil
}

// popUnit removes and returns the oldest unit for a product. The delete is
// guarded by rows-affected so two concurrent pops can never hand out the same
// unit: the loser sees zero rows and moves on to the next head.
func (s *SQLiteStore) popUnit(ctx context.Context, productID int64) (string, error) {
	for {
		var id int64
		var unit string
		err := s.db.QueryRowContext(ctx,
			`SELECT id, unit FROM inventory_units WHERE product_id = ? ORDER BY id LIMIT 1`, productID).Scan(&id, &unit)
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNoStock
		}
		if err != nil {
			return "", unavailable("pop unit", err)
		}
		res, err := s.db.ExecContext(ctx, `DELETE FROM inventory_units WHERE id = ?`, id)
		if err != nil {
			return "", unavailable("pop unit", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return "", unavailable("pop unit", err)
		}
		if n == 1 {
			return unit, nil
		}
	}
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

func (s *SQLiteStore) CreateOrder(ctx context.Context, buyerID, sellerID, productID int64) (*Order, error) {
	o := &Order{
		ID:        uuid.NewString(),
		BuyerID:   buyerID,
		SellerID:  sellerID,
		ProductID: productID,
		Status:    OrderPending,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, buyer_id, seller_id, product_id, status) VALUES (?, ?, ?, ?, ?)`,
		o.ID, o.BuyerID, o.SellerID, o.ProductID, o.Status)
	if err != nil {
		return nil, unavailable("create order", err)
	}
	return s.GetOrder(ctx, o.ID)
}

func (s *SQLiteStore) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, buyer_id, seller_id, product_id, status, created_at FROM orders WHERE id = ?`, orderID)
	var o Order
	err := row.Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.ProductID, &o.Status, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get order", err)
	}
	return &o, nil
}

func (s *SQLiteStore) ConfirmOrder(ctx context.Context, orderID string) (string, error) {
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	// Claim the order first; the status flip is the gate that stops two
	// confirmations from popping two units for one order.
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status = ?`, OrderCompleted, orderID, OrderPending)
	if err != nil {
		return "", unavailable("confirm order", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", unavailable("confirm order", err)
	}
	if n == 0 {
		return "", ErrOrderClosed
	}
	unit, err := s.popUnit(ctx, o.ProductID)
	if err != nil {
		// Nothing was delivered; reopen so the seller can retry after a
		// refill. A failed reopen leaves the order stuck completed, which
		// must surface rather than vanish.
		if _, rerr := s.db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, OrderPending, orderID); rerr != nil {
			return "", unavailable("reopen order", rerr)
		}
		return "", err
	}
	return unit, nil
}

func (s *SQLiteStore) CustomerIDs(ctx context.Context, sellerID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT buyer_id FROM orders WHERE seller_id = ?`, sellerID)
	if err != nil {
		return nil, unavailable("list customers", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("list customers", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list customers", err)
	}
	return out, nil
}

func (s *SQLiteStore) SellerStats(ctx context.Context, sellerID int64) (*OrderStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM orders WHERE seller_id = ? GROUP BY status`, sellerID)
	if err != nil {
		return nil, unavailable("seller stats", err)
	}
	defer rows.Close()
	stats := &OrderStats{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, unavailable("seller stats", err)
		}
		stats.Total += n
		switch status {
		case OrderPending:
			stats.Pending = n
		case OrderCompleted:
			stats.Completed = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("seller stats", err)
	}
	return stats, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*PlatformStats, error) {
	stats := &PlatformStats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM profiles`).Scan(&stats.TotalTenants); err != nil {
		return nil, unavailable("platform stats", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM profiles WHERE tier = ?`, TierElevated).Scan(&stats.ElevatedTenants); err != nil {
		return nil, unavailable("platform stats", err)
	}
	stats.StandardTenants = stats.TotalTenants - stats.ElevatedTenants
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM products`).Scan(&stats.TotalProducts); err != nil {
		return nil, unavailable("platform stats", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM orders`).Scan(&stats.TotalOrders); err != nil {
		return nil, unavailable("platform stats", err)
	}
	return stats, nil
}
