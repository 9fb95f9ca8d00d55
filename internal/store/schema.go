package store

// Schema is applied on every open; CREATE IF NOT EXISTS keeps it idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	tenant_id INTEGER PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	tier TEXT NOT NULL DEFAULT 'standard',
	expiry DATETIME,
	worker_token TEXT NOT NULL DEFAULT '',
	shop_code TEXT NOT NULL DEFAULT '',
	wallet_btc TEXT NOT NULL DEFAULT '',
	wallet_ltc TEXT NOT NULL DEFAULT '',
	wallet_eth TEXT NOT NULL DEFAULT '',
	wallet_sol TEXT NOT NULL DEFAULT '',
	paypal_email TEXT NOT NULL DEFAULT '',
	migration_completed BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_shop_code ON profiles(shop_code) WHERE shop_code != '';
CREATE INDEX IF NOT EXISTS idx_profiles_worker_token ON profiles(worker_token) WHERE worker_token != '';
CREATE INDEX IF NOT EXISTS idx_profiles_tier ON profiles(tier);

CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price REAL NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT '',
	image_id TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_products_owner ON products(owner_id);
CREATE INDEX IF NOT EXISTS idx_products_owner_category ON products(owner_id, category);

CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	UNIQUE(owner_id, name)
);

CREATE TABLE IF NOT EXISTS inventory_units (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id INTEGER NOT NULL,
	unit TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_inventory_product ON inventory_units(product_id, id);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	buyer_id INTEGER NOT NULL,
	seller_id INTEGER NOT NULL,
	product_id INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_orders_seller ON orders(seller_id);
CREATE INDEX IF NOT EXISTS idx_orders_product ON orders(product_id);
`
