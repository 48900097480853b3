package sqlstore

// Money columns hold exact decimals: NUMERIC on Postgres, TEXT on SQLite.
// Timestamps are stored as RFC 3339 text in UTC on both.

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS categories_name_ci ON categories (lower(name))`,
	`CREATE TABLE IF NOT EXISTS tax_rates (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		rate NUMERIC NOT NULL CHECK (rate >= 0)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tax_rates_name_ci ON tax_rates (lower(name))`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		price NUMERIC NOT NULL CHECK (price >= 0),
		purchased_price NUMERIC NOT NULL CHECK (purchased_price >= 0),
		stock INTEGER NOT NULL CHECK (stock >= 0),
		expiry_date TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id BIGINT PRIMARY KEY,
		sold_at TEXT NOT NULL,
		subtotal NUMERIC NOT NULL,
		tax_amount NUMERIC NOT NULL,
		tax_rate NUMERIC NOT NULL,
		tax_name TEXT NOT NULL,
		profit NUMERIC NOT NULL,
		total NUMERIC NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		sale_id BIGINT NOT NULL REFERENCES sales(id),
		line_no INTEGER NOT NULL,
		product_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		price NUMERIC NOT NULL,
		purchased_price NUMERIC NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		PRIMARY KEY (sale_id, line_no)
	)`,
	`CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS categories_name_ci ON categories (lower(name))`,
	`CREATE TABLE IF NOT EXISTS tax_rates (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		rate TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tax_rates_name_ci ON tax_rates (lower(name))`,
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		price TEXT NOT NULL,
		purchased_price TEXT NOT NULL,
		stock INTEGER NOT NULL CHECK (stock >= 0),
		expiry_date TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY,
		sold_at TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		tax_amount TEXT NOT NULL,
		tax_rate TEXT NOT NULL,
		tax_name TEXT NOT NULL,
		profit TEXT NOT NULL,
		total TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		sale_id INTEGER NOT NULL REFERENCES sales(id),
		line_no INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		purchased_price TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		PRIMARY KEY (sale_id, line_no)
	)`,
	`CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
}
