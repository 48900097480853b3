// Package sqlstore persists the catalog and sales log in Postgres (pgx) or
// SQLite through sqlx. Writes are serialised by a process-wide mutex and run
// in a database transaction, so a sale commit validates and applies against
// the same snapshot.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"pharmasys/internal/checkout"
	"pharmasys/internal/domain"
	"pharmasys/internal/store"
	"pharmasys/internal/store/seed"
)

type Dialect string

const (
	Postgres Dialect = "pgx"
	SQLite   Dialect = "sqlite"
)

type Options struct {
	Dialect Dialect
	DSN     string
	// Seed loads the demo catalog when the database holds no categories,
	// tax rates or products yet.
	Seed bool
}

type Store struct {
	db      *sqlx.DB
	dialect Dialect
	mu      sync.Mutex
}

const productColumns = `id, name, category, price, purchased_price, stock, expiry_date`

func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Dialect != Postgres && opts.Dialect != SQLite {
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q", opts.Dialect)
	}
	db, err := sqlx.Open(string(opts.Dialect), opts.DSN)
	if err != nil {
		return nil, err
	}

	if opts.Dialect == SQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(8)
		db.SetMaxOpenConns(30)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, dialect: opts.Dialect}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	if opts.Seed {
		if err := s.seed(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlstore: seed: %w", err)
		}
	}
	if err := s.ensureTaxRate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == Postgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO store_meta (key, value) VALUES ('revision', 0)
		ON CONFLICT (key) DO NOTHING
	`))
	return err
}

func (s *Store) seed(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var existing int
		if err := tx.GetContext(ctx, &existing, `
			SELECT (SELECT COUNT(*) FROM categories) + (SELECT COUNT(*) FROM tax_rates) + (SELECT COUNT(*) FROM products)
		`); err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}
		for _, c := range seed.Categories() {
			if err := insertCategory(ctx, tx, c); err != nil {
				return err
			}
		}
		for _, t := range seed.TaxRates() {
			if err := insertTaxRate(ctx, tx, t); err != nil {
				return err
			}
		}
		for _, p := range seed.Products() {
			if err := insertProduct(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ensureTaxRate(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var count int
		if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM tax_rates`); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return insertTaxRate(ctx, tx, domain.TaxRate{ID: 1, Name: "Exempt", Rate: decimal.Zero})
	})
}

func (s *Store) Revision(ctx context.Context) (int64, error) {
	var rev int64
	err := s.db.GetContext(ctx, &rev, `SELECT value FROM store_meta WHERE key = 'revision'`)
	return rev, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	if err := s.db.SelectContext(ctx, &products, `SELECT `+productColumns+` FROM products ORDER BY id`); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	err := s.db.GetContext(ctx, &product, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ProductNotFound(id)
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		normalized, err := normalizeProduct(ctx, tx, product)
		if err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &normalized.ID, `SELECT COALESCE(MAX(id), 0) + 1 FROM products`); err != nil {
			return err
		}
		if err := insertProduct(ctx, tx, normalized); err != nil {
			return err
		}
		product = normalized
		return bumpRevision(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM products WHERE id = ?`), product.ID); err != nil {
			return err
		}
		if exists == 0 {
			return store.ProductNotFound(product.ID)
		}
		normalized, err := normalizeProduct(ctx, tx, product)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE products
			SET name = ?, category = ?, price = ?, purchased_price = ?, stock = ?, expiry_date = ?
			WHERE id = ?
		`), normalized.Name, normalized.Category, normalized.Price, normalized.PurchasedPrice, normalized.Stock, normalized.ExpiryDate, normalized.ID)
		if err != nil {
			return err
		}
		if err := expectAffected(res, store.ProductNotFound(product.ID)); err != nil {
			return err
		}
		product = normalized
		return bumpRevision(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM products WHERE id = ?`), id)
		if err != nil {
			return err
		}
		if err := expectAffected(res, store.ProductNotFound(id)); err != nil {
			return err
		}
		return bumpRevision(ctx, tx)
	})
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return listCategories(ctx, s.db)
}

func (s *Store) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	var created domain.Category
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		name = store.NormalizeName(name)
		if name == "" {
			return fmt.Errorf("%w: category name is required", store.ErrInvalidInput)
		}
		categories, err := listCategories(ctx, tx)
		if err != nil {
			return err
		}
		if store.CategoryNameTaken(categories, name, 0) {
			return fmt.Errorf("category %q: %w", name, store.ErrDuplicateName)
		}
		created = domain.Category{ID: store.NextID(categoryIDs(categories)...), Name: name}
		if err := insertCategory(ctx, tx, created); err != nil {
			return err
		}
		return bumpRevision(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) RenameCategory(ctx context.Context, id int64, name string) (*domain.Category, error) {
	var renamed domain.Category
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		name = store.NormalizeName(name)
		if name == "" {
			return fmt.Errorf("%w: category name is required", store.ErrInvalidInput)
		}
		categories, err := listCategories(ctx, tx)
		if err != nil {
			return err
		}
		var current *domain.Category
		for i := range categories {
			if categories[i].ID == id {
				current = &categories[i]
			}
		}
		if current == nil {
			return store.CategoryNotFound(id)
		}
		if store.CategoryNameTaken(categories, name, id) {
			return fmt.Errorf("category %q: %w", name, store.ErrDuplicateName)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE products SET category = ? WHERE lower(category) = lower(?)`), name, current.Name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE categories SET name = ? WHERE id = ?`), name, id); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("category %q: %w", name, store.ErrDuplicateName)
			}
			return err
		}
		renamed = domain.Category{ID: id, Name: name}
		return bumpRevision(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return &renamed, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var current domain.Category
		if err := tx.GetContext(ctx, &current, tx.Rebind(`SELECT id, name FROM categories WHERE id = ?`), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.CategoryNotFound(id)
			}
			return err
		}
		var inUse int
		if err := tx.GetContext(ctx, &inUse, tx.Rebind(`SELECT COUNT(*) FROM products WHERE lower(category) = lower(?)`), current.Name); err != nil {
			return err
		}
		if inUse > 0 {
			return fmt.Errorf("category %q: %w", current.Name, store.ErrCategoryInUse)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM categories WHERE id = ?`), id); err != nil {
			return err
		}
		return bumpRevision(ctx, tx)
	})
}

func (s *Store) ListTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	return listTaxRates(ctx, s.db)
}

func (s *Store) GetTaxRate(ctx context.Context, id int64) (*domain.TaxRate, error) {
	var tax domain.TaxRate
	err := s.db.GetContext(ctx, &tax, s.db.Rebind(`SELECT id, name, rate FROM tax_rates WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.TaxRateNotFound(id)
		}
		return nil, err
	}
	return &tax, nil
}

func (s *Store) CreateTaxRate(ctx context.Context, tax domain.TaxRate) (*domain.TaxRate, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		tax.Name = store.NormalizeName(tax.Name)
		if err := store.ValidateTaxRate(tax); err != nil {
			return err
		}
		taxes, err := listTaxRates(ctx, tx)
		if err != nil {
			return err
		}
		if store.TaxNameTaken(taxes, tax.Name, 0) {
			return fmt.Errorf("tax rate %q: %w", tax.Name, store.ErrDuplicateName)
		}
		tax.ID = store.NextID(taxIDs(taxes)...)
		if err := insertTaxRate(ctx, tx, tax); err != nil {
			return err
		}
		return bumpRevision(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return &tax, nil
}

func (s *Store) UpdateTaxRate(ctx context.Context, tax domain.TaxRate) (*domain.TaxRate, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		tax.Name = store.NormalizeName(tax.Name)
		if err := store.ValidateTaxRate(tax); err != nil {
			return err
		}
		taxes, err := listTaxRates(ctx, tx)
		if err != nil {
			return err
		}
		if store.TaxNameTaken(taxes, tax.Name, tax.ID) {
			return fmt.Errorf("tax rate %q: %w", tax.Name, store.ErrDuplicateName)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tax_rates SET name = ?, rate = ? WHERE id = ?`), tax.Name, tax.Rate, tax.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("tax rate %q: %w", tax.Name, store.ErrDuplicateName)
			}
			return err
		}
		if err := expectAffected(res, store.TaxRateNotFound(tax.ID)); err != nil {
			return err
		}
		return bumpRevision(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return &tax, nil
}

func (s *Store) DeleteTaxRate(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		taxes, err := listTaxRates(ctx, tx)
		if err != nil {
			return err
		}
		found := false
		for _, t := range taxes {
			if t.ID == id {
				found = true
			}
		}
		if !found {
			return store.TaxRateNotFound(id)
		}
		if len(taxes) <= 1 {
			return store.ErrLastTaxRate
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM tax_rates WHERE id = ?`), id); err != nil {
			return err
		}
		return bumpRevision(ctx, tx)
	})
}

type saleRow struct {
	ID        int64           `db:"id"`
	SoldAt    string          `db:"sold_at"`
	Subtotal  decimal.Decimal `db:"subtotal"`
	TaxAmount decimal.Decimal `db:"tax_amount"`
	TaxRate   decimal.Decimal `db:"tax_rate"`
	TaxName   string          `db:"tax_name"`
	Profit    decimal.Decimal `db:"profit"`
	Total     decimal.Decimal `db:"total"`
}

type saleItemRow struct {
	SaleID int64 `db:"sale_id"`
	domain.SaleItem
}

const (
	saleColumns     = `id, sold_at, subtotal, tax_amount, tax_rate, tax_name, profit, total`
	saleItemColumns = `sale_id, product_id, name, price, purchased_price, quantity`
)

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows := make([]saleRow, 0, 64)
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+saleColumns+` FROM sales ORDER BY id`); err != nil {
		return nil, err
	}
	items := make([]saleItemRow, 0, 128)
	if err := s.db.SelectContext(ctx, &items, `SELECT `+saleItemColumns+` FROM sale_items ORDER BY sale_id, line_no`); err != nil {
		return nil, err
	}
	return assembleSales(rows, items)
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	var row saleRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+saleColumns+` FROM sales WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.SaleNotFound(id)
		}
		return nil, err
	}
	items := make([]saleItemRow, 0, 8)
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(`SELECT `+saleItemColumns+` FROM sale_items WHERE sale_id = ? ORDER BY line_no`), id); err != nil {
		return nil, err
	}
	sales, err := assembleSales([]saleRow{row}, items)
	if err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) CommitSale(ctx context.Context, items []domain.CartItem, tax domain.TaxRate, at time.Time) (*domain.Sale, error) {
	if err := checkout.ValidateCart(items, tax); err != nil {
		return nil, err
	}

	var sale domain.Sale
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		ids := checkout.ProductIDs(items)

		query, args, err := sqlx.In(`SELECT `+productColumns+` FROM products WHERE id IN (?) ORDER BY id`+s.lockClause(), ids)
		if err != nil {
			return err
		}
		products := make([]domain.Product, 0, len(ids))
		if err := tx.SelectContext(ctx, &products, tx.Rebind(query), args...); err != nil {
			return err
		}
		live := make(map[int64]domain.Product, len(products))
		for _, p := range products {
			live[p.ID] = p
		}

		plan, err := checkout.Prepare(items, tax, live)
		if err != nil {
			return err
		}

		for _, p := range checkout.Apply(plan, products) {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE products SET stock = ? WHERE id = ?`), p.Stock, p.ID); err != nil {
				return err
			}
		}

		var next int64
		if err := tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(id), 0) + 1 FROM sales`); err != nil {
			return err
		}
		sale = checkout.BuildSale(next, at, plan, tax)

		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO sales (`+saleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`), sale.ID, sale.Date.Format(time.RFC3339Nano), sale.Subtotal, sale.TaxAmount, sale.TaxRate, sale.TaxName, sale.Profit, sale.Total); err != nil {
			return err
		}
		for i, item := range sale.Items {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO sale_items (sale_id, line_no, product_id, name, price, purchased_price, quantity)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`), sale.ID, i+1, item.ProductID, item.Name, item.Price, item.PurchasedPrice, item.Quantity); err != nil {
				return err
			}
		}
		return bumpRevision(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// withTx runs fn in a transaction while holding the store's write lock.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var opts *sql.TxOptions
	if s.dialect == Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) lockClause() string {
	if s.dialect == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

func normalizeProduct(ctx context.Context, tx *sqlx.Tx, product domain.Product) (domain.Product, error) {
	product.Name = store.NormalizeName(product.Name)
	if err := store.ValidateProduct(product); err != nil {
		return domain.Product{}, err
	}
	categories, err := listCategories(ctx, tx)
	if err != nil {
		return domain.Product{}, err
	}
	category, err := store.ResolveCategory(categories, product.Category)
	if err != nil {
		return domain.Product{}, err
	}
	product.Category = category
	return product, nil
}

func listCategories(ctx context.Context, q sqlx.QueryerContext) ([]domain.Category, error) {
	categories := make([]domain.Category, 0, 16)
	if err := sqlx.SelectContext(ctx, q, &categories, `SELECT id, name FROM categories ORDER BY id`); err != nil {
		return nil, err
	}
	return categories, nil
}

func listTaxRates(ctx context.Context, q sqlx.QueryerContext) ([]domain.TaxRate, error) {
	taxes := make([]domain.TaxRate, 0, 8)
	if err := sqlx.SelectContext(ctx, q, &taxes, `SELECT id, name, rate FROM tax_rates ORDER BY id`); err != nil {
		return nil, err
	}
	return taxes, nil
}

func insertCategory(ctx context.Context, tx *sqlx.Tx, c domain.Category) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO categories (id, name) VALUES (?, ?)`), c.ID, c.Name)
	if isUniqueViolation(err) {
		return fmt.Errorf("category %q: %w", c.Name, store.ErrDuplicateName)
	}
	return err
}

func insertTaxRate(ctx context.Context, tx *sqlx.Tx, t domain.TaxRate) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO tax_rates (id, name, rate) VALUES (?, ?, ?)`), t.ID, t.Name, t.Rate)
	if isUniqueViolation(err) {
		return fmt.Errorf("tax rate %q: %w", t.Name, store.ErrDuplicateName)
	}
	return err
}

func insertProduct(ctx context.Context, tx *sqlx.Tx, p domain.Product) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), p.ID, p.Name, p.Category, p.Price, p.PurchasedPrice, p.Stock, p.ExpiryDate)
	return err
}

func bumpRevision(ctx context.Context, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `UPDATE store_meta SET value = value + 1 WHERE key = 'revision'`)
	return err
}

func assembleSales(rows []saleRow, items []saleItemRow) ([]domain.Sale, error) {
	bySale := make(map[int64][]domain.SaleItem, len(rows))
	for _, item := range items {
		bySale[item.SaleID] = append(bySale[item.SaleID], item.SaleItem)
	}

	sales := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		soldAt, err := time.Parse(time.RFC3339Nano, row.SoldAt)
		if err != nil {
			return nil, fmt.Errorf("sale %d: bad timestamp %q: %w", row.ID, row.SoldAt, err)
		}
		saleItems := bySale[row.ID]
		if saleItems == nil {
			saleItems = []domain.SaleItem{}
		}
		sales = append(sales, domain.Sale{
			ID:        row.ID,
			Date:      soldAt.UTC(),
			Items:     saleItems,
			Subtotal:  row.Subtotal,
			TaxAmount: row.TaxAmount,
			TaxRate:   row.TaxRate,
			TaxName:   row.TaxName,
			Profit:    row.Profit,
			Total:     row.Total,
		})
	}
	return sales, nil
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func categoryIDs(categories []domain.Category) []int64 {
	ids := make([]int64, 0, len(categories))
	for _, c := range categories {
		ids = append(ids, c.ID)
	}
	return ids
}

func taxIDs(taxes []domain.TaxRate) []int64 {
	ids := make([]int64, 0, len(taxes))
	for _, t := range taxes {
		ids = append(ids, t.ID)
	}
	return ids
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
