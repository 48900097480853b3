package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmasys/internal/cart"
	"pharmasys/internal/domain"
	"pharmasys/internal/export"
	"pharmasys/internal/logx"
	"pharmasys/internal/metrics"
	"pharmasys/internal/store"
)

const (
	defaultExpiryAlertLimit = 5
	maxExpiryAlertLimit     = 100
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	metrics *metrics.Engine
	loc     *time.Location
	now     func() time.Time
}

func New(repo store.Repository, engine *metrics.Engine, loc *time.Location) *Service {
	if engine == nil {
		engine = metrics.NewEngine(nil, 0, "")
	}
	if loc == nil {
		loc = time.Local
	}

	return &Service{
		repo:    repo,
		metrics: engine,
		loc:     loc,
		now:     time.Now,
	}
}

// Now is the service clock in the configured store timezone.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductRequest) (domain.Product, error) {
	created, err := s.repo.CreateProduct(ctx, productFromRequest(0, req))
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,stock=%d", created.Name, created.Stock))
	return *created, nil
}

// UpdateProduct replaces every editable field of the product.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductRequest) (domain.Product, error) {
	saved, err := s.repo.UpdateProduct(ctx, productFromRequest(id, req))
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("price=%s,stock=%d", saved.Price, saved.Stock))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryRequest) (domain.Category, error) {
	created, err := s.repo.CreateCategory(ctx, req.Name)
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category_create", "category", created.ID, created.Name)
	return *created, nil
}

// RenameCategory also moves every product filed under the old name.
func (s *Service) RenameCategory(ctx context.Context, id int64, req domain.CategoryRequest) (domain.Category, error) {
	renamed, err := s.repo.RenameCategory(ctx, id, req.Name)
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category_rename", "category", renamed.ID, renamed.Name)
	return *renamed, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "category_delete", "category", id, "")
	return nil
}

func (s *Service) ListTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	return s.repo.ListTaxRates(ctx)
}

func (s *Service) CreateTaxRate(ctx context.Context, req domain.TaxRateRequest) (domain.TaxRate, error) {
	created, err := s.repo.CreateTaxRate(ctx, domain.TaxRate{Name: req.Name, Rate: req.Rate})
	if err != nil {
		return domain.TaxRate{}, err
	}
	s.logAudit(ctx, "tax_rate_create", "tax_rate", created.ID, fmt.Sprintf("name=%s,rate=%s", created.Name, created.Rate))
	return *created, nil
}

func (s *Service) UpdateTaxRate(ctx context.Context, id int64, req domain.TaxRateRequest) (domain.TaxRate, error) {
	saved, err := s.repo.UpdateTaxRate(ctx, domain.TaxRate{ID: id, Name: req.Name, Rate: req.Rate})
	if err != nil {
		return domain.TaxRate{}, err
	}
	s.logAudit(ctx, "tax_rate_update", "tax_rate", saved.ID, fmt.Sprintf("name=%s,rate=%s", saved.Name, saved.Rate))
	return *saved, nil
}

func (s *Service) DeleteTaxRate(ctx context.Context, id int64) error {
	if err := s.repo.DeleteTaxRate(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "tax_rate_delete", "tax_rate", id, "")
	return nil
}

// QuoteCart prices a cart against the current catalog without touching stock.
// Lines naming the same product are merged; a line over the visible stock is
// rejected the same way the register refuses to add it.
func (s *Service) QuoteCart(ctx context.Context, req domain.CheckoutRequest) (domain.CartQuote, error) {
	tax, err := s.resolveTaxRate(ctx, req.TaxRateID)
	if err != nil {
		return domain.CartQuote{}, err
	}
	c, err := s.buildCart(ctx, req.Items)
	if err != nil {
		return domain.CartQuote{}, err
	}
	return quoteOf(c, tax), nil
}

// EditCart rebuilds the client's cart from the live catalog, applies one
// register action to it and returns the new quote. Nothing is stored.
func (s *Service) EditCart(ctx context.Context, req domain.CartEditRequest) (domain.CartQuote, error) {
	tax, err := s.resolveTaxRate(ctx, req.TaxRateID)
	if err != nil {
		return domain.CartQuote{}, err
	}
	c, err := s.buildCart(ctx, req.Items)
	if err != nil {
		return domain.CartQuote{}, err
	}

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case domain.CartAdd:
		product, err := s.repo.GetProduct(ctx, req.ProductID)
		if err != nil {
			return domain.CartQuote{}, err
		}
		if err := c.Add(*product); err != nil {
			return domain.CartQuote{}, err
		}
	case domain.CartSet:
		if req.Quantity <= 0 {
			c.Remove(req.ProductID)
			break
		}
		product, err := s.repo.GetProduct(ctx, req.ProductID)
		if err != nil {
			return domain.CartQuote{}, err
		}
		if err := c.SetQuantity(*product, req.Quantity); err != nil {
			return domain.CartQuote{}, err
		}
	case domain.CartRemove:
		c.Remove(req.ProductID)
	case domain.CartClear:
		c.Clear()
	default:
		return domain.CartQuote{}, fmt.Errorf("%w: unknown cart action %q", store.ErrInvalidInput, req.Action)
	}
	return quoteOf(c, tax), nil
}

func (s *Service) buildCart(ctx context.Context, items []domain.CartLineRequest) (*cart.Cart, error) {
	lines, err := mergeLines(items)
	if err != nil {
		return nil, err
	}
	c := cart.New()
	for _, line := range lines {
		product, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if err := c.SetQuantity(*product, line.Quantity); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func quoteOf(c *cart.Cart, tax domain.TaxRate) domain.CartQuote {
	return domain.CartQuote{
		Items:      c.Items(),
		Lines:      c.Len(),
		TaxRate:    tax,
		CartTotals: c.Totals(tax.Rate),
	}
}

// Checkout commits a sale. Each line keeps the price snapshot the client took
// when the product went into the cart; lines without one are priced from the
// live catalog. Stock is always checked live, inside the commit.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Sale, error) {
	tax, err := s.resolveTaxRate(ctx, req.TaxRateID)
	if err != nil {
		return domain.Sale{}, err
	}

	items := make([]domain.CartItem, 0, len(req.Items))
	for _, line := range req.Items {
		item := domain.CartItem{ProductID: line.ProductID, Quantity: line.Quantity}
		product, err := s.repo.GetProduct(ctx, line.ProductID)
		switch {
		case err == nil:
			item.Name = product.Name
			item.Price = product.Price
			item.PurchasedPrice = product.PurchasedPrice
		case errors.Is(err, store.ErrNotFound):
			// Left for the commit to reject as out of stock.
		default:
			return domain.Sale{}, err
		}
		if line.Price.Valid {
			item.Price = line.Price.Decimal
		}
		if line.PurchasedPrice.Valid {
			item.PurchasedPrice = line.PurchasedPrice.Decimal
		}
		items = append(items, item)
	}

	sale, err := s.repo.CommitSale(ctx, items, tax, s.Now())
	if err != nil {
		var stockErr *store.InsufficientStockError
		if errors.As(err, &stockErr) {
			logx.Info().
				Int64("product_id", stockErr.ProductID).
				Int("available", stockErr.Available).
				Msg("sale rejected: insufficient stock")
		}
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "checkout", "sale", sale.ID, fmt.Sprintf("total=%s,items=%d,tax=%s", sale.Total.StringFixed(2), len(sale.Items), sale.TaxName))
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SalesFilter) ([]domain.Sale, error) {
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return nil, err
	}
	filtered, err := metrics.FilterSales(sales, filter, s.Now())
	if errors.Is(err, metrics.ErrUnknownPeriod) {
		return nil, fmt.Errorf("%w: unknown period %q", store.ErrInvalidInput, filter.Period)
	}
	return filtered, err
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	return s.metrics.Dashboard(ctx, s.repo, s.Now())
}

func (s *Service) Report(ctx context.Context) (domain.Report, error) {
	return s.metrics.Report(ctx, s.repo, s.Now())
}

// ExpiryAlerts lists in-stock products expired or expiring within days,
// soonest first. Zero values fall back to the dashboard window and size.
func (s *Service) ExpiryAlerts(ctx context.Context, days int, limit int) ([]domain.ExpiryAlert, error) {
	if days < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: days and limit must not be negative", store.ErrInvalidInput)
	}
	if days == 0 {
		days = metrics.ExpiryWindowDays
	}
	if limit == 0 {
		limit = defaultExpiryAlertLimit
	}
	if limit > maxExpiryAlertLimit {
		limit = maxExpiryAlertLimit
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return metrics.ExpiringOrExpired(products, days, s.Now(), limit), nil
}

// Export is a rendered export file.
type Export struct {
	FileName    string
	ContentType string
	Table       export.Table
	Format      export.Format
	GeneratedAt time.Time
}

func (s *Service) Export(ctx context.Context, kind string, format string, filter export.InventoryFilter) (Export, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return Export{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	var table export.Table
	switch kind {
	case export.KindInventory:
		products, err := s.repo.ListProducts(ctx)
		if err != nil {
			return Export{}, err
		}
		table, err = export.InventoryTable(products, filter)
		if err != nil {
			return Export{}, exportError(err)
		}
	case export.KindSales:
		report, err := s.Report(ctx)
		if err != nil {
			return Export{}, err
		}
		table, err = export.MonthlySalesTable(report.MonthlySales)
		if err != nil {
			return Export{}, exportError(err)
		}
	default:
		return Export{}, fmt.Errorf("%w: %v %q", store.ErrInvalidInput, export.ErrUnknownKind, kind)
	}

	now := s.Now()
	return Export{
		FileName:    export.FileName(table, f, now),
		ContentType: f.ContentType(),
		Table:       table,
		Format:      f,
		GeneratedAt: now,
	}, nil
}

func exportError(err error) error {
	if errors.Is(err, export.ErrNoData) {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return err
}

// resolveTaxRate returns the requested tax rate, or the first configured one
// when the request names none.
func (s *Service) resolveTaxRate(ctx context.Context, id int64) (domain.TaxRate, error) {
	if id != 0 {
		tax, err := s.repo.GetTaxRate(ctx, id)
		if err != nil {
			return domain.TaxRate{}, err
		}
		return *tax, nil
	}

	taxes, err := s.repo.ListTaxRates(ctx)
	if err != nil {
		return domain.TaxRate{}, err
	}
	if len(taxes) == 0 {
		return domain.TaxRate{Name: "Exempt", Rate: decimal.Zero}, nil
	}
	return taxes[0], nil
}

// mergeLines folds lines for the same product into the first one, keeping order.
func mergeLines(lines []domain.CartLineRequest) ([]domain.CartLineRequest, error) {
	index := make(map[int64]int, len(lines))
	out := make([]domain.CartLineRequest, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for product %d must be at least 1", store.ErrInvalidInput, line.ProductID)
		}
		if i, ok := index[line.ProductID]; ok {
			if out[i].Quantity > math.MaxInt-line.Quantity {
				return nil, fmt.Errorf("%w: quantity for product %d is too large", store.ErrInvalidInput, line.ProductID)
			}
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(out)
		out = append(out, line)
	}
	return out, nil
}

func productFromRequest(id int64, req domain.ProductRequest) domain.Product {
	return domain.Product{
		ID:             id,
		Name:           req.Name,
		Category:       req.Category,
		Price:          req.Price,
		PurchasedPrice: req.PurchasedPrice,
		Stock:          req.Stock,
		ExpiryDate:     req.ExpiryDate,
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID int64, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system"}
	}

	logx.Info().
		Str("actor", actor.Username).
		Str("action", action).
		Str("entity_type", entityType).
		Int64("entity_id", entityID).
		Str("detail", detail).
		Msg("audit")
}
