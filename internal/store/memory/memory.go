package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pharmasys/internal/checkout"
	"pharmasys/internal/domain"
	"pharmasys/internal/store"
	"pharmasys/internal/store/seed"
)

// Store keeps the catalog and the sales log in process memory. A single
// RWMutex serialises every write, including the validate-then-apply step of
// a sale commit; readers always receive copies.
type Store struct {
	mu         sync.RWMutex
	products   map[int64]domain.Product
	categories map[int64]domain.Category
	taxRates   map[int64]domain.TaxRate
	sales      []domain.Sale
	revision   int64
}

// New builds a store from the given catalog. A store always holds at least
// one tax rate, so an empty taxes slice gets a zero-rate default.
func New(categories []domain.Category, taxes []domain.TaxRate, products []domain.Product) *Store {
	s := &Store{
		products:   make(map[int64]domain.Product, len(products)),
		categories: make(map[int64]domain.Category, len(categories)),
		taxRates:   make(map[int64]domain.TaxRate, len(taxes)),
		sales:      make([]domain.Sale, 0, 64),
	}
	for _, c := range categories {
		s.categories[c.ID] = c
	}
	if len(taxes) == 0 {
		taxes = []domain.TaxRate{{ID: 1, Name: "Exempt", Rate: decimal.Zero}}
	}
	for _, t := range taxes {
		s.taxRates[t.ID] = t
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func NewSeeded() *Store {
	return New(seed.Categories(), seed.TaxRates(), seed.Products())
}

func (s *Store) Revision(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return cmpID(a.ID, b.ID) })
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ProductNotFound(id)
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized, err := s.normalizeProductLocked(product)
	if err != nil {
		return nil, err
	}
	normalized.ID = store.NextID(keys(s.products)...)
	s.products[normalized.ID] = normalized
	s.revision++
	return &normalized, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return nil, store.ProductNotFound(product.ID)
	}
	normalized, err := s.normalizeProductLocked(product)
	if err != nil {
		return nil, err
	}
	s.products[normalized.ID] = normalized
	s.revision++
	return &normalized, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ProductNotFound(id)
	}
	delete(s.products, id)
	s.revision++
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoriesLocked(), nil
}

func (s *Store) CreateCategory(_ context.Context, name string) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = store.NormalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", store.ErrInvalidInput)
	}
	if store.CategoryNameTaken(s.categoriesLocked(), name, 0) {
		return nil, fmt.Errorf("category %q: %w", name, store.ErrDuplicateName)
	}

	category := domain.Category{ID: store.NextID(keys(s.categories)...), Name: name}
	s.categories[category.ID] = category
	s.revision++
	return &category, nil
}

// RenameCategory renames the category and moves every product that referenced
// the old name onto the new one.
func (s *Store) RenameCategory(_ context.Context, id int64, name string) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.categories[id]
	if !ok {
		return nil, store.CategoryNotFound(id)
	}
	name = store.NormalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", store.ErrInvalidInput)
	}
	if store.CategoryNameTaken(s.categoriesLocked(), name, id) {
		return nil, fmt.Errorf("category %q: %w", name, store.ErrDuplicateName)
	}

	for pid, p := range s.products {
		if store.SameName(p.Category, current.Name) {
			p.Category = name
			s.products[pid] = p
		}
	}
	current.Name = name
	s.categories[id] = current
	s.revision++
	return &current, nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.categories[id]
	if !ok {
		return store.CategoryNotFound(id)
	}
	for _, p := range s.products {
		if store.SameName(p.Category, current.Name) {
			return fmt.Errorf("category %q: %w", current.Name, store.ErrCategoryInUse)
		}
	}
	delete(s.categories, id)
	s.revision++
	return nil
}

func (s *Store) ListTaxRates(_ context.Context) ([]domain.TaxRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.taxRatesLocked(), nil
}

func (s *Store) GetTaxRate(_ context.Context, id int64) (*domain.TaxRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tax, ok := s.taxRates[id]
	if !ok {
		return nil, store.TaxRateNotFound(id)
	}
	return &tax, nil
}

func (s *Store) CreateTaxRate(_ context.Context, tax domain.TaxRate) (*domain.TaxRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tax.Name = store.NormalizeName(tax.Name)
	if err := store.ValidateTaxRate(tax); err != nil {
		return nil, err
	}
	if store.TaxNameTaken(s.taxRatesLocked(), tax.Name, 0) {
		return nil, fmt.Errorf("tax rate %q: %w", tax.Name, store.ErrDuplicateName)
	}

	tax.ID = store.NextID(keys(s.taxRates)...)
	s.taxRates[tax.ID] = tax
	s.revision++
	return &tax, nil
}

func (s *Store) UpdateTaxRate(_ context.Context, tax domain.TaxRate) (*domain.TaxRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.taxRates[tax.ID]; !ok {
		return nil, store.TaxRateNotFound(tax.ID)
	}
	tax.Name = store.NormalizeName(tax.Name)
	if err := store.ValidateTaxRate(tax); err != nil {
		return nil, err
	}
	if store.TaxNameTaken(s.taxRatesLocked(), tax.Name, tax.ID) {
		return nil, fmt.Errorf("tax rate %q: %w", tax.Name, store.ErrDuplicateName)
	}

	s.taxRates[tax.ID] = tax
	s.revision++
	return &tax, nil
}

func (s *Store) DeleteTaxRate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.taxRates[id]; !ok {
		return store.TaxRateNotFound(id)
	}
	if len(s.taxRates) <= 1 {
		return store.ErrLastTaxRate
	}
	delete(s.taxRates, id)
	s.revision++
	return nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, cloneSale(sale))
	}
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sale := range s.sales {
		if sale.ID == id {
			found := cloneSale(sale)
			return &found, nil
		}
	}
	return nil, store.SaleNotFound(id)
}

func (s *Store) CommitSale(_ context.Context, items []domain.CartItem, tax domain.TaxRate, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := checkout.Prepare(items, tax, s.products)
	if err != nil {
		return nil, err
	}

	for id, qty := range plan.Decrements {
		p := s.products[id]
		p.Stock -= qty
		s.products[id] = p
	}

	ids := make([]int64, 0, len(s.sales))
	for _, sale := range s.sales {
		ids = append(ids, sale.ID)
	}
	sale := checkout.BuildSale(store.NextID(ids...), at, plan, tax)
	s.sales = append(s.sales, sale)
	s.revision++

	committed := cloneSale(sale)
	return &committed, nil
}

func (s *Store) normalizeProductLocked(product domain.Product) (domain.Product, error) {
	product.Name = store.NormalizeName(product.Name)
	if err := store.ValidateProduct(product); err != nil {
		return domain.Product{}, err
	}
	category, err := store.ResolveCategory(s.categoriesLocked(), product.Category)
	if err != nil {
		return domain.Product{}, err
	}
	product.Category = category
	return product, nil
}

func (s *Store) categoriesLocked() []domain.Category {
	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int { return cmpID(a.ID, b.ID) })
	return categories
}

func (s *Store) taxRatesLocked() []domain.TaxRate {
	taxes := make([]domain.TaxRate, 0, len(s.taxRates))
	for _, t := range s.taxRates {
		taxes = append(taxes, t)
	}
	slices.SortFunc(taxes, func(a, b domain.TaxRate) int { return cmpID(a.ID, b.ID) })
	return taxes
}

func keys[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

func cmpID(a int64, b int64) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = make([]domain.SaleItem, len(src.Items))
	copy(dst.Items, src.Items)
	return dst
}
