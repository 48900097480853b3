package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pharmasys/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = fmt.Errorf("%w: cart is empty", ErrInsufficientStock)
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicateName     = errors.New("name already exists")
	ErrCategoryInUse     = errors.New("category is in use")
	ErrLastTaxRate       = errors.New("at least one tax rate is required")
)

// InsufficientStockError names the product that blocked a sale and how many units were left.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("product #%d", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s: only %d available", name, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func ProductNotFound(id int64) error  { return notFound("product", id) }
func CategoryNotFound(id int64) error { return notFound("category", id) }
func TaxRateNotFound(id int64) error  { return notFound("tax rate", id) }
func SaleNotFound(id int64) error     { return notFound("sale", id) }

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, name string) (*domain.Category, error)
	RenameCategory(ctx context.Context, id int64, name string) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error

	ListTaxRates(ctx context.Context) ([]domain.TaxRate, error)
	GetTaxRate(ctx context.Context, id int64) (*domain.TaxRate, error)
	CreateTaxRate(ctx context.Context, tax domain.TaxRate) (*domain.TaxRate, error)
	UpdateTaxRate(ctx context.Context, tax domain.TaxRate) (*domain.TaxRate, error)
	DeleteTaxRate(ctx context.Context, id int64) error

	ListSales(ctx context.Context) ([]domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	// CommitSale validates the cart against live stock and, if every line fits,
	// decrements stock and appends the sale as one indivisible step.
	CommitSale(ctx context.Context, items []domain.CartItem, tax domain.TaxRate, at time.Time) (*domain.Sale, error)

	// Revision increases after every successful mutation.
	Revision(ctx context.Context) (int64, error)
}
