package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmasys/internal/domain"
	"pharmasys/internal/store"
)

func TestPostgresCommitSaleDecrementsStock(t *testing.T) {
	databaseURL := os.Getenv("PHARMASYS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PHARMASYS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, Options{Dialect: Postgres, DSN: databaseURL})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	categoryName := fmt.Sprintf("IT Category %d", stamp)
	category, err := s.CreateCategory(ctx, categoryName)
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	product, err := s.CreateProduct(ctx, domain.Product{
		Name:           fmt.Sprintf("IT Product %d", stamp),
		Category:       categoryName,
		Price:          decimal.RequireFromString("5.99"),
		PurchasedPrice: decimal.RequireFromString("2.50"),
		Stock:          10,
		ExpiryDate:     "2030-01-01",
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	taxes, err := s.ListTaxRates(ctx)
	if err != nil || len(taxes) == 0 {
		t.Fatalf("list tax rates: %v", err)
	}

	line := domain.CartItem{ProductID: product.ID, Name: product.Name, Price: product.Price, PurchasedPrice: product.PurchasedPrice, Quantity: 4}
	sale, err := s.CommitSale(ctx, []domain.CartItem{line}, taxes[0], time.Now())
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, sale.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, category.ID)
	})

	got, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 6 {
		t.Fatalf("expected stock 6 after sale, got %d", got.Stock)
	}

	line.Quantity = 7
	if _, err := s.CommitSale(ctx, []domain.CartItem{line}, taxes[0], time.Now()); err == nil {
		t.Fatalf("expected oversell to be rejected")
	} else if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}
