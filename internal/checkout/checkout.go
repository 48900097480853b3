// Package checkout holds the validate and apply steps of a sale commit.
// Every function is pure; the store backends call them inside their write
// critical section so that validation always sees live stock.
package checkout

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pharmasys/internal/domain"
	"pharmasys/internal/store"
)

// Plan is a validated sale waiting to be applied.
type Plan struct {
	Items []domain.SaleItem
	// Decrements maps product id to the total quantity leaving stock.
	Decrements map[int64]int
	domain.CartTotals
}

// ProductIDs returns the distinct product ids named by items in ascending
// order, the order in which backends lock product rows.
func ProductIDs(items []domain.CartItem) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ValidateCart rejects carts that can never be committed, regardless of stock.
func ValidateCart(items []domain.CartItem, tax domain.TaxRate) error {
	if len(items) == 0 {
		return store.ErrEmptyCart
	}
	if tax.Rate.IsNegative() {
		return fmt.Errorf("%w: tax rate must not be negative", store.ErrInvalidInput)
	}
	for _, item := range items {
		if item.Quantity < 1 {
			return fmt.Errorf("%w: quantity for product %d must be at least 1", store.ErrInvalidInput, item.ProductID)
		}
		if item.Price.IsNegative() || item.PurchasedPrice.IsNegative() {
			return fmt.Errorf("%w: prices for product %d must not be negative", store.ErrInvalidInput, item.ProductID)
		}
	}
	return nil
}

// Requested sums the quantities asked for each product, so that a product
// appearing on two lines is checked against its stock once. Quantities must
// already be positive; a sum that would overflow int is rejected.
func Requested(items []domain.CartItem) (map[int64]int, error) {
	requested := make(map[int64]int, len(items))
	for _, item := range items {
		if requested[item.ProductID] > math.MaxInt-item.Quantity {
			return nil, fmt.Errorf("%w: quantity for product %d is too large", store.ErrInvalidInput, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}
	return requested, nil
}

// Prepare validates items against the live products and returns the plan to
// apply. live must contain every product that still exists among the cart's
// ids. Nothing is mutated; a rejected cart leaves the caller's state as is.
func Prepare(items []domain.CartItem, tax domain.TaxRate, live map[int64]domain.Product) (*Plan, error) {
	if err := ValidateCart(items, tax); err != nil {
		return nil, err
	}

	requested, err := Requested(items)
	if err != nil {
		return nil, err
	}
	decrements := make(map[int64]int, len(requested))
	for id, qty := range requested {
		decrements[id] = qty
	}
	for _, item := range items {
		qty, pending := requested[item.ProductID]
		if !pending {
			continue
		}
		delete(requested, item.ProductID)

		product, ok := live[item.ProductID]
		if !ok {
			return nil, &store.InsufficientStockError{ProductID: item.ProductID, ProductName: item.Name, Available: 0}
		}
		if product.Stock < qty {
			return nil, &store.InsufficientStockError{ProductID: product.ID, ProductName: product.Name, Available: product.Stock}
		}
	}

	plan := &Plan{
		Items:      make([]domain.SaleItem, 0, len(items)),
		Decrements: decrements,
		CartTotals: Totals(items, tax.Rate),
	}
	for _, item := range items {
		plan.Items = append(plan.Items, domain.SaleItem{
			ProductID:      item.ProductID,
			Name:           item.Name,
			Price:          item.Price,
			PurchasedPrice: item.PurchasedPrice,
			Quantity:       item.Quantity,
		})
	}
	return plan, nil
}

// Totals prices the cart from its snapshots: total is subtotal plus tax, and
// tax is subtotal times rate, both exact.
func Totals(items []domain.CartItem, rate decimal.Decimal) domain.CartTotals {
	subtotal := decimal.Zero
	profit := decimal.Zero
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		subtotal = subtotal.Add(item.Price.Mul(qty))
		profit = profit.Add(item.Price.Sub(item.PurchasedPrice).Mul(qty))
	}
	taxAmount := subtotal.Mul(rate)
	return domain.CartTotals{
		Subtotal:  subtotal,
		TaxAmount: taxAmount,
		Total:     subtotal.Add(taxAmount),
		Profit:    profit,
	}
}

// Apply returns products with the plan's quantities taken out of stock.
func Apply(plan *Plan, products []domain.Product) []domain.Product {
	out := make([]domain.Product, len(products))
	for i, p := range products {
		if qty, ok := plan.Decrements[p.ID]; ok {
			p.Stock -= qty
		}
		out[i] = p
	}
	return out
}

// BuildSale freezes the plan into the sale record stored in the log. The
// sale date is kept in UTC by every backend.
func BuildSale(id int64, at time.Time, plan *Plan, tax domain.TaxRate) domain.Sale {
	items := make([]domain.SaleItem, len(plan.Items))
	copy(items, plan.Items)
	return domain.Sale{
		ID:        id,
		Date:      at.UTC(),
		Items:     items,
		Subtotal:  plan.Subtotal,
		TaxAmount: plan.TaxAmount,
		TaxRate:   tax.Rate,
		TaxName:   tax.Name,
		Profit:    plan.Profit,
		Total:     plan.Total,
	}
}
