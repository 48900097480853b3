// Package cart implements the advisory cart edits made before checkout.
// Quantities are capped by the stock seen at edit time; commit re-checks
// against live stock.
package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pharmasys/internal/checkout"
	"pharmasys/internal/domain"
	"pharmasys/internal/store"
)

type Cart struct {
	lines []domain.CartItem
}

func New() *Cart {
	return &Cart{}
}

// Add puts one unit of product in the cart, or one more if it is already there.
func (c *Cart) Add(product domain.Product) error {
	if i := c.index(product.ID); i >= 0 {
		return c.set(i, product, c.lines[i].Quantity+1)
	}
	if product.Stock < 1 {
		return outOfStock(product)
	}
	c.lines = append(c.lines, snapshot(product, 1))
	return nil
}

// SetQuantity replaces the quantity of product's line. A quantity of zero or
// less removes the line.
func (c *Cart) SetQuantity(product domain.Product, qty int) error {
	i := c.index(product.ID)
	if qty <= 0 {
		if i >= 0 {
			c.removeAt(i)
		}
		return nil
	}
	if i < 0 {
		if qty > product.Stock {
			return outOfStock(product)
		}
		c.lines = append(c.lines, snapshot(product, qty))
		return nil
	}
	return c.set(i, product, qty)
}

func (c *Cart) Remove(productID int64) {
	if i := c.index(productID); i >= 0 {
		c.removeAt(i)
	}
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) Items() []domain.CartItem {
	out := make([]domain.CartItem, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Totals(rate decimal.Decimal) domain.CartTotals {
	return checkout.Totals(c.lines, rate)
}

func (c *Cart) set(i int, product domain.Product, qty int) error {
	if qty > product.Stock {
		return outOfStock(product)
	}
	c.lines[i].Quantity = qty
	return nil
}

func (c *Cart) index(productID int64) int {
	for i, line := range c.lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(i int) {
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
}

func snapshot(product domain.Product, qty int) domain.CartItem {
	return domain.CartItem{
		ProductID:      product.ID,
		Name:           product.Name,
		Price:          product.Price,
		PurchasedPrice: product.PurchasedPrice,
		Quantity:       qty,
	}
}

func outOfStock(product domain.Product) error {
	return fmt.Errorf("cart: %w", &store.InsufficientStockError{
		ProductID:   product.ID,
		ProductName: product.Name,
		Available:   product.Stock,
	})
}
