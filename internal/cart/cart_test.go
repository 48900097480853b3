package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmasys/internal/domain"
	"pharmasys/internal/store"
)

func product(id int64, stock int, price string) domain.Product {
	return domain.Product{
		ID:             id,
		Name:           "Product",
		Category:       "Pain Relief",
		Price:          decimal.RequireFromString(price),
		PurchasedPrice: decimal.RequireFromString("1.00"),
		Stock:          stock,
		ExpiryDate:     "2026-01-01",
	}
}

func TestAddIncrementsUpToStock(t *testing.T) {
	c := New()
	p := product(1, 2, "5.99")

	require.NoError(t, c.Add(p))
	require.NoError(t, c.Add(p))
	assert.Equal(t, 2, c.Items()[0].Quantity)

	err := c.Add(p)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 2, c.Items()[0].Quantity)
}

func TestAddRejectsOutOfStockProduct(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.Add(product(9, 0, "14.50")), store.ErrInsufficientStock)
	assert.Equal(t, 0, c.Len())
}

func TestSetQuantity(t *testing.T) {
	c := New()
	p := product(1, 5, "2.00")

	require.NoError(t, c.SetQuantity(p, 3))
	assert.Equal(t, 3, c.Items()[0].Quantity)

	assert.ErrorIs(t, c.SetQuantity(p, 6), store.ErrInsufficientStock)
	assert.Equal(t, 3, c.Items()[0].Quantity)

	require.NoError(t, c.SetQuantity(p, 0))
	assert.Equal(t, 0, c.Len())
}

func TestRemoveClearAndTotals(t *testing.T) {
	c := New()
	require.NoError(t, c.SetQuantity(product(1, 10, "5.99"), 2))
	require.NoError(t, c.Add(product(2, 10, "3.50")))

	totals := c.Totals(decimal.RequireFromString("0.10"))
	assert.True(t, totals.Subtotal.Equal(decimal.RequireFromString("15.48")), totals.Subtotal.String())
	assert.True(t, totals.Total.Equal(totals.Subtotal.Add(totals.TaxAmount)))

	c.Remove(1)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, int64(2), c.Items()[0].ProductID)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestItemsKeepPriceSnapshot(t *testing.T) {
	c := New()
	p := product(1, 10, "5.99")
	require.NoError(t, c.Add(p))

	p.Price = decimal.RequireFromString("7.00")
	require.NoError(t, c.Add(p))

	items := c.Items()
	assert.True(t, items[0].Price.Equal(decimal.RequireFromString("5.99")))
	assert.Equal(t, 2, items[0].Quantity)
}
