package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmasys/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var jakarta = time.FixedZone("UTC+7", 7*60*60)

func sale(id int64, at time.Time, total string, items ...domain.SaleItem) domain.Sale {
	return domain.Sale{ID: id, Date: at, Items: items, Total: dec(total), Subtotal: dec(total), Profit: dec("1")}
}

func item(productID int64, name string, price string, qty int) domain.SaleItem {
	return domain.SaleItem{ProductID: productID, Name: name, Price: dec(price), Quantity: qty}
}

func TestInventoryValueAndByCategory(t *testing.T) {
	products := []domain.Product{
		{ID: 1, Category: "A", Stock: 5, Price: dec("10")},
		{ID: 2, Category: "B", Stock: 3, Price: dec("20")},
	}

	assert.True(t, InventoryValue(products).Equal(dec("110")))
	assert.Equal(t, []domain.CategoryStock{{Category: "A", Stock: 5}, {Category: "B", Stock: 3}}, InventoryByCategory(products))
}

func TestLowStockAndStatus(t *testing.T) {
	products := []domain.Product{{Stock: 0}, {Stock: 1}, {Stock: 9}, {Stock: 10}, {Stock: 120}}
	assert.Equal(t, 2, LowStock(products))

	assert.Equal(t, domain.StockStatusOutOfStock, StockStatus(0))
	assert.Equal(t, domain.StockStatusLowStock, StockStatus(9))
	assert.Equal(t, domain.StockStatusInStock, StockStatus(10))
}

func TestTodaysSalesUsesCallerCalendar(t *testing.T) {
	now := time.Date(2024, 7, 1, 8, 0, 0, 0, jakarta)
	sales := []domain.Sale{
		// 2024-06-30 23:30 UTC is already July 1st in UTC+7.
		sale(1, time.Date(2024, 6, 30, 23, 30, 0, 0, time.UTC), "10"),
		sale(2, time.Date(2024, 6, 30, 16, 59, 0, 0, time.UTC), "10"),
		sale(3, time.Date(2024, 7, 1, 20, 0, 0, 0, jakarta), "10"),
	}

	got := TodaysSales(sales, now)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}

func TestExpiryWindows(t *testing.T) {
	now := time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC)
	products := []domain.Product{
		{ID: 1, Name: "today", Stock: 5, ExpiryDate: "2024-07-01"},
		{ID: 2, Name: "in 30", Stock: 5, ExpiryDate: "2024-07-31"},
		{ID: 3, Name: "in 31", Stock: 5, ExpiryDate: "2024-08-01"},
		{ID: 4, Name: "expired", Stock: 5, ExpiryDate: "2024-06-28"},
		{ID: 5, Name: "no stock", Stock: 0, ExpiryDate: "2024-07-02"},
		{ID: 6, Name: "bad date", Stock: 5, ExpiryDate: "soon"},
	}

	within := ExpiringWithin(products, 30, now)
	require.Len(t, within, 2)
	assert.Equal(t, int64(1), within[0].ID)
	assert.Equal(t, int64(2), within[1].ID)

	alerts := ExpiringOrExpired(products, 30, now, 5)
	require.Len(t, alerts, 3)
	assert.Equal(t, int64(4), alerts[0].Product.ID)
	assert.Equal(t, -3, alerts[0].DaysUntilExpiry)
	assert.Equal(t, domain.ExpiryStatusExpired, alerts[0].Status)
	assert.Equal(t, int64(1), alerts[1].Product.ID)
	assert.Equal(t, 0, alerts[1].DaysUntilExpiry)
	assert.Equal(t, domain.ExpiryStatusExpiring, alerts[1].Status)
	assert.Equal(t, int64(2), alerts[2].Product.ID)

	capped := ExpiringOrExpired(products, 30, now, 1)
	assert.Len(t, capped, 1)

	days, status := ExpiryStatus("2024-08-01", now)
	assert.Equal(t, 31, days)
	assert.Equal(t, domain.ExpiryStatusOK, status)
}

func TestRevenueByCategoryFollowsCurrentCategory(t *testing.T) {
	day := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	sales := []domain.Sale{
		sale(1, day.Add(-time.Hour), "0", item(1, "Paracetamol", "5.99", 2), item(2, "Cough Syrup", "8.99", 1)),
		sale(2, day.AddDate(0, 0, -1), "0", item(1, "Paracetamol", "5.99", 10)),
		sale(3, day, "0", item(99, "Deleted", "100", 1)),
	}
	products := []domain.Product{
		{ID: 1, Category: "Pain Relief"},
		{ID: 2, Category: "Cold & Flu"},
	}

	got := RevenueByCategory(sales, products, day)
	require.Len(t, got, 2)
	assert.Equal(t, "Pain Relief", got[0].Category)
	assert.True(t, got[0].Revenue.Equal(dec("11.98")))
	assert.Equal(t, "Cold & Flu", got[1].Category)

	products[0].Category = "Analgesics"
	renamed := RevenueByCategory(sales, products, day)
	assert.Equal(t, "Analgesics", renamed[0].Category)
	assert.True(t, renamed[0].Revenue.Equal(dec("11.98")))
}

func TestMonthlyTrendHasTwelveMonthsAndPreservesTotal(t *testing.T) {
	sales := []domain.Sale{
		sale(1, time.Date(2023, 3, 10, 10, 0, 0, 0, time.UTC), "10.50"),
		sale(2, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), "4.50"),
		sale(3, time.Date(2024, 12, 31, 10, 0, 0, 0, time.UTC), "1.25"),
	}

	trend := MonthlyTrend(sales, time.UTC)
	require.Len(t, trend, 12)
	assert.Equal(t, "Jan", trend[0].Month)
	assert.Equal(t, "Dec", trend[11].Month)
	assert.True(t, trend[2].Sales.Equal(dec("15")))
	assert.True(t, trend[0].Sales.IsZero())

	sum := decimal.Zero
	for _, m := range trend {
		sum = sum.Add(m.Sales)
	}
	assert.True(t, sum.Equal(dec("16.25")))

	assert.Len(t, MonthlyTrend(nil, time.UTC), 12)
}

func TestTopSellers(t *testing.T) {
	now := time.Now()
	sales := []domain.Sale{
		sale(1, now, "0", item(1, "A", "1", 2), item(2, "B", "1", 5)),
		sale(2, now, "0", item(1, "A", "1", 4), item(3, "C", "1", 1)),
		sale(3, now, "0", item(4, "D", "1", 6)),
	}

	top := TopSellers(sales, 2)
	require.Len(t, top, 2)
	assert.Equal(t, domain.TopSeller{ProductID: 1, Name: "A", Sold: 6}, top[0])
	assert.Equal(t, domain.TopSeller{ProductID: 4, Name: "D", Sold: 6}, top[1])
}

func TestFilterSales(t *testing.T) {
	// Wednesday.
	now := time.Date(2024, 7, 3, 12, 0, 0, 0, time.UTC)
	sales := []domain.Sale{
		sale(1, time.Date(2023, 12, 31, 9, 0, 0, 0, time.UTC), "1"),
		sale(2, time.Date(2024, 6, 30, 9, 0, 0, 0, time.UTC), "1"),
		sale(3, time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC), "1"),
		sale(12, time.Date(2024, 7, 3, 8, 0, 0, 0, time.UTC), "1"),
	}

	ids := func(ss []domain.Sale) []int64 {
		out := make([]int64, 0, len(ss))
		for _, s := range ss {
			out = append(out, s.ID)
		}
		return out
	}

	cases := map[string][]int64{
		domain.PeriodAll:   {12, 3, 2, 1},
		domain.PeriodToday: {12},
		domain.PeriodWeek:  {12, 3},
		domain.PeriodMonth: {12, 3},
		domain.PeriodYear:  {12, 3, 2},
	}
	for period, want := range cases {
		got, err := FilterSales(sales, domain.SalesFilter{Period: period}, now)
		require.NoError(t, err, period)
		assert.Equal(t, want, ids(got), period)
	}

	got, err := FilterSales(sales, domain.SalesFilter{Query: "1"}, now)
	require.NoError(t, err)
	assert.Equal(t, []int64{12, 1}, ids(got))

	_, err = FilterSales(sales, domain.SalesFilter{Period: "fortnight"}, now)
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

func TestBuildDashboard(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	products := []domain.Product{
		{ID: 1, Category: "Pain Relief", Price: dec("5.99"), Stock: 118, ExpiryDate: "2025-12-31"},
		{ID: 2, Category: "Cold & Flu", Price: dec("6.50"), Stock: 5, ExpiryDate: "2024-06-30"},
	}
	sales := make([]domain.Sale, 0, 7)
	for i := int64(1); i <= 7; i++ {
		sales = append(sales, sale(i, now.Add(-time.Duration(i)*time.Minute), "2", item(1, "Paracetamol", "1", 1)))
	}
	sales = append(sales, sale(8, now.AddDate(0, 0, -2), "50"))

	d := BuildDashboard(products, sales, now)
	assert.Equal(t, "2024-07-01", d.Date)
	assert.Equal(t, 7, d.TodaysSales)
	assert.True(t, d.TodaysRevenue.Equal(dec("14")))
	assert.True(t, d.TodaysProfit.Equal(dec("7")))
	assert.Equal(t, 1, d.LowStockItems)
	assert.True(t, d.InventoryValue.Equal(dec("739.32")))
	assert.Equal(t, 0, d.ExpiringSoonCount)
	require.Len(t, d.RecentSales, 5)
	assert.Equal(t, int64(8), d.RecentSales[0].ID)
	require.Len(t, d.ExpiringProducts, 1)
	assert.Equal(t, domain.ExpiryStatusExpired, d.ExpiringProducts[0].Status)
	require.Len(t, d.RevenueByCategory, 1)
	assert.True(t, d.RevenueByCategory[0].Revenue.Equal(dec("7")))
}
