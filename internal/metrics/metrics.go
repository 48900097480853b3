// Package metrics derives dashboard and report figures from the product and
// sale collections. Every function is a pure read; calendar questions are
// answered in the location carried by the caller's now.
package metrics

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmasys/internal/domain"
)

const (
	LowStockThreshold = 10
	ExpiryWindowDays  = 30
	DashboardListSize = 5
	TopSellerCount    = 5
)

var ErrUnknownPeriod = errors.New("unknown sales period")

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether t falls on day's calendar date, in day's location.
func SameDay(t time.Time, day time.Time) bool {
	ty, tm, td := t.In(day.Location()).Date()
	dy, dm, dd := day.Date()
	return ty == dy && tm == dm && td == dd
}

func TodaysSales(sales []domain.Sale, now time.Time) []domain.Sale {
	out := make([]domain.Sale, 0)
	for _, sale := range sales {
		if SameDay(sale.Date, now) {
			out = append(out, sale)
		}
	}
	return out
}

func LowStock(products []domain.Product) int {
	count := 0
	for _, p := range products {
		if p.Stock > 0 && p.Stock < LowStockThreshold {
			count++
		}
	}
	return count
}

func StockStatus(stock int) string {
	switch {
	case stock <= 0:
		return domain.StockStatusOutOfStock
	case stock < LowStockThreshold:
		return domain.StockStatusLowStock
	default:
		return domain.StockStatusInStock
	}
}

func InventoryValue(products []domain.Product) decimal.Decimal {
	total := decimal.Zero
	for _, p := range products {
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(p.Stock))))
	}
	return total
}

// DaysUntil counts calendar days from now's date to expiry; negative means
// the date has passed.
func DaysUntil(expiry string, now time.Time) (int, bool) {
	date, err := time.ParseInLocation(domain.DateLayout, expiry, now.Location())
	if err != nil {
		return 0, false
	}
	hours := date.Sub(startOfDay(now)).Hours()
	return int(math.Round(hours / 24)), true
}

func ExpiryStatus(expiry string, now time.Time) (int, string) {
	days, ok := DaysUntil(expiry, now)
	switch {
	case !ok:
		return 0, domain.ExpiryStatusOK
	case days < 0:
		return days, domain.ExpiryStatusExpired
	case days <= ExpiryWindowDays:
		return days, domain.ExpiryStatusExpiring
	default:
		return days, domain.ExpiryStatusOK
	}
}

// ExpiringWithin returns in-stock products expiring between today and days from now.
func ExpiringWithin(products []domain.Product, days int, now time.Time) []domain.Product {
	out := make([]domain.Product, 0)
	for _, p := range products {
		if p.Stock <= 0 {
			continue
		}
		d, ok := DaysUntil(p.ExpiryDate, now)
		if ok && d >= 0 && d <= days {
			out = append(out, p)
		}
	}
	return out
}

// ExpiringOrExpired also includes in-stock products already past expiry,
// soonest expiry first, capped at limit when limit > 0.
func ExpiringOrExpired(products []domain.Product, days int, now time.Time, limit int) []domain.ExpiryAlert {
	alerts := make([]domain.ExpiryAlert, 0)
	for _, p := range products {
		if p.Stock <= 0 {
			continue
		}
		d, ok := DaysUntil(p.ExpiryDate, now)
		if !ok || d > days {
			continue
		}
		_, status := ExpiryStatus(p.ExpiryDate, now)
		alerts = append(alerts, domain.ExpiryAlert{Product: p, DaysUntilExpiry: d, Status: status})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].DaysUntilExpiry == alerts[j].DaysUntilExpiry {
			return alerts[i].Product.ID < alerts[j].Product.ID
		}
		return alerts[i].DaysUntilExpiry < alerts[j].DaysUntilExpiry
	})
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts
}

// RevenueByCategory sums line revenue of sales made on day, grouped by each
// product's current category. Lines whose product no longer exists are skipped.
func RevenueByCategory(sales []domain.Sale, products []domain.Product, day time.Time) []domain.CategoryRevenue {
	categoryOf := make(map[int64]string, len(products))
	for _, p := range products {
		categoryOf[p.ID] = p.Category
	}

	revenue := make(map[string]decimal.Decimal)
	for _, sale := range sales {
		if !SameDay(sale.Date, day) {
			continue
		}
		for _, item := range sale.Items {
			category, ok := categoryOf[item.ProductID]
			if !ok {
				continue
			}
			revenue[category] = revenue[category].Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	out := make([]domain.CategoryRevenue, 0, len(revenue))
	for category, amount := range revenue {
		out = append(out, domain.CategoryRevenue{Category: category, Revenue: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Revenue.Cmp(out[j].Revenue); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// MonthlyTrend always returns twelve entries, January first. Sales of the
// same month in different years land in the same bucket.
func MonthlyTrend(sales []domain.Sale, loc *time.Location) []domain.MonthlySales {
	if loc == nil {
		loc = time.Local
	}
	var buckets [12]decimal.Decimal
	for _, sale := range sales {
		month := sale.Date.In(loc).Month()
		buckets[month-1] = buckets[month-1].Add(sale.Total)
	}

	out := make([]domain.MonthlySales, 0, 12)
	for i, total := range buckets {
		out = append(out, domain.MonthlySales{Month: time.Month(i + 1).String()[:3], Sales: total})
	}
	return out
}

func TopSellers(sales []domain.Sale, n int) []domain.TopSeller {
	index := make(map[int64]int)
	sellers := make([]domain.TopSeller, 0)
	for _, sale := range sales {
		for _, item := range sale.Items {
			i, ok := index[item.ProductID]
			if !ok {
				i = len(sellers)
				index[item.ProductID] = i
				sellers = append(sellers, domain.TopSeller{ProductID: item.ProductID, Name: item.Name})
			}
			sellers[i].Sold += item.Quantity
		}
	}
	sort.SliceStable(sellers, func(i, j int) bool {
		if sellers[i].Sold == sellers[j].Sold {
			return sellers[i].ProductID < sellers[j].ProductID
		}
		return sellers[i].Sold > sellers[j].Sold
	})
	if n >= 0 && len(sellers) > n {
		sellers = sellers[:n]
	}
	return sellers
}

func InventoryByCategory(products []domain.Product) []domain.CategoryStock {
	stock := make(map[string]int)
	for _, p := range products {
		stock[p.Category] += p.Stock
	}
	out := make([]domain.CategoryStock, 0, len(stock))
	for category, qty := range stock {
		out = append(out, domain.CategoryStock{Category: category, Stock: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// RecentSales returns the last n sales of the log, newest first.
func RecentSales(sales []domain.Sale, n int) []domain.Sale {
	start := len(sales) - n
	if start < 0 {
		start = 0
	}
	out := make([]domain.Sale, 0, len(sales)-start)
	for i := len(sales) - 1; i >= start; i-- {
		out = append(out, sales[i])
	}
	return out
}

// FilterSales selects sales in the requested period whose id contains query,
// newest first. Weeks start on Monday.
func FilterSales(sales []domain.Sale, filter domain.SalesFilter, now time.Time) ([]domain.Sale, error) {
	period := strings.ToLower(strings.TrimSpace(filter.Period))
	if period == "" {
		period = domain.PeriodAll
	}

	today := startOfDay(now)
	var from, to time.Time
	switch period {
	case domain.PeriodAll:
	case domain.PeriodToday:
		from, to = today, today.AddDate(0, 0, 1)
	case domain.PeriodWeek:
		offset := (int(today.Weekday()) + 6) % 7
		from = today.AddDate(0, 0, -offset)
		to = from.AddDate(0, 0, 7)
	case domain.PeriodMonth:
		from = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		to = from.AddDate(0, 1, 0)
	case domain.PeriodYear:
		from = time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
		to = from.AddDate(1, 0, 0)
	default:
		return nil, ErrUnknownPeriod
	}

	query := strings.TrimSpace(filter.Query)
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if !from.IsZero() && (sale.Date.Before(from) || !sale.Date.Before(to)) {
			continue
		}
		if query != "" && !strings.Contains(strconv.FormatInt(sale.ID, 10), query) {
			continue
		}
		out = append(out, sale)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func BuildDashboard(products []domain.Product, sales []domain.Sale, now time.Time) domain.Dashboard {
	today := TodaysSales(sales, now)
	revenue := decimal.Zero
	profit := decimal.Zero
	for _, sale := range today {
		revenue = revenue.Add(sale.Total)
		profit = profit.Add(sale.Profit)
	}

	return domain.Dashboard{
		Date:              now.Format(domain.DateLayout),
		TodaysRevenue:     revenue,
		TodaysProfit:      profit,
		TodaysSales:       len(today),
		LowStockItems:     LowStock(products),
		InventoryValue:    InventoryValue(products),
		ExpiringSoonCount: len(ExpiringWithin(products, ExpiryWindowDays, now)),
		RecentSales:       RecentSales(sales, DashboardListSize),
		ExpiringProducts:  ExpiringOrExpired(products, ExpiryWindowDays, now, DashboardListSize),
		RevenueByCategory: RevenueByCategory(sales, products, now),
	}
}

func BuildReport(products []domain.Product, sales []domain.Sale, now time.Time) domain.Report {
	return domain.Report{
		MonthlySales:        MonthlyTrend(sales, now.Location()),
		TopSellers:          TopSellers(sales, TopSellerCount),
		InventoryByCategory: InventoryByCategory(products),
	}
}
