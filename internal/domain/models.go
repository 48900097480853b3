package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for product expiry dates.
const DateLayout = "2006-01-02"

type Product struct {
	ID             int64           `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Category       string          `json:"category" db:"category"`
	Price          decimal.Decimal `json:"price" db:"price"`
	PurchasedPrice decimal.Decimal `json:"purchased_price" db:"purchased_price"`
	Stock          int             `json:"stock" db:"stock"`
	ExpiryDate     string          `json:"expiry_date" db:"expiry_date"`
}

type ProductRequest struct {
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Price          decimal.Decimal `json:"price"`
	PurchasedPrice decimal.Decimal `json:"purchased_price"`
	Stock          int             `json:"stock"`
	ExpiryDate     string          `json:"expiry_date"`
}

type Category struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type CategoryRequest struct {
	Name string `json:"name"`
}

type TaxRate struct {
	ID   int64           `json:"id" db:"id"`
	Name string          `json:"name" db:"name"`
	Rate decimal.Decimal `json:"rate" db:"rate"`
}

type TaxRateRequest struct {
	Name string          `json:"name"`
	Rate decimal.Decimal `json:"rate"`
}

// SaleItem is a frozen copy of a cart line taken at commit time.
type SaleItem struct {
	ProductID      int64           `json:"product_id" db:"product_id"`
	Name           string          `json:"name" db:"name"`
	Price          decimal.Decimal `json:"price" db:"price"`
	PurchasedPrice decimal.Decimal `json:"purchased_price" db:"purchased_price"`
	Quantity       int             `json:"quantity" db:"quantity"`
}

type Sale struct {
	ID        int64           `json:"id"`
	Date      time.Time       `json:"date"`
	Items     []SaleItem      `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	TaxName   string          `json:"tax_name"`
	Profit    decimal.Decimal `json:"profit"`
	Total     decimal.Decimal `json:"total"`
}

// CartItem carries the price snapshot taken when the product was added to the cart.
type CartItem struct {
	ProductID      int64           `json:"product_id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	PurchasedPrice decimal.Decimal `json:"purchased_price"`
	Quantity       int             `json:"quantity"`
}

type CartTotals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total"`
	Profit    decimal.Decimal `json:"profit"`
}

type CartLineRequest struct {
	ProductID      int64               `json:"product_id"`
	Quantity       int                 `json:"quantity"`
	Price          decimal.NullDecimal `json:"price"`
	PurchasedPrice decimal.NullDecimal `json:"purchased_price"`
}

type CheckoutRequest struct {
	Items     []CartLineRequest `json:"items"`
	TaxRateID int64             `json:"tax_rate_id"`
}

// Cart edit actions.
const (
	CartAdd    = "add"
	CartSet    = "set"
	CartRemove = "remove"
	CartClear  = "clear"
)

// CartEditRequest applies one register edit to the cart the client holds.
type CartEditRequest struct {
	Items     []CartLineRequest `json:"items"`
	TaxRateID int64             `json:"tax_rate_id"`
	Action    string            `json:"action"`
	ProductID int64             `json:"product_id"`
	Quantity  int               `json:"quantity"`
}

type CartQuote struct {
	Items   []CartItem `json:"items"`
	Lines   int        `json:"lines"`
	TaxRate TaxRate    `json:"tax_rate"`
	CartTotals
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
}

const (
	StockStatusInStock    = "in_stock"
	StockStatusLowStock   = "low_stock"
	StockStatusOutOfStock = "out_of_stock"
)

const (
	ExpiryStatusOK       = "ok"
	ExpiryStatusExpiring = "expiring"
	ExpiryStatusExpired  = "expired"
)

type ExpiryAlert struct {
	Product         Product `json:"product"`
	DaysUntilExpiry int     `json:"days_until_expiry"`
	Status          string  `json:"status"`
}

type CategoryRevenue struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type CategoryStock struct {
	Category string `json:"category"`
	Stock    int    `json:"stock"`
}

type MonthlySales struct {
	Month string          `json:"month"`
	Sales decimal.Decimal `json:"sales"`
}

type TopSeller struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Sold      int    `json:"sold"`
}

type Dashboard struct {
	Date              string            `json:"date"`
	TodaysRevenue     decimal.Decimal   `json:"todays_revenue"`
	TodaysProfit      decimal.Decimal   `json:"todays_profit"`
	TodaysSales       int               `json:"todays_sales"`
	LowStockItems     int               `json:"low_stock_items"`
	InventoryValue    decimal.Decimal   `json:"inventory_value"`
	ExpiringSoonCount int               `json:"expiring_soon_count"`
	RecentSales       []Sale            `json:"recent_sales"`
	ExpiringProducts  []ExpiryAlert     `json:"expiring_products"`
	RevenueByCategory []CategoryRevenue `json:"revenue_by_category"`
}

type Report struct {
	MonthlySales        []MonthlySales  `json:"monthly_sales"`
	TopSellers          []TopSeller     `json:"top_sellers"`
	InventoryByCategory []CategoryStock `json:"inventory_by_category"`
}

const (
	PeriodAll   = "all"
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

type SalesFilter struct {
	Period string
	Query  string
}
