// Package export flattens catalog and metrics snapshots into plain records
// and encodes them as CSV, JSON or a printable HTML table.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"pharmasys/internal/domain"
	"pharmasys/internal/metrics"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

const (
	KindInventory = "inventory"
	KindSales     = "sales"
)

var (
	ErrNoData        = errors.New("no data to export")
	ErrUnknownFormat = errors.New("unknown export format")
	ErrUnknownKind   = errors.New("unknown export kind")
)

// Table is a flat list of records ready to encode.
type Table struct {
	Title    string
	BaseName string
	Columns  []string
	Rows     [][]string
	// Records is the typed form of Rows used for JSON output.
	Records any
}

func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatCSV, FormatJSON, FormatHTML:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "text/csv; charset=utf-8"
	}
}

// FileName follows <base>_<YYYY-MM-DD>.<ext>.
func FileName(t Table, f Format, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", t.BaseName, at.Format(domain.DateLayout), f)
}

// InventoryFilter selects products by stock status and category. Empty sets
// select everything.
type InventoryFilter struct {
	Statuses   []string
	Categories []string
}

type InventoryRecord struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	Price          string `json:"price"`
	PurchasedPrice string `json:"purchased_price"`
	Stock          int    `json:"stock"`
	ExpiryDate     string `json:"expiry_date"`
	Status         string `json:"status"`
}

func InventoryTable(products []domain.Product, filter InventoryFilter) (Table, error) {
	statuses := toSet(filter.Statuses)
	categories := toSet(filter.Categories)

	records := make([]InventoryRecord, 0, len(products))
	for _, p := range products {
		status := metrics.StockStatus(p.Stock)
		if len(statuses) > 0 && !statuses[status] {
			continue
		}
		if len(categories) > 0 && !categories[strings.ToLower(p.Category)] {
			continue
		}
		records = append(records, InventoryRecord{
			Name:           p.Name,
			Category:       p.Category,
			Price:          p.Price.StringFixed(2),
			PurchasedPrice: p.PurchasedPrice.StringFixed(2),
			Stock:          p.Stock,
			ExpiryDate:     p.ExpiryDate,
			Status:         status,
		})
	}
	if len(records) == 0 {
		return Table{}, ErrNoData
	}

	table := Table{
		Title:    "Inventory Status Report",
		BaseName: "inventory_report",
		Columns:  []string{"name", "category", "price", "purchased_price", "stock", "expiry_date", "status"},
		Records:  records,
	}
	for _, r := range records {
		table.Rows = append(table.Rows, []string{r.Name, r.Category, r.Price, r.PurchasedPrice, strconv.Itoa(r.Stock), r.ExpiryDate, r.Status})
	}
	return table, nil
}

type MonthlySalesRecord struct {
	Month string `json:"month"`
	Sales string `json:"sales"`
}

// MonthlySalesTable keeps only the months that had sales.
func MonthlySalesTable(trend []domain.MonthlySales) (Table, error) {
	records := make([]MonthlySalesRecord, 0, len(trend))
	for _, m := range trend {
		if !m.Sales.IsPositive() {
			continue
		}
		records = append(records, MonthlySalesRecord{Month: m.Month, Sales: m.Sales.StringFixed(2)})
	}
	if len(records) == 0 {
		return Table{}, ErrNoData
	}

	table := Table{
		Title:    "Monthly Sales Report",
		BaseName: "monthly_sales_report",
		Columns:  []string{"month", "sales"},
		Records:  records,
	}
	for _, r := range records {
		table.Rows = append(table.Rows, []string{r.Month, r.Sales})
	}
	return table, nil
}

func Encode(w io.Writer, t Table, f Format, generatedAt time.Time) error {
	switch f {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(t.Columns); err != nil {
			return err
		}
		if err := cw.WriteAll(t.Rows); err != nil {
			return err
		}
		return cw.Error()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t.Records)
	case FormatHTML:
		return printableTmpl.Execute(w, struct {
			Table
			GeneratedAt string
		}{Table: t, GeneratedAt: generatedAt.Format("2006-01-02 15:04")})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

var printableTmpl = template.Must(template.New("export").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>{{.Title}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; text-align: left; }
    th { background-color: #f2f2f2; }
  </style>
</head>
<body>
  <h2>{{.Title}}</h2>
  <p>Generated on: {{.GeneratedAt}}</p>
  <table>
    <thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
    <tbody>{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = true
		}
	}
	return set
}
