// Package seed holds the demo pharmacy catalog loaded into empty stores.
package seed

import (
	"github.com/shopspring/decimal"

	"pharmasys/internal/domain"
)

func Categories() []domain.Category {
	names := []string{
		"Pain Relief", "Allergy", "Antibiotics", "Vitamins", "Diabetes",
		"Blood Pressure", "Cholesterol", "Cold & Flu", "First Aid",
	}
	categories := make([]domain.Category, 0, len(names))
	for i, name := range names {
		categories = append(categories, domain.Category{ID: int64(i + 1), Name: name})
	}
	return categories
}

func TaxRates() []domain.TaxRate {
	return []domain.TaxRate{
		{ID: 1, Name: "Standard VAT", Rate: decimal.RequireFromString("0.15")},
		{ID: 2, Name: "Reduced Rate", Rate: decimal.RequireFromString("0.05")},
		{ID: 3, Name: "Exempt", Rate: decimal.Zero},
	}
}

func Products() []domain.Product {
	rows := []struct {
		name, category, price, cost string
		stock                       int
		expiry                      string
	}{
		{"Paracetamol 500mg", "Pain Relief", "5.99", "2.50", 120, "2025-12-31"},
		{"Ibuprofen 200mg", "Pain Relief", "7.49", "3.10", 85, "2024-08-15"},
		{"Aspirin 100mg", "Pain Relief", "4.25", "1.80", 200, "2026-01-01"},
		{"Loratadine 10mg", "Allergy", "12.99", "6.50", 50, "2024-07-30"},
		{"Cetirizine 10mg", "Allergy", "11.50", "5.75", 8, "2023-12-01"},
		{"Amoxicillin 250mg", "Antibiotics", "15.00", "8.00", 30, "2025-05-20"},
		{"Azithromycin 500mg", "Antibiotics", "25.75", "14.20", 22, "2024-09-01"},
		{"Vitamin C 1000mg", "Vitamins", "9.99", "4.80", 150, "2026-06-30"},
		{"Vitamin D3 2000IU", "Vitamins", "14.50", "7.00", 0, "2025-02-28"},
		{"Metformin 500mg", "Diabetes", "18.20", "9.50", 65, "2024-11-10"},
		{"Lisinopril 10mg", "Blood Pressure", "10.80", "5.25", 75, "2025-08-01"},
		{"Atorvastatin 20mg", "Cholesterol", "22.40", "11.00", 40, "2024-08-25"},
		{"Cough Syrup", "Cold & Flu", "8.99", "4.00", 90, "2025-10-15"},
		{"Nasal Spray", "Cold & Flu", "6.50", "2.75", 5, "2024-06-30"},
		{"Band-Aids (Box)", "First Aid", "3.50", "1.20", 300, "2028-01-01"},
	}

	products := make([]domain.Product, 0, len(rows))
	for i, r := range rows {
		products = append(products, domain.Product{
			ID:             int64(i + 1),
			Name:           r.name,
			Category:       r.category,
			Price:          decimal.RequireFromString(r.price),
			PurchasedPrice: decimal.RequireFromString(r.cost),
			Stock:          r.stock,
			ExpiryDate:     r.expiry,
		})
	}
	return products
}
