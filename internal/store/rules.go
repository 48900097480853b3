package store

import (
	"fmt"
	"strings"
	"time"

	"pharmasys/internal/domain"
)

// NormalizeName trims surrounding whitespace and collapses inner runs of spaces.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

func SameName(a string, b string) bool {
	return strings.EqualFold(NormalizeName(a), NormalizeName(b))
}

// NextID returns max+1 over the given ids, or 1 when there are none.
func NextID(ids ...int64) int64 {
	next := int64(1)
	for _, id := range ids {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

// ValidateProduct checks the fields every stored product must satisfy.
// The category reference is checked separately against the category set.
func ValidateProduct(p domain.Product) error {
	if NormalizeName(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if NormalizeName(p.Category) == "" {
		return fmt.Errorf("%w: product category is required", ErrInvalidInput)
	}
	if p.Price.IsNegative() || p.PurchasedPrice.IsNegative() {
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidInput)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	if _, err := time.Parse(domain.DateLayout, p.ExpiryDate); err != nil {
		return fmt.Errorf("%w: expiry date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return nil
}

func ValidateTaxRate(t domain.TaxRate) error {
	if NormalizeName(t.Name) == "" {
		return fmt.Errorf("%w: tax name is required", ErrInvalidInput)
	}
	if t.Rate.IsNegative() {
		return fmt.Errorf("%w: tax rate must not be negative", ErrInvalidInput)
	}
	return nil
}

// ResolveCategory returns the canonical spelling of name among categories.
func ResolveCategory(categories []domain.Category, name string) (string, error) {
	for _, c := range categories {
		if SameName(c.Name, name) {
			return c.Name, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, NormalizeName(name))
}

// CategoryNameTaken reports whether name collides with a category other than exceptID.
func CategoryNameTaken(categories []domain.Category, name string, exceptID int64) bool {
	for _, c := range categories {
		if c.ID != exceptID && SameName(c.Name, name) {
			return true
		}
	}
	return false
}

func TaxNameTaken(taxes []domain.TaxRate, name string, exceptID int64) bool {
	for _, t := range taxes {
		if t.ID != exceptID && SameName(t.Name, name) {
			return true
		}
	}
	return false
}
