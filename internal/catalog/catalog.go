// Package catalog serves the product categories and products offered to
// approved customers, per credit segment.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrUnknownCategory is returned when a category has no products for a segment.
var ErrUnknownCategory = errors.New("catalog: unknown category")

// Product is one financeable item.
type Product struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Brand     string  `json:"brand"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
	ImagePath string  `json:"image_path,omitempty"`
}

// Store reads the catalog.
type Store interface {
	Categories(ctx context.Context, segment string) ([]string, error)
	Products(ctx context.Context, segment, category string) ([]Product, error)
}

// Affordable returns the products whose price fits within credit, cheapest first,
// capped at limit (limit <= 0 means no cap).
func Affordable(products []Product, credit float64, limit int) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if credit <= 0 || p.Price <= credit {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// NormalizeCategory lowercases and trims a category name.
func NormalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
