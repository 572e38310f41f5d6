package models

import "github.com/shopspring/decimal"

// Product is the document persisted through /api/products.
// An empty ID means the product has not been created yet.
type Product struct {
	ID          string            `json:"_id,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Price       decimal.Decimal   `json:"price"`
	Images      []string          `json:"images"`
	Category    string            `json:"category,omitempty"`
	Properties  map[string]string `json:"properties"`
}
