package models

import "time"

// ProductVariant is the sellable unit. Stock is a non-negative integer; all
// decrements go through the inventory ledger's conditional update so it can
// never go below zero.
type ProductVariant struct {
	VariantID string    `json:"variantId" bson:"variantId"`
	ProductID string    `json:"productId" bson:"productId"`
	Name      string    `json:"name" bson:"name"`
	SKU       string    `json:"sku" bson:"sku"`
	Price     float64   `json:"price" bson:"price"`
	Stock     int       `json:"stock" bson:"stock"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
