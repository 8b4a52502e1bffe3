package models

import "time"

// CartItem represents a single item in the user's cart. Carts are ephemeral
// pre-order state; checkout reads them and clears them after commit.
type CartItem struct {
	UserID    string    `json:"userId" bson:"userId"`
	VariantID string    `json:"variantId" bson:"variantId"`
	Quantity  int       `json:"quantity" bson:"quantity"`
	AddedAt   time.Time `json:"addedAt" bson:"addedAt"`
}
