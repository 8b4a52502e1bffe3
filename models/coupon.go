package models

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// Coupon discounts a checkout subtotal. UsageCount is incremented exactly
// once per successful checkout, never by failed attempts.
type Coupon struct {
	Code         string       `json:"code" bson:"code"`
	DiscountType DiscountType `json:"discountType" bson:"discountType"`
	// Percent (e.g. 10 means 10%) or a fixed amount, per DiscountType.
	Value       float64   `json:"value" bson:"value"`
	MinPurchase float64   `json:"minPurchase,omitempty" bson:"minPurchase,omitempty"`
	UsageLimit  int       `json:"usageLimit,omitempty" bson:"usageLimit,omitempty"`
	UsageCount  int       `json:"usageCount" bson:"usageCount"`
	ExpiresAt   time.Time `json:"expiresAt" bson:"expiresAt"`
	Active      bool      `json:"active" bson:"active"`
}
