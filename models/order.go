package models

import "time"

// Order status lifecycle. PENDING orders are abandonable; CANCELLED is
// terminal, DELIVERED is terminal.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// Order-level payment status, cascaded from payment events.
type OrderPaymentStatus string

const (
	OrderPaymentPending  OrderPaymentStatus = "PENDING"
	OrderPaymentPaid     OrderPaymentStatus = "PAID"
	OrderPaymentFailed   OrderPaymentStatus = "FAILED"
	OrderPaymentRefunded OrderPaymentStatus = "REFUNDED"
)

// OrderItem is an immutable snapshot of a purchased variant. UnitPrice is the
// catalog price at purchase time, decoupled from later price changes.
type OrderItem struct {
	VariantID string  `json:"variantId" bson:"variantId"`
	Name      string  `json:"name" bson:"name"`
	Quantity  int     `json:"quantity" bson:"quantity"`
	UnitPrice float64 `json:"unitPrice" bson:"unitPrice"`
	LineTotal float64 `json:"lineTotal" bson:"lineTotal"`
}

// Order is the durable record of a purchase attempt. Once a payment exists
// for it, it is never deleted, only transitioned to a terminal status; a
// reservation whose payment the provider rejected is removed outright.
type Order struct {
	ID            string             `json:"id" bson:"_id"`
	OrderNumber   string             `json:"orderNumber" bson:"orderNumber"`
	UserID        string             `json:"userId" bson:"userId"`
	AddressID     string             `json:"addressId" bson:"addressId"`
	Items         []OrderItem        `json:"items" bson:"items"`
	Subtotal      float64            `json:"subtotal" bson:"subtotal"`
	ShippingCost  float64            `json:"shippingCost" bson:"shippingCost"`
	Discount      float64            `json:"discount" bson:"discount"`
	Total         float64            `json:"total" bson:"total"`
	CouponCode    string             `json:"couponCode,omitempty" bson:"couponCode,omitempty"`
	Status        OrderStatus        `json:"status" bson:"status"`
	PaymentStatus OrderPaymentStatus `json:"paymentStatus" bson:"paymentStatus"`
	TrackingCode  string             `json:"trackingCode,omitempty" bson:"trackingCode,omitempty"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// ComputeTotal recomputes subtotal and total from the persisted item prices.
// Totals are never trusted from client input. The result is clamped at zero:
// a discount can never push the total negative.
func (o *Order) ComputeTotal() {
	subtotal := 0.0
	for i := range o.Items {
		o.Items[i].LineTotal = round2(o.Items[i].UnitPrice * float64(o.Items[i].Quantity))
		subtotal += o.Items[i].LineTotal
	}
	o.Subtotal = round2(subtotal)
	total := o.Subtotal + o.ShippingCost - o.Discount
	if total < 0 {
		total = 0
	}
	o.Total = round2(total)
}
