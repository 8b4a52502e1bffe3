package mq

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"vitrine/models"
	"vitrine/rdx"
)

// OrderEvent is broadcast on redis pubsub whenever an order changes state.
// The live order stream and any external consumers subscribe to these.
type OrderEvent struct {
	Event         string    `json:"event"`
	OrderID       string    `json:"orderId"`
	OrderNumber   string    `json:"orderNumber"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	At            time.Time `json:"at"`
}

// Channel returns the pubsub channel carrying events for one order.
func Channel(orderID string) string {
	return "order-events:" + orderID
}

// Emit publishes an order event. Failures are logged and swallowed; event
// delivery is best-effort and must never fail the operation that caused it.
func Emit(ctx context.Context, event string, order *models.Order) {
	payload := OrderEvent{
		Event:         event,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		At:            time.Now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Emit] marshal failed for order %s: %v", order.ID, err)
		return
	}
	if err := rdx.Publish(ctx, Channel(order.ID), data); err != nil {
		log.Printf("[Emit] publish failed for order %s: %v", order.ID, err)
	}
}

// Notifier triggers customer-facing notifications. Fire-and-forget by
// contract: a notification failure never fails checkout or reconciliation.
type Notifier struct{}

func (Notifier) OrderCreated(ctx context.Context, order *models.Order) {
	log.Printf("[Notify] order-created order=%s number=%s total=%.2f", order.ID, order.OrderNumber, order.Total)
	Emit(ctx, "order-created", order)
}

func (Notifier) OrderPaid(ctx context.Context, order *models.Order) {
	log.Printf("[Notify] order-paid order=%s number=%s", order.ID, order.OrderNumber)
	Emit(ctx, "order-paid", order)
}

func (Notifier) OrderCancelled(ctx context.Context, order *models.Order) {
	log.Printf("[Notify] order-cancelled order=%s number=%s", order.ID, order.OrderNumber)
	Emit(ctx, "order-cancelled", order)
}
