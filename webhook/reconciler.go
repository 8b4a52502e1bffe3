package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"vitrine/models"
)

var (
	// ErrDuplicateEvent: this provider event was already processed. The
	// delivery is acknowledged without re-applying any effect.
	ErrDuplicateEvent = errors.New("webhook event already processed")

	// ErrStaleEvent: the payment already sits in a state the event cannot
	// move it from. Acknowledged and discarded.
	ErrStaleEvent = errors.New("stale webhook event")

	// ErrUnknownPayment: no local payment matches the event. Acknowledged so
	// the provider stops redelivering; logged for investigation.
	ErrUnknownPayment = errors.New("webhook references unknown payment")

	ErrUnknownEventType = errors.New("unhandled webhook event type")
)

// Event is one inbound provider notification, already authenticated by the
// transport layer.
type Event struct {
	EventID           string `json:"id"`
	EventType         string `json:"event"`
	PaymentExternalID string `json:"paymentId"`
	ExternalReference string `json:"externalReference"`
}

type TxnRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type EventLedger interface {
	// Record appends the event to the dedup ledger, returning
	// ErrDuplicateEvent when its id was seen before.
	Record(ctx context.Context, ev models.WebhookEvent) error
}

type PaymentStore interface {
	ByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	// ByOrderReference finds the pending payment attempt without an external
	// id for the order with the given order number.
	ByOrderReference(ctx context.Context, orderNumber string) (*models.Payment, error)
	SetStatus(ctx context.Context, paymentID string, status models.PaymentStatus, externalID string) error
}

type OrderStore interface {
	Get(ctx context.Context, orderID string) (*models.Order, error)
	SetPaymentStatus(ctx context.Context, orderID string, ps models.OrderPaymentStatus, os models.OrderStatus) error
}

type StockLedger interface {
	Restore(ctx context.Context, variantID string, qty int) error
}

type Notifier interface {
	OrderPaid(ctx context.Context, order *models.Order)
	OrderCancelled(ctx context.Context, order *models.Order)
}

// Reconciler folds provider webhook events into local payment and order
// state. Every effective transition runs inside one transaction together with
// the dedup ledger insert, so a redelivered event either fully applied before
// or not at all.
type Reconciler struct {
	Txn      TxnRunner
	Events   EventLedger
	Payments PaymentStore
	Orders   OrderStore
	Stock    StockLedger
	Notifier Notifier
}

// targetStatus maps the provider's event vocabulary onto payment states.
func targetStatus(eventType string) (models.PaymentStatus, error) {
	switch eventType {
	case "PAYMENT_CONFIRMED", "PAYMENT_RECEIVED":
		return models.PaymentConfirmed, nil
	case "PAYMENT_FAILED", "PAYMENT_OVERDUE":
		return models.PaymentFailed, nil
	case "PAYMENT_REFUNDED":
		return models.PaymentRefunded, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
}

// allowed reports whether a payment may move from its current state to the
// target. Transitions are forward-only; the single exception is a refund of an
// already confirmed payment.
func allowed(from, to models.PaymentStatus) bool {
	switch from {
	case models.PaymentPending:
		return to == models.PaymentConfirmed || to == models.PaymentFailed || to == models.PaymentRefunded
	case models.PaymentConfirmed:
		return to == models.PaymentRefunded
	}
	return false
}

// HandleEvent applies one provider event. The sentinel errors
// ErrDuplicateEvent, ErrStaleEvent, ErrUnknownPayment and ErrUnknownEventType
// all mean "acknowledge and drop"; anything else is a transient local failure
// the provider should redeliver for.
func (r *Reconciler) HandleEvent(ctx context.Context, ev Event) error {
	target, err := targetStatus(ev.EventType)
	if err != nil {
		return err
	}

	var settled *models.Order

	txnErr := r.Txn(ctx, func(ctx context.Context) error {
		settled = nil

		payment, err := r.findPayment(ctx, ev)
		if err != nil {
			return err
		}

		if err := r.Events.Record(ctx, models.WebhookEvent{
			EventID:    ev.EventID,
			EventType:  ev.EventType,
			PaymentID:  payment.ID,
			ReceivedAt: time.Now(),
		}); err != nil {
			return err
		}

		if !allowed(payment.Status, target) {
			return fmt.Errorf("%w: payment %s is %s, event wants %s",
				ErrStaleEvent, payment.ID, payment.Status, target)
		}

		externalID := payment.ExternalID
		if externalID == "" {
			// Unknown-outcome attempt: adopt the provider's id.
			externalID = ev.PaymentExternalID
		}
		if err := r.Payments.SetStatus(ctx, payment.ID, target, externalID); err != nil {
			return fmt.Errorf("update payment %s: %w", payment.ID, err)
		}

		order, err := r.cascade(ctx, payment.OrderID, target)
		if err != nil {
			return err
		}
		settled = order
		return nil
	})
	if txnErr != nil {
		return txnErr
	}

	if settled != nil {
		switch {
		case target == models.PaymentConfirmed && settled.Status == models.OrderCancelled:
			// Confirmation landed on a sweep-cancelled order. The customer is
			// owed a refund, not a "paid" notification.
		case target == models.PaymentConfirmed:
			r.Notifier.OrderPaid(ctx, settled)
		default:
			r.Notifier.OrderCancelled(ctx, settled)
		}
	}
	return nil
}

// findPayment resolves the event to a local payment, first by the provider's
// payment id, then by our order number for unknown-outcome attempts that never
// learned their external id.
func (r *Reconciler) findPayment(ctx context.Context, ev Event) (*models.Payment, error) {
	if ev.PaymentExternalID != "" {
		p, err := r.Payments.ByExternalID(ctx, ev.PaymentExternalID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrUnknownPayment) {
			return nil, err
		}
	}
	if ev.ExternalReference != "" {
		p, err := r.Payments.ByOrderReference(ctx, ev.ExternalReference)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrUnknownPayment) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: externalId=%q reference=%q",
		ErrUnknownPayment, ev.PaymentExternalID, ev.ExternalReference)
}

// cascade moves the order to match the payment's new state. A failed or
// refunded payment cancels the order and returns its stock, unless the order
// was already cancelled and its stock already restored.
func (r *Reconciler) cascade(ctx context.Context, orderID string, target models.PaymentStatus) (*models.Order, error) {
	order, err := r.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}

	switch target {
	case models.PaymentConfirmed:
		if order.Status == models.OrderCancelled {
			// Confirmed after the stale-order sweep cancelled it: the money
			// needs a refund, not a resurrection of the order.
			log.Printf("[Reconcile] payment confirmed for cancelled order %s; refund required", order.OrderNumber)
			if err := r.Orders.SetPaymentStatus(ctx, orderID, models.OrderPaymentPaid, models.OrderCancelled); err != nil {
				return nil, err
			}
			order.PaymentStatus = models.OrderPaymentPaid
			return order, nil
		}
		if err := r.Orders.SetPaymentStatus(ctx, orderID, models.OrderPaymentPaid, models.OrderProcessing); err != nil {
			return nil, err
		}
		order.PaymentStatus = models.OrderPaymentPaid
		order.Status = models.OrderProcessing

	case models.PaymentFailed, models.PaymentRefunded:
		ops := models.OrderPaymentFailed
		if target == models.PaymentRefunded {
			ops = models.OrderPaymentRefunded
		}
		restore := order.Status != models.OrderCancelled
		if err := r.Orders.SetPaymentStatus(ctx, orderID, ops, models.OrderCancelled); err != nil {
			return nil, err
		}
		if restore {
			for _, item := range order.Items {
				if err := r.Stock.Restore(ctx, item.VariantID, item.Quantity); err != nil {
					return nil, fmt.Errorf("restore stock for %s: %w", item.VariantID, err)
				}
			}
		}
		order.PaymentStatus = ops
		order.Status = models.OrderCancelled
	}
	return order, nil
}
