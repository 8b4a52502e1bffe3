package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrAddressNotOwned = errors.New("address does not belong to user")
	ErrInvalidMethod   = errors.New("invalid payment method")

	// ErrGateway: the provider rejected or never received the payment
	// request. Everything was rolled back; the caller may retry checkout.
	ErrGateway = errors.New("payment gateway error")

	// ErrGatewayUnknown: the payment request timed out after send. The order
	// and a pending payment attempt were committed for webhook
	// reconciliation; the caller must NOT retry.
	ErrGatewayUnknown = errors.New("payment gateway outcome unknown")

	// ErrDuplicateNumber: order number collided with an existing order.
	// Retried internally, never surfaced to the caller.
	ErrDuplicateNumber = errors.New("order number already taken")
)

// InsufficientStockError names the variant that could not be reserved.
type InsufficientStockError struct {
	VariantID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s", e.VariantID)
}

// InvalidCouponError carries the rejection reason from the coupon rules.
type InvalidCouponError struct {
	Reason error
}

func (e *InvalidCouponError) Error() string {
	return fmt.Sprintf("invalid coupon: %v", e.Reason)
}

func (e *InvalidCouponError) Unwrap() error {
	return e.Reason
}
