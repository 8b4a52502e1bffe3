package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"vitrine/gateway"
	"vitrine/models"
	"vitrine/utils"
)

// Request is the client's checkout input. The shipping cost comes from the
// upstream shipping-quote service and is trusted as-is; everything priced is
// recomputed server-side.
type Request struct {
	AddressID    string               `json:"addressId"`
	Method       models.PaymentMethod `json:"paymentMethod"`
	CouponCode   string               `json:"couponCode,omitempty"`
	ShippingCost float64              `json:"shippingCost"`
	Card         *gateway.CardDetails `json:"card,omitempty"`
}

// TxnRunner executes fn as one atomic unit against the store. The runner may
// re-run fn after a transient abort, so fn must only contain local store
// operations, never network calls. Production wiring uses db.WithTxn; tests
// substitute a plain call-through.
type TxnRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type CartStore interface {
	Items(ctx context.Context, userID string) ([]models.CartItem, error)
	Clear(ctx context.Context, userID string) error
}

type AddressStore interface {
	Owned(ctx context.Context, userID, addressID string) (bool, error)
}

type UserStore interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	SetCustomerID(ctx context.Context, userID, customerID string) error
}

type Ledger interface {
	Decrement(ctx context.Context, variantID string, qty int) (bool, error)
	Restore(ctx context.Context, variantID string, qty int) error
	Variant(ctx context.Context, variantID string) (*models.ProductVariant, error)
}

type CouponStore interface {
	Validate(ctx context.Context, code string, subtotal float64) (float64, error)
	Consume(ctx context.Context, code string) error
	Unconsume(ctx context.Context, code string) error
}

type OrderStore interface {
	Insert(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, orderID string) error
	InsertPayment(ctx context.Context, payment *models.Payment) error
	SetPaymentStatus(ctx context.Context, orderID string, ps models.OrderPaymentStatus, os models.OrderStatus) error
}

type Gateway interface {
	EnsureCustomer(ctx context.Context, user *models.User) (string, error)
	CreatePayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error)
}

type Notifier interface {
	OrderCreated(ctx context.Context, order *models.Order)
}

// Service coordinates the checkout saga in three phases: a local reservation
// transaction (stock, coupon, order), a single external gateway call, and a
// local settle or compensate transaction. The gateway call sits between the
// transactions, never inside one: a transaction runner may re-run its
// callback after a transient abort, and payment creation must happen at most
// once per checkout.
type Service struct {
	Txn       TxnRunner
	Carts     CartStore
	Addresses AddressStore
	Users     UserStore
	Ledger    Ledger
	Coupons   CouponStore
	Orders    OrderStore
	Gateway   Gateway
	Notifier  Notifier
}

// ProcessCheckout converts the user's cart into a persisted Order plus an
// initiated Payment. A failure before or during the gateway call leaves
// stock, coupon counters and the order tables as they were before the
// attempt.
//
// On ErrGatewayUnknown the returned order and payment WERE committed: the
// payment attempt's outcome is unknown and will be reconciled by webhook (or
// eventually cancelled by the stale-order sweep).
func (s *Service) ProcessCheckout(ctx context.Context, userID string, req Request) (*models.Order, *models.Payment, error) {
	if !req.Method.Valid() {
		return nil, nil, ErrInvalidMethod
	}
	if req.ShippingCost < 0 {
		return nil, nil, fmt.Errorf("negative shipping cost")
	}
	if req.Method == models.MethodCreditCard && req.Card == nil {
		return nil, nil, fmt.Errorf("%w: card details required", ErrInvalidMethod)
	}

	items, err := s.Carts.Items(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		return nil, nil, ErrEmptyCart
	}

	owned, err := s.Addresses.Owned(ctx, userID, req.AddressID)
	if err != nil {
		return nil, nil, fmt.Errorf("check address: %w", err)
	}
	if !owned {
		return nil, nil, ErrAddressNotOwned
	}

	user, err := s.Users.Get(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	// Provider customer creation is idempotent and harmless if checkout
	// later fails, so it happens before the transactional phase.
	customerID, err := s.Gateway.EnsureCustomer(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if user.GatewayCustomerID == "" {
		if err := s.Users.SetCustomerID(ctx, userID, customerID); err != nil {
			return nil, nil, fmt.Errorf("cache customer id: %w", err)
		}
		user.GatewayCustomerID = customerID
	}

	// Phase 1: reservation. Stock decrements, coupon consumption and the
	// PENDING order commit or roll back together.
	var order *models.Order
	txnErr := s.Txn(ctx, func(ctx context.Context) error {
		o, err := s.reserve(ctx, userID, items, req)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if txnErr != nil {
		return nil, nil, txnErr
	}

	// Phase 2: exactly one provider call for this checkout.
	payment, payErr := s.collect(ctx, order, user, req)

	// Phase 3: settle or compensate.
	switch {
	case payErr == nil:

	case errors.Is(payErr, gateway.ErrUnknownOutcome):
		payment = &models.Payment{
			ID:        utils.GetUUID(),
			OrderID:   order.ID,
			Method:    req.Method,
			Status:    models.PaymentPending,
			Amount:    order.Total,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := s.Orders.InsertPayment(ctx, payment); err != nil {
			// The PENDING order stays; the sweep cancels it if no webhook
			// ever matches it by order number.
			return nil, nil, fmt.Errorf("persist unknown-outcome payment: %w", err)
		}

	case errors.Is(payErr, ErrGateway):
		if err := s.compensate(ctx, order, req); err != nil {
			// The order is still PENDING; the sweep will cancel it and
			// restore its stock.
			log.Printf("ProcessCheckout: compensation failed for order %s: %v", order.OrderNumber, err)
		}
		return nil, nil, payErr

	default:
		// The provider accepted the payment but settling it locally failed.
		// Never compensate here: the charge exists. The order stays PENDING
		// for webhook reconciliation.
		log.Printf("ProcessCheckout: settle failed for order %s: %v", order.OrderNumber, payErr)
		return nil, nil, payErr
	}

	// Post-commit side effects: both fire-and-forget.
	go s.Notifier.OrderCreated(context.WithoutCancel(ctx), order)
	if err := s.Carts.Clear(ctx, userID); err != nil {
		log.Printf("ProcessCheckout: cart clear failed for user %s: %v", userID, err)
	}

	if payErr != nil {
		return order, payment, ErrGatewayUnknown
	}
	return order, payment, nil
}

// reserve holds stock for every cart item, snapshots prices, applies and
// consumes the coupon and persists the PENDING order. Runs inside the
// reservation transaction: a failure on any step rolls back everything,
// including decrements already applied and the coupon use.
func (s *Service) reserve(ctx context.Context, userID string, items []models.CartItem, req Request) (*models.Order, error) {
	orderItems := make([]models.OrderItem, 0, len(items))
	for _, it := range items {
		v, err := s.Ledger.Variant(ctx, it.VariantID)
		if err != nil {
			return nil, fmt.Errorf("load variant %s: %w", it.VariantID, err)
		}

		ok, err := s.Ledger.Decrement(ctx, it.VariantID, it.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &InsufficientStockError{VariantID: it.VariantID}
		}

		orderItems = append(orderItems, models.OrderItem{
			VariantID: it.VariantID,
			Name:      v.Name,
			Quantity:  it.Quantity,
			UnitPrice: v.Price,
		})
	}

	now := time.Now()
	o := &models.Order{
		ID:            utils.GetUUID(),
		UserID:        userID,
		AddressID:     req.AddressID,
		Items:         orderItems,
		ShippingCost:  req.ShippingCost,
		CouponCode:    req.CouponCode,
		Status:        models.OrderPending,
		PaymentStatus: models.OrderPaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.ComputeTotal()

	if req.CouponCode != "" {
		discount, err := s.Coupons.Validate(ctx, req.CouponCode, o.Subtotal)
		if err != nil {
			return nil, &InvalidCouponError{Reason: err}
		}
		o.Discount = discount
		o.ComputeTotal()

		// Consumed here, before any money moves: a concurrent checkout
		// exhausting the limit aborts this reservation, not a paid-for
		// order.
		if err := s.Coupons.Consume(ctx, req.CouponCode); err != nil {
			return nil, &InvalidCouponError{Reason: err}
		}
	}

	for attempt := 0; ; attempt++ {
		o.OrderNumber = utils.GenerateOrderNumber()
		err := s.Orders.Insert(ctx, o)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateNumber) && attempt < 4 {
			continue
		}
		return nil, fmt.Errorf("persist order: %w", err)
	}
	return o, nil
}

// collect creates the provider payment for the reserved order and settles
// the Payment row with the provider's artifacts. A synchronously confirmed
// card charge cascades to the order immediately; later webhooks for it are
// stale no-ops.
func (s *Service) collect(ctx context.Context, o *models.Order, user *models.User, req Request) (*models.Payment, error) {
	greq := gateway.PaymentRequest{
		CustomerID:        user.GatewayCustomerID,
		Method:            req.Method,
		Amount:            o.Total,
		Description:       "Order " + o.OrderNumber,
		ExternalReference: o.OrderNumber,
		Card:              req.Card,
	}
	if req.Method == models.MethodBoleto {
		greq.DueDate = time.Now().AddDate(0, 0, 3)
	}

	res, err := s.Gateway.CreatePayment(ctx, greq)
	if err != nil {
		if errors.Is(err, gateway.ErrUnknownOutcome) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	now := time.Now()
	p := &models.Payment{
		ID:           utils.GetUUID(),
		OrderID:      o.ID,
		ExternalID:   res.ExternalID,
		Method:       req.Method,
		Status:       res.Status,
		Amount:       o.Total,
		PixQrCode:    res.PixQrCode,
		PixCopyPaste: res.PixCopyPaste,
		BankSlipURL:  res.BankSlipURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.Txn(ctx, func(ctx context.Context) error {
		if err := s.Orders.InsertPayment(ctx, p); err != nil {
			return fmt.Errorf("persist payment: %w", err)
		}
		if res.Status == models.PaymentConfirmed {
			if err := s.Orders.SetPaymentStatus(ctx, o.ID, models.OrderPaymentPaid, models.OrderProcessing); err != nil {
				return fmt.Errorf("cascade confirmed payment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Status == models.PaymentConfirmed {
		o.PaymentStatus = models.OrderPaymentPaid
		o.Status = models.OrderProcessing
	}
	return p, nil
}

// compensate undoes a committed reservation after the provider unambiguously
// rejected the payment: the order row is removed, held stock returns and the
// coupon use is handed back, leaving every table as it was before the
// attempt.
func (s *Service) compensate(ctx context.Context, o *models.Order, req Request) error {
	return s.Txn(ctx, func(ctx context.Context) error {
		if err := s.Orders.Delete(ctx, o.ID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		for _, item := range o.Items {
			if err := s.Ledger.Restore(ctx, item.VariantID, item.Quantity); err != nil {
				return fmt.Errorf("restore stock for %s: %w", item.VariantID, err)
			}
		}
		if req.CouponCode != "" {
			if err := s.Coupons.Unconsume(ctx, req.CouponCode); err != nil {
				return fmt.Errorf("return coupon use: %w", err)
			}
		}
		return nil
	})
}
