package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"vitrine/gateway"
	"vitrine/models"
)

// memEnv implements the service's store interfaces in memory. Txn snapshots
// the mutable state and restores it when the callback fails, mirroring a
// transaction abort; retryTxns simulates the driver re-running the callback
// after a transient abort.
type memEnv struct {
	txMu sync.Mutex
	mu   sync.Mutex

	stock    map[string]*models.ProductVariant
	carts    map[string][]models.CartItem
	addrs    map[string]string
	users    map[string]*models.User
	orders   map[string]*models.Order
	payments []*models.Payment

	discount   float64
	couponErr  error
	consumeErr error
	couponUses int

	dupInserts int
	retryTxns  int

	cleared  []string
	notified []string

	gw *fakeGateway
}

type envSnap struct {
	stock      map[string]models.ProductVariant
	orders     map[string]models.Order
	payments   []models.Payment
	couponUses int
}

func newEnv() *memEnv {
	return &memEnv{
		stock: map[string]*models.ProductVariant{
			"v1": {VariantID: "v1", Name: "Blue Shirt M", Price: 50, Stock: 10},
		},
		carts: map[string][]models.CartItem{
			"u1": {{UserID: "u1", VariantID: "v1", Quantity: 2}},
		},
		addrs:  map[string]string{"a1": "u1"},
		users:  map[string]*models.User{"u1": {ID: "u1", Name: "Ana", GatewayCustomerID: "cus_1"}},
		orders: map[string]*models.Order{},
		gw: &fakeGateway{result: gateway.PaymentResult{
			ExternalID:   "pay_1",
			Status:       models.PaymentPending,
			PixCopyPaste: "00020126PIX",
		}},
	}
}

func (m *memEnv) service() *Service {
	return &Service{
		Txn:       m.Txn,
		Carts:     m,
		Addresses: m,
		Users:     m,
		Ledger:    m,
		Coupons:   m,
		Orders:    m,
		Gateway:   m.gw,
		Notifier:  m,
	}
}

func (m *memEnv) Txn(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	err := fn(ctx)
	if err == nil && m.retryTxns > 0 {
		// Transient abort: writes are discarded and the callback re-runs.
		m.retryTxns--
		m.restore(snap)
		err = fn(ctx)
	}
	if err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memEnv) snapshot() envSnap {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := envSnap{
		stock:      make(map[string]models.ProductVariant, len(m.stock)),
		orders:     make(map[string]models.Order, len(m.orders)),
		payments:   make([]models.Payment, len(m.payments)),
		couponUses: m.couponUses,
	}
	for k, v := range m.stock {
		s.stock[k] = *v
	}
	for k, v := range m.orders {
		s.orders[k] = *v
	}
	for i, p := range m.payments {
		s.payments[i] = *p
	}
	return s
}

func (m *memEnv) restore(s envSnap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock = make(map[string]*models.ProductVariant, len(s.stock))
	for k := range s.stock {
		v := s.stock[k]
		m.stock[k] = &v
	}
	m.orders = make(map[string]*models.Order, len(s.orders))
	for k := range s.orders {
		o := s.orders[k]
		m.orders[k] = &o
	}
	m.payments = m.payments[:0]
	for i := range s.payments {
		p := s.payments[i]
		m.payments = append(m.payments, &p)
	}
	m.couponUses = s.couponUses
}

func (m *memEnv) Items(ctx context.Context, userID string) ([]models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CartItem(nil), m.carts[userID]...), nil
}

func (m *memEnv) Clear(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, userID)
	delete(m.carts, userID)
	return nil
}

func (m *memEnv) Owned(ctx context.Context, userID, addressID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addrs[addressID] == userID, nil
}

func (m *memEnv) Get(ctx context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *m.users[userID]
	return &u, nil
}

func (m *memEnv) SetCustomerID(ctx context.Context, userID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID].GatewayCustomerID = customerID
	return nil
}

func (m *memEnv) Decrement(ctx context.Context, variantID string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.stock[variantID]
	if !ok || v.Stock < qty {
		return false, nil
	}
	v.Stock -= qty
	return true, nil
}

func (m *memEnv) Restore(ctx context.Context, variantID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.stock[variantID]; ok {
		v.Stock += qty
	}
	return nil
}

func (m *memEnv) Variant(ctx context.Context, variantID string) (*models.ProductVariant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.stock[variantID]
	if !ok {
		return nil, errors.New("variant not found")
	}
	cp := *v
	return &cp, nil
}

func (m *memEnv) Validate(ctx context.Context, code string, subtotal float64) (float64, error) {
	if m.couponErr != nil {
		return 0, m.couponErr
	}
	return m.discount, nil
}

func (m *memEnv) Consume(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumeErr != nil {
		return m.consumeErr
	}
	m.couponUses++
	return nil
}

func (m *memEnv) Unconsume(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.couponUses > 0 {
		m.couponUses--
	}
	return nil
}

func (m *memEnv) Insert(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dupInserts > 0 {
		m.dupInserts--
		return ErrDuplicateNumber
	}
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memEnv) Delete(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, orderID)
	return nil
}

func (m *memEnv) InsertPayment(ctx context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *payment
	m.payments = append(m.payments, &cp)
	return nil
}

func (m *memEnv) SetPaymentStatus(ctx context.Context, orderID string, ps models.OrderPaymentStatus, os models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return errors.New("order not found")
	}
	o.PaymentStatus = ps
	o.Status = os
	return nil
}

func (m *memEnv) OrderCreated(ctx context.Context, order *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = append(m.notified, order.ID)
}

func (m *memEnv) stockOf(variantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[variantID].Stock
}

type fakeGateway struct {
	mu       sync.Mutex
	payErr   error
	result   gateway.PaymentResult
	payCalls int
	lastReq  gateway.PaymentRequest
}

func (g *fakeGateway) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.GatewayCustomerID != "" {
		return user.GatewayCustomerID, nil
	}
	return "cus_new", nil
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payCalls++
	g.lastReq = req
	if g.payErr != nil {
		return nil, g.payErr
	}
	res := g.result
	return &res, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.payCalls
}

func pixRequest() Request {
	return Request{AddressID: "a1", Method: models.MethodPix, ShippingCost: 10}
}

func TestProcessCheckout_EmptyCart(t *testing.T) {
	env := newEnv()
	env.carts["u1"] = nil

	_, _, err := env.service().ProcessCheckout(context.Background(), "u1", pixRequest())
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got: %v", err)
	}
	if env.gw.calls() != 0 {
		t.Errorf("expected no gateway call, got %d", env.gw.calls())
	}
	if env.stockOf("v1") != 10 {
		t.Errorf("stock must be untouched, got %d", env.stockOf("v1"))
	}
}

func TestProcessCheckout_AddressNotOwned(t *testing.T) {
	env := newEnv()
	req := pixRequest()
	req.AddressID = "a2"

	_, _, err := env.service().ProcessCheckout(context.Background(), "u1", req)
	if !errors.Is(err, ErrAddressNotOwned) {
		t.Fatalf("expected ErrAddressNotOwned, got: %v", err)
	}
}

func TestProcessCheckout_CardRequiresDetails(t *testing.T) {
	env := newEnv()
	req := pixRequest()
	req.Method = models.MethodCreditCard

	_, _, err := env.service().ProcessCheckout(context.Background(), "u1", req)
	if !errors.Is(err, ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got: %v", err)
	}
}

func TestProcessCheckout_InsufficientStockRollsBack(t *testing.T) {
	env := newEnv()
	env.stock["v2"] = &models.ProductVariant{VariantID: "v2", Name: "Red Cap", Price: 20, Stock: 3}
	env.carts["u1"] = []models.CartItem{
		{UserID: "u1", VariantID: "v1", Quantity: 2},
		{UserID: "u1", VariantID: "v2", Quantity: 5},
	}

	_, _, err := env.service().ProcessCheckout(context.Background(), "u1", pixRequest())

	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if stockErr.VariantID != "v2" {
		t.Errorf("expected failing variant v2, got %s", stockErr.VariantID)
	}
	if env.stockOf("v1") != 10 || env.stockOf("v2") != 3 {
		t.Errorf("rollback must restore stock, got v1=%d v2=%d", env.stockOf("v1"), env.stockOf("v2"))
	}
	if len(env.orders) != 0 || len(env.payments) != 0 {
		t.Errorf("no order or payment may survive, got %d orders %d payments", len(env.orders), len(env.payments))
	}
}

func TestProcessCheckout_GatewayFailureCompensates(t *testing.T) {
	env := newEnv()
	env.gw.payErr = gateway.ErrUnavailable
	env.discount = 15

	req := pixRequest()
	req.CouponCode = "SAVE15"

	_, _, err := env.service().ProcessCheckout(context.Background(), "u1", req)
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got: %v", err)
	}
	if env.stockOf("v1") != 10 {
		t.Errorf("compensation must restore stock, got %d", env.stockOf("v1"))
	}
	if len(env.orders) != 0 || len(env.payments) != 0 {
		t.Error("no order or payment may survive a gateway failure")
	}
	if env.couponUses != 0 {
		t.Errorf("failed checkout must not burn a coupon use, got %d", env.couponUses)
	}
}

func TestProcessCheckout_UnknownOutcomeCommits(t *testing.T) {
	env := newEnv()
	env.gw.payErr = gateway.ErrUnknownOutcome
	env.discount = 15

	req := pixRequest()
	req.CouponCode = "SAVE15"

	order, payment, err := env.service().ProcessCheckout(context.Background(), "u1", req)
	if !errors.Is(err, ErrGatewayUnknown) {
		t.Fatalf("expected ErrGatewayUnknown, got: %v", err)
	}
	if order == nil || payment == nil {
		t.Fatal("unknown outcome must still return the committed order and payment")
	}
	if payment.Status != models.PaymentPending || payment.ExternalID != "" {
		t.Errorf("expected pending payment without external id, got %s %q", payment.Status, payment.ExternalID)
	}
	if len(env.orders) != 1 || len(env.payments) != 1 {
		t.Fatalf("order and payment must be committed, got %d orders %d payments", len(env.orders), len(env.payments))
	}
	if env.stockOf("v1") != 8 {
		t.Errorf("stock must stay reserved, got %d", env.stockOf("v1"))
	}
	if env.couponUses != 1 {
		t.Errorf("coupon must stay consumed on commit, got %d uses", env.couponUses)
	}
}

func TestProcessCheckout_PixSuccess(t *testing.T) {
	env := newEnv()

	order, payment, err := env.service().ProcessCheckout(context.Background(), "u1", pixRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != models.OrderPending || order.PaymentStatus != models.OrderPaymentPending {
		t.Errorf("pix order must stay pending, got %s/%s", order.Status, order.PaymentStatus)
	}
	if order.Total != 110 {
		t.Errorf("expected total 110 (2x50 + 10 shipping), got %v", order.Total)
	}
	if payment.ExternalID != "pay_1" || payment.PixCopyPaste == "" {
		t.Errorf("expected provider artifacts on payment, got %+v", payment)
	}
	if env.stockOf("v1") != 8 {
		t.Errorf("expected stock 8, got %d", env.stockOf("v1"))
	}
	if len(env.cleared) != 1 || env.cleared[0] != "u1" {
		t.Errorf("cart must be cleared after commit, got %v", env.cleared)
	}
}

func TestProcessCheckout_CardConfirmedCascades(t *testing.T) {
	env := newEnv()
	env.gw.result = gateway.PaymentResult{ExternalID: "pay_2", Status: models.PaymentConfirmed}

	req := pixRequest()
	req.Method = models.MethodCreditCard
	req.Card = &gateway.CardDetails{HolderName: "ANA", Number: "4111111111111111"}

	order, payment, err := env.service().ProcessCheckout(context.Background(), "u1", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != models.PaymentConfirmed {
		t.Errorf("expected confirmed payment, got %s", payment.Status)
	}
	if order.Status != models.OrderProcessing || order.PaymentStatus != models.OrderPaymentPaid {
		t.Errorf("confirmed charge must cascade to the order, got %s/%s", order.Status, order.PaymentStatus)
	}
	stored := env.orders[order.ID]
	if stored.Status != models.OrderProcessing || stored.PaymentStatus != models.OrderPaymentPaid {
		t.Errorf("cascade must be persisted, got %s/%s", stored.Status, stored.PaymentStatus)
	}
}

func TestProcessCheckout_InvalidCouponRollsBack(t *testing.T) {
	env := newEnv()
	env.couponErr = errors.New("coupon expired")

	req := pixRequest()
	req.CouponCode = "OLD"

	_, _, err := env.service().ProcessCheckout(context.Background(), "u1", req)

	var couponErr *InvalidCouponError
	if !errors.As(err, &couponErr) {
		t.Fatalf("expected InvalidCouponError, got: %v", err)
	}
	if env.stockOf("v1") != 10 {
		t.Errorf("rollback must restore stock, got %d", env.stockOf("v1"))
	}
	if len(env.orders) != 0 {
		t.Error("no order may survive a coupon rejection")
	}
}

func TestProcessCheckout_CouponExhaustedBeforeCharge(t *testing.T) {
	env := newEnv()
	env.discount = 15
	// A concurrent checkout takes the last use between validation and the
	// guarded consume.
	env.consumeErr = errors.New("coupon usage limit reached")

	req := pixRequest()
	req.CouponCode = "LAST1"

	_, _, err := env.service().ProcessCheckout(context.Background(), "u1", req)

	var couponErr *InvalidCouponError
	if !errors.As(err, &couponErr) {
		t.Fatalf("expected InvalidCouponError, got: %v", err)
	}
	if env.gw.calls() != 0 {
		t.Errorf("coupon must be consumed before any money moves, got %d gateway calls", env.gw.calls())
	}
	if env.stockOf("v1") != 10 || len(env.orders) != 0 {
		t.Errorf("reservation must roll back, got stock=%d orders=%d", env.stockOf("v1"), len(env.orders))
	}
}

func TestProcessCheckout_DiscountReducesChargedAmount(t *testing.T) {
	env := newEnv()
	env.discount = 20

	req := pixRequest()
	req.CouponCode = "SAVE20"

	order, _, err := env.service().ProcessCheckout(context.Background(), "u1", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Total != 90 {
		t.Errorf("expected total 90 (100 + 10 - 20), got %v", order.Total)
	}
	if env.gw.lastReq.Amount != 90 {
		t.Errorf("gateway must be charged the discounted total, got %v", env.gw.lastReq.Amount)
	}
	if env.couponUses != 1 {
		t.Errorf("expected one coupon use, got %d", env.couponUses)
	}
}

func TestProcessCheckout_DuplicateOrderNumberRetried(t *testing.T) {
	env := newEnv()
	env.dupInserts = 2

	order, _, err := env.service().ProcessCheckout(context.Background(), "u1", pixRequest())
	if err != nil {
		t.Fatalf("expected retry to succeed, got: %v", err)
	}
	if order.OrderNumber == "" {
		t.Error("expected an order number after retries")
	}
	if len(env.orders) != 1 {
		t.Errorf("expected exactly one persisted order, got %d", len(env.orders))
	}
}

func TestProcessCheckout_TransientTxnRetryChargesOnce(t *testing.T) {
	env := newEnv()
	// The driver aborts the reservation transaction once (write conflict
	// with a concurrent checkout) and re-runs its callback.
	env.retryTxns = 1

	order, payment, err := env.service().ProcessCheckout(context.Background(), "u1", pixRequest())
	if err != nil {
		t.Fatalf("expected success after the transient retry, got: %v", err)
	}
	if env.gw.calls() != 1 {
		t.Fatalf("payment must be created exactly once per checkout, got %d calls", env.gw.calls())
	}
	if len(env.orders) != 1 || len(env.payments) != 1 {
		t.Errorf("expected one order and one payment, got %d/%d", len(env.orders), len(env.payments))
	}
	if payment.OrderID != order.ID {
		t.Errorf("payment must belong to the committed order")
	}
	if env.stockOf("v1") != 8 {
		t.Errorf("expected stock decremented once, got %d", env.stockOf("v1"))
	}
}

func TestProcessCheckout_ConcurrentStockContention(t *testing.T) {
	env := newEnv()
	env.stock["v1"].Stock = 3
	env.carts["u2"] = []models.CartItem{{UserID: "u2", VariantID: "v1", Quantity: 2}}
	env.addrs["a2"] = "u2"
	env.users["u2"] = &models.User{ID: "u2", Name: "Bia", GatewayCustomerID: "cus_2"}

	svc := env.service()
	results := make(chan error, 2)
	run := func(userID, addressID string) {
		req := pixRequest()
		req.AddressID = addressID
		_, _, err := svc.ProcessCheckout(context.Background(), userID, req)
		results <- err
	}

	go run("u1", "a1")
	go run("u2", "a2")

	var wins, stockFails int
	for i := 0; i < 2; i++ {
		err := <-results
		var stockErr *InsufficientStockError
		switch {
		case err == nil:
			wins++
		case errors.As(err, &stockErr):
			stockFails++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if wins != 1 || stockFails != 1 {
		t.Fatalf("expected exactly one winner and one stock failure, got %d wins %d failures", wins, stockFails)
	}
	if env.stockOf("v1") != 1 {
		t.Errorf("expected 1 unit left, got %d", env.stockOf("v1"))
	}
	if len(env.orders) != 1 {
		t.Errorf("expected exactly one order, got %d", len(env.orders))
	}
}
