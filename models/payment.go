package models

import (
	"math"
	"time"
)

type PaymentMethod string

const (
	MethodCreditCard PaymentMethod = "CREDIT_CARD"
	MethodPix        PaymentMethod = "PIX"
	MethodBoleto     PaymentMethod = "BOLETO"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCreditCard, MethodPix, MethodBoleto:
		return true
	}
	return false
}

// Payment status as reconciled from provider webhooks. PENDING is the only
// non-terminal state.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentConfirmed PaymentStatus = "CONFIRMED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// Payment is one attempt to collect an order's total. An order may accumulate
// several (retried card charges). Only one method's artifact fields are
// populated per record.
type Payment struct {
	ID      string        `json:"id" bson:"_id"`
	OrderID string        `json:"orderId" bson:"orderId"`
	// Provider-side payment id. Empty for unknown-outcome attempts until the
	// webhook reconciler backfills it.
	ExternalID   string        `json:"externalId,omitempty" bson:"externalId,omitempty"`
	Method       PaymentMethod `json:"method" bson:"method"`
	Status       PaymentStatus `json:"status" bson:"status"`
	Amount       float64       `json:"amount" bson:"amount"`
	PixQrCode    string        `json:"pixQrCode,omitempty" bson:"pixQrCode,omitempty"`
	PixCopyPaste string        `json:"pixCopyPaste,omitempty" bson:"pixCopyPaste,omitempty"`
	BankSlipURL  string        `json:"bankSlipUrl,omitempty" bson:"bankSlipUrl,omitempty"`
	CreatedAt    time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// WebhookEvent is the append-only dedup ledger of inbound provider events.
// The unique index on EventID guarantees the same provider event never causes
// two effective transitions.
type WebhookEvent struct {
	EventID    string    `json:"eventId" bson:"eventId"`
	EventType  string    `json:"eventType" bson:"eventType"`
	PaymentID  string    `json:"paymentId,omitempty" bson:"paymentId,omitempty"`
	ReceivedAt time.Time `json:"receivedAt" bson:"receivedAt"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
