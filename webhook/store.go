package webhook

import (
	"context"
	"errors"
	"time"

	"vitrine/db"
	"vitrine/inventory"
	"vitrine/models"
	"vitrine/mq"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type mongoEvents struct{}

func (mongoEvents) Record(ctx context.Context, ev models.WebhookEvent) error {
	_, err := db.WebhookEventCollection.InsertOne(ctx, ev)
	if db.IsDup(err) {
		return ErrDuplicateEvent
	}
	return err
}

type mongoPayments struct{}

func (mongoPayments) ByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	var p models.Payment
	err := db.PaymentCollection.FindOne(ctx, bson.M{"externalId": externalID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUnknownPayment
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ByOrderReference matches unknown-outcome attempts: the pending payment
// without an external id on the order carrying the provider's reference.
func (mongoPayments) ByOrderReference(ctx context.Context, orderNumber string) (*models.Payment, error) {
	var order models.Order
	err := db.OrderCollection.FindOne(ctx, bson.M{"orderNumber": orderNumber}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUnknownPayment
	}
	if err != nil {
		return nil, err
	}

	var p models.Payment
	err = db.PaymentCollection.FindOne(ctx, bson.M{
		"orderId":    order.ID,
		"status":     models.PaymentPending,
		"externalId": bson.M{"$exists": false},
	}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUnknownPayment
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (mongoPayments) SetStatus(ctx context.Context, paymentID string, status models.PaymentStatus, externalID string) error {
	set := bson.M{"status": status, "updatedAt": time.Now()}
	if externalID != "" {
		set["externalId"] = externalID
	}
	_, err := db.PaymentCollection.UpdateOne(ctx, bson.M{"_id": paymentID}, bson.M{"$set": set})
	return err
}

type mongoOrders struct{}

func (mongoOrders) Get(ctx context.Context, orderID string) (*models.Order, error) {
	var o models.Order
	if err := db.OrderCollection.FindOne(ctx, bson.M{"_id": orderID}).Decode(&o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (mongoOrders) SetPaymentStatus(ctx context.Context, orderID string, ps models.OrderPaymentStatus, os models.OrderStatus) error {
	_, err := db.OrderCollection.UpdateOne(ctx,
		bson.M{"_id": orderID},
		bson.M{"$set": bson.M{"paymentStatus": ps, "status": os, "updatedAt": time.Now()}})
	return err
}

// NewReconciler wires the production reconciler against MongoDB.
func NewReconciler() *Reconciler {
	return &Reconciler{
		Txn:      db.WithTxn,
		Events:   mongoEvents{},
		Payments: mongoPayments{},
		Orders:   mongoOrders{},
		Stock:    inventory.Ledger{},
		Notifier: mq.Notifier{},
	}
}
