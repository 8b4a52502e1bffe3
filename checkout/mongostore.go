package checkout

import (
	"context"
	"time"

	"vitrine/coupon"
	"vitrine/db"
	"vitrine/gateway"
	"vitrine/inventory"
	"vitrine/models"
	"vitrine/mq"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Mongo-backed implementations of the service's store interfaces. All queries
// use the caller's context so they join an active transaction.

type mongoCarts struct{}

func (mongoCarts) Items(ctx context.Context, userID string) ([]models.CartItem, error) {
	cursor, err := db.CartCollection.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []models.CartItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (mongoCarts) Clear(ctx context.Context, userID string) error {
	_, err := db.CartCollection.DeleteMany(ctx, bson.M{"userId": userID})
	return err
}

type mongoAddresses struct{}

func (mongoAddresses) Owned(ctx context.Context, userID, addressID string) (bool, error) {
	err := db.AddressCollection.FindOne(ctx, bson.M{"_id": addressID, "userId": userID}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type mongoUsers struct{}

func (mongoUsers) Get(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := db.UserCollection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (mongoUsers) SetCustomerID(ctx context.Context, userID, customerID string) error {
	_, err := db.UserCollection.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"gatewayCustomerId": customerID}})
	return err
}

type mongoOrders struct{}

func (mongoOrders) Insert(ctx context.Context, order *models.Order) error {
	_, err := db.OrderCollection.InsertOne(ctx, order)
	if db.IsDup(err) {
		return ErrDuplicateNumber
	}
	return err
}

func (mongoOrders) Delete(ctx context.Context, orderID string) error {
	_, err := db.OrderCollection.DeleteOne(ctx, bson.M{"_id": orderID})
	return err
}

func (mongoOrders) InsertPayment(ctx context.Context, payment *models.Payment) error {
	_, err := db.PaymentCollection.InsertOne(ctx, payment)
	return err
}

func (mongoOrders) SetPaymentStatus(ctx context.Context, orderID string, ps models.OrderPaymentStatus, os models.OrderStatus) error {
	_, err := db.OrderCollection.UpdateOne(ctx,
		bson.M{"_id": orderID},
		bson.M{"$set": bson.M{"paymentStatus": ps, "status": os, "updatedAt": time.Now()}})
	return err
}

// NewService wires the production service against MongoDB, Redis pubsub and
// the configured payment provider.
func NewService() *Service {
	return &Service{
		Txn:       db.WithTxn,
		Carts:     mongoCarts{},
		Addresses: mongoAddresses{},
		Users:     mongoUsers{},
		Ledger:    inventory.Ledger{},
		Coupons:   coupon.Store{},
		Orders:    mongoOrders{},
		Gateway:   gateway.NewClient(),
		Notifier:  &mq.Notifier{},
	}
}
