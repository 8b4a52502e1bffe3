package db

import (
	"context"
	"log"
	"time"

	"vitrine/globals"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	UserCollection         *mongo.Collection
	AddressCollection      *mongo.Collection
	CartCollection         *mongo.Collection
	ProductCollection      *mongo.Collection
	OrderCollection        *mongo.Collection
	PaymentCollection      *mongo.Collection
	WebhookEventCollection *mongo.Collection
	CouponCollection       *mongo.Collection
	Client                 *mongo.Client
)

// Initialize MongoDB connection
func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using system environment")
	}

	uri := globals.Getenv("MONGO_URI", "mongodb://localhost:27017")
	clientOptions := options.Client().ApplyURI(uri)

	var err error
	Client, err = mongo.Connect(context.TODO(), clientOptions)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	database := Client.Database(globals.Getenv("MONGO_DB", "shopdb"))
	UserCollection = database.Collection("users")
	AddressCollection = database.Collection("addresses")
	CartCollection = database.Collection("carts")
	ProductCollection = database.Collection("products")
	OrderCollection = database.Collection("orders")
	PaymentCollection = database.Collection("payments")
	WebhookEventCollection = database.Collection("webhook_events")
	CouponCollection = database.Collection("coupons")
}

// EnsureIndexes creates the uniqueness constraints the checkout core relies on:
// order numbers, provider payment ids and provider event ids must each be
// unique at the store level.
func EnsureIndexes(ctx context.Context) error {
	_, err := OrderCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"orderNumber": 1},
		Options: options.Index().SetUnique(true).SetName("unique_order_number"),
	})
	if err != nil {
		return err
	}

	_, err = PaymentCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.M{"externalId": 1},
		// Sparse: unknown-outcome payment attempts have no external id yet.
		Options: options.Index().SetUnique(true).SetSparse(true).SetName("unique_external_id"),
	})
	if err != nil {
		return err
	}

	_, err = WebhookEventCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"eventId": 1},
		Options: options.Index().SetUnique(true).SetName("unique_event_id"),
	})
	if err != nil {
		return err
	}

	_, err = CouponCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"code": 1},
		Options: options.Index().SetUnique(true).SetName("unique_coupon_code"),
	})
	return err
}

// WithTxn runs fn inside a session transaction. Collection operations that
// receive the callback's context join the transaction automatically.
func WithTxn(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := Client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, options.Transaction())
	return err
}

// IsDup reports whether err is a unique-index violation.
func IsDup(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// Ping verifies the connection, used by the health endpoint.
func Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return Client.Ping(ctx, nil)
}
