package reaper

import (
	"context"
	"time"

	"vitrine/db"
	"vitrine/inventory"
	"vitrine/models"
	"vitrine/mq"
	"vitrine/rdx"

	"go.mongodb.org/mongo-driver/bson"
)

type mongoOrders struct{}

func (mongoOrders) StalePending(ctx context.Context, before time.Time) ([]models.Order, error) {
	cursor, err := db.OrderCollection.Find(ctx, bson.M{
		"status":    models.OrderPending,
		"createdAt": bson.M{"$lt": before},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CancelPending is the idempotency gate: the status filter means a second
// sweep, or a sweep racing a webhook, matches nothing.
func (mongoOrders) CancelPending(ctx context.Context, orderID string) (bool, error) {
	res, err := db.OrderCollection.UpdateOne(ctx,
		bson.M{"_id": orderID, "status": models.OrderPending},
		bson.M{"$set": bson.M{
			"status":        models.OrderCancelled,
			"paymentStatus": models.OrderPaymentFailed,
			"updatedAt":     time.Now(),
		}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

type redisLocker struct{}

func (redisLocker) TryLock(key, value string, ttl time.Duration) (bool, error) {
	return rdx.RdxSetNX(key, value, ttl)
}

// NewSweeper wires the production sweeper against MongoDB and Redis.
func NewSweeper() *Sweeper {
	return &Sweeper{
		Txn:      db.WithTxn,
		Orders:   mongoOrders{},
		Stock:    inventory.Ledger{},
		Notifier: mq.Notifier{},
		Locker:   redisLocker{},
		MaxAge:   MaxAgeFromEnv(),
	}
}
