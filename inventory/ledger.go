package inventory

import (
	"context"
	"fmt"
	"time"

	"vitrine/db"
	"vitrine/models"

	"go.mongodb.org/mongo-driver/bson"
)

// Ledger performs atomic stock movements on product variants. Both operations
// are single conditional updates, so they join whatever transaction the
// caller's context carries and stay linearizable per variant under
// concurrent checkouts.
type Ledger struct{}

// Decrement atomically checks and decrements a variant's stock. Returns false
// when the variant is missing or has fewer than qty units; stock never goes
// negative because the check and the decrement are one update.
func (Ledger) Decrement(ctx context.Context, variantID string, qty int) (bool, error) {
	if qty < 1 {
		return false, fmt.Errorf("invalid quantity %d for variant %s", qty, variantID)
	}
	res, err := db.ProductCollection.UpdateOne(ctx,
		bson.M{"variantId": variantID, "stock": bson.M{"$gte": qty}},
		bson.M{
			"$inc": bson.M{"stock": -qty},
			"$set": bson.M{"updatedAt": time.Now()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock for %s: %w", variantID, err)
	}
	return res.MatchedCount == 1, nil
}

// Restore returns previously held units to a variant, the compensating
// action for a cancelled or failed order.
func (Ledger) Restore(ctx context.Context, variantID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("invalid quantity %d for variant %s", qty, variantID)
	}
	_, err := db.ProductCollection.UpdateOne(ctx,
		bson.M{"variantId": variantID},
		bson.M{
			"$inc": bson.M{"stock": qty},
			"$set": bson.M{"updatedAt": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("restore stock for %s: %w", variantID, err)
	}
	return nil
}

// Variant loads a variant for price snapshotting at checkout time.
func (Ledger) Variant(ctx context.Context, variantID string) (*models.ProductVariant, error) {
	var v models.ProductVariant
	if err := db.ProductCollection.FindOne(ctx, bson.M{"variantId": variantID}).Decode(&v); err != nil {
		return nil, fmt.Errorf("load variant %s: %w", variantID, err)
	}
	return &v, nil
}
