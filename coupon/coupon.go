package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vitrine/db"
	"vitrine/models"
	"vitrine/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Rejection reasons, surfaced to the caller inside InvalidCoupon errors.
var (
	ErrNotFound    = errors.New("coupon not found")
	ErrInactive    = errors.New("coupon inactive")
	ErrExpired     = errors.New("coupon expired")
	ErrUsedUp      = errors.New("coupon usage limit reached")
	ErrMinPurchase = errors.New("cart subtotal below coupon minimum")
)

// Discount applies the coupon rules to a subtotal and returns the discount
// amount. Rules run in order: active, not expired, usage below limit, minimum
// purchase met. A FIXED discount is capped at the subtotal so the total can
// never go negative; a 100% PERCENTAGE coupon yields exactly the subtotal.
func Discount(c models.Coupon, subtotal float64, now time.Time) (float64, error) {
	if !c.Active {
		return 0, ErrInactive
	}
	if now.After(c.ExpiresAt) {
		return 0, ErrExpired
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return 0, ErrUsedUp
	}
	if c.MinPurchase > 0 && subtotal < c.MinPurchase {
		return 0, ErrMinPurchase
	}

	var discount float64
	switch c.DiscountType {
	case models.DiscountFixed:
		discount = c.Value
		if discount > subtotal {
			discount = subtotal
		}
	case models.DiscountPercentage:
		discount = subtotal * c.Value / 100
	default:
		return 0, fmt.Errorf("unknown discount type %q", c.DiscountType)
	}
	return utils.Round2(discount), nil
}

// Store validates and consumes coupons against the coupons collection.
type Store struct{}

// Validate loads the coupon and applies the rules against the subtotal.
func (Store) Validate(ctx context.Context, code string, subtotal float64) (float64, error) {
	c, err := find(ctx, code)
	if err != nil {
		return 0, err
	}
	return Discount(*c, subtotal, time.Now())
}

// Consume increments the usage counter, guarded by the usage limit in the
// same update. Called inside the checkout transaction so a failed checkout
// never burns a use.
func (Store) Consume(ctx context.Context, code string) error {
	filter := bson.M{
		"code": normalize(code),
		"$or": []bson.M{
			{"usageLimit": bson.M{"$exists": false}},
			{"usageLimit": 0},
			{"$expr": bson.M{"$lt": []string{"$usageCount", "$usageLimit"}}},
		},
	}
	res, err := db.CouponCollection.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"usageCount": 1}})
	if err != nil {
		return fmt.Errorf("consume coupon %s: %w", code, err)
	}
	if res.MatchedCount == 0 {
		return ErrUsedUp
	}
	return nil
}

// Unconsume hands a use back after a compensated checkout. The counter never
// drops below zero.
func (Store) Unconsume(ctx context.Context, code string) error {
	filter := bson.M{
		"code":       normalize(code),
		"usageCount": bson.M{"$gt": 0},
	}
	_, err := db.CouponCollection.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"usageCount": -1}})
	if err != nil {
		return fmt.Errorf("return coupon use %s: %w", code, err)
	}
	return nil
}

func find(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := db.CouponCollection.FindOne(ctx, bson.M{"code": normalize(code)}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load coupon %s: %w", code, err)
	}
	return &c, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type validateRequest struct {
	Code     string  `json:"code"`
	Subtotal float64 `json:"subtotal"`
}

type validateResponse struct {
	Valid    bool    `json:"valid"`
	Discount float64 `json:"discount"`
	Message  string  `json:"message"`
}

// ValidateCouponHandler lets the storefront pre-check a coupon against the
// cart subtotal before checkout. Validation only; nothing is consumed here.
func ValidateCouponHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Code) == "" {
		utils.RespondWithJSON(w, http.StatusOK, validateResponse{Valid: false, Message: "No coupon provided"})
		return
	}

	discount, err := (Store{}).Validate(r.Context(), req.Code, req.Subtotal)
	if err != nil {
		utils.RespondWithJSON(w, http.StatusOK, validateResponse{Valid: false, Message: err.Error()})
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, validateResponse{
		Valid:    true,
		Discount: discount,
		Message:  "Coupon applied successfully",
	})
}
