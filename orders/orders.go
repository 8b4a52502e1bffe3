package orders

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"vitrine/db"
	"vitrine/models"
	"vitrine/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ownedOrder loads the order and checks it belongs to the requester.
func ownedOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	var order models.Order
	err := db.OrderCollection.FindOne(ctx, bson.M{"_id": orderID}).Decode(&order)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, errors.New("not owner")
	}
	return &order, nil
}

func GetOrderHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	order, err := ownedOrder(r.Context(), ps.ByName("orderid"), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	payments, err := orderPayments(r.Context(), order.ID)
	if err != nil {
		log.Printf("GetOrderHandler: load payments for %s: %v", order.ID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load order")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"order": order, "payments": payments})
}

func ListOrdersHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	skip, err := strconv.ParseInt(r.URL.Query().Get("skip"), 10, 64)
	if err != nil || skip < 0 {
		skip = 0
	}

	opts := options.Find().
		SetSort(bson.M{"createdAt": -1}).
		SetLimit(limit).
		SetSkip(skip)
	cursor, err := db.OrderCollection.Find(r.Context(), bson.M{"userId": userID}, opts)
	if err != nil {
		log.Printf("ListOrdersHandler: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list orders")
		return
	}
	defer cursor.Close(r.Context())

	orders := []models.Order{}
	if err := cursor.All(r.Context(), &orders); err != nil {
		log.Printf("ListOrdersHandler: decode: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list orders")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"orders": orders})
}

func orderPayments(ctx context.Context, orderID string) ([]models.Payment, error) {
	cursor, err := db.PaymentCollection.Find(ctx, bson.M{"orderId": orderID},
		options.Find().SetSort(bson.M{"createdAt": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	payments := []models.Payment{}
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// paymentForUser loads a payment and verifies the requester owns its order.
func paymentForUser(ctx context.Context, paymentID, userID string) (*models.Payment, *models.Order, error) {
	var payment models.Payment
	err := db.PaymentCollection.FindOne(ctx, bson.M{"_id": paymentID}).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil, errors.New("payment not found")
	}
	if err != nil {
		return nil, nil, err
	}

	order, err := ownedOrder(ctx, payment.OrderID, userID)
	if err != nil {
		return nil, nil, err
	}
	return &payment, order, nil
}
