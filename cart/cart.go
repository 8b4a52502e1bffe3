package cart

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"vitrine/db"
	"vitrine/models"
	"vitrine/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AddToCart increments quantity if the variant is already in the cart, or
// inserts a new CartItem.
func AddToCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var item models.CartItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		log.Println("AddToCart decode error:", err)
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	// Must be logged in
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	item.UserID = userID

	if item.VariantID == "" || item.Quantity <= 0 {
		http.Error(w, "Missing or invalid fields", http.StatusBadRequest)
		return
	}

	// The variant must exist; stock is only checked for real at checkout.
	err := db.ProductCollection.FindOne(ctx, bson.M{"variantId": item.VariantID}).Err()
	if err == mongo.ErrNoDocuments {
		http.Error(w, "Unknown product variant", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Println("AddToCart variant lookup error:", err)
		http.Error(w, "Failed to add to cart", http.StatusInternalServerError)
		return
	}

	filter := bson.M{"userId": userID, "variantId": item.VariantID}
	update := bson.M{
		"$inc":         bson.M{"quantity": item.Quantity},
		"$setOnInsert": bson.M{"addedAt": time.Now()},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := db.CartCollection.UpdateOne(ctx, filter, update, opts); err != nil {
		log.Println("AddToCart UpdateOne error:", err)
		http.Error(w, "Failed to add to cart", http.StatusInternalServerError)
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

// GetCart returns all cart items for the user with current prices and the
// running subtotal.
func GetCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	cursor, err := db.CartCollection.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		log.Println("GetCart Find error:", err)
		http.Error(w, "Could not retrieve cart", http.StatusInternalServerError)
		return
	}
	defer cursor.Close(ctx)

	var items []models.CartItem
	if err := cursor.All(ctx, &items); err != nil {
		log.Println("GetCart cursor.All error:", err)
		http.Error(w, "Error reading cart data", http.StatusInternalServerError)
		return
	}
	if len(items) == 0 {
		items = []models.CartItem{}
	}

	// Enrich with current catalog prices for display. Checkout snapshots its
	// own prices; these are informational.
	type lineView struct {
		models.CartItem
		Name      string  `json:"name,omitempty"`
		UnitPrice float64 `json:"unitPrice"`
		LineTotal float64 `json:"lineTotal"`
	}
	lines := make([]lineView, 0, len(items))
	subtotal := 0.0
	for _, it := range items {
		var v models.ProductVariant
		if err := db.ProductCollection.FindOne(ctx, bson.M{"variantId": it.VariantID}).Decode(&v); err != nil {
			// Variant removed from catalog; show the raw line.
			lines = append(lines, lineView{CartItem: it})
			continue
		}
		line := utils.Round2(v.Price * float64(it.Quantity))
		subtotal += line
		lines = append(lines, lineView{CartItem: it, Name: v.Name, UnitPrice: v.Price, LineTotal: line})
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"items":    lines,
		"subtotal": utils.Round2(subtotal),
	})
}

// UpdateCartItem sets the quantity for one variant; zero or less removes it.
func UpdateCartItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Println("UpdateCartItem decode error:", err)
		http.Error(w, "Invalid JSON request", http.StatusBadRequest)
		return
	}

	variantID := ps.ByName("variantid")
	filter := bson.M{"userId": userID, "variantId": variantID}

	if payload.Quantity <= 0 {
		if _, err := db.CartCollection.DeleteOne(ctx, filter); err != nil {
			log.Println("UpdateCartItem DeleteOne error:", err)
			http.Error(w, "Failed to update cart", http.StatusInternalServerError)
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "removed"})
		return
	}

	res, err := db.CartCollection.UpdateOne(ctx, filter,
		bson.M{"$set": bson.M{"quantity": payload.Quantity}})
	if err != nil {
		log.Println("UpdateCartItem UpdateOne error:", err)
		http.Error(w, "Failed to update cart", http.StatusInternalServerError)
		return
	}
	if res.MatchedCount == 0 {
		http.Error(w, "Item not in cart", http.StatusNotFound)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// RemoveFromCart deletes one variant from the user's cart.
func RemoveFromCart(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if _, err := db.CartCollection.DeleteOne(ctx, bson.M{
		"userId":    userID,
		"variantId": ps.ByName("variantid"),
	}); err != nil {
		log.Println("RemoveFromCart DeleteOne error:", err)
		http.Error(w, "Failed to remove item", http.StatusInternalServerError)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ClearCart removes every item for the user.
func ClearCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if _, err := db.CartCollection.DeleteMany(ctx, bson.M{"userId": userID}); err != nil {
		log.Println("ClearCart DeleteMany error:", err)
		http.Error(w, "Failed to clear cart", http.StatusInternalServerError)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
