package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"vitrine/db"
	"vitrine/models"
	"vitrine/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const signatureHeader = "X-Webhook-Signature"

// verifySignature checks the provider's HMAC-SHA256 over the raw body.
func verifySignature(body []byte, signature string, secret []byte) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// PaymentWebhookHandler receives provider payment events. Duplicate, stale
// and unmatchable events are acknowledged with 200 so the provider stops
// redelivering; only transient local failures return 5xx.
func PaymentWebhookHandler(rec *Reconciler, secret []byte) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Cannot read body")
			return
		}

		if !verifySignature(body, r.Header.Get(signatureHeader), secret) {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}

		var ev Event
		if err := json.Unmarshal(body, &ev); err != nil || ev.EventID == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "Malformed event")
			return
		}

		err = rec.HandleEvent(r.Context(), ev)
		switch {
		case err == nil:
			utils.RespondWithJSON(w, http.StatusOK, utils.M{"received": true})
		case errors.Is(err, ErrDuplicateEvent),
			errors.Is(err, ErrStaleEvent),
			errors.Is(err, ErrUnknownPayment),
			errors.Is(err, ErrUnknownEventType):
			log.Printf("[Webhook] dropped event %s: %v", ev.EventID, err)
			utils.RespondWithJSON(w, http.StatusOK, utils.M{"received": true, "ignored": true})
		default:
			log.Printf("[Webhook] event %s failed: %v", ev.EventID, err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Event processing failed")
		}
	}
}

// ListEventsHandler exposes the dedup ledger for operators, newest first.
func ListEventsHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	if err != nil || limit < 1 || limit > 200 {
		limit = 50
	}
	skip, err := strconv.ParseInt(r.URL.Query().Get("skip"), 10, 64)
	if err != nil || skip < 0 {
		skip = 0
	}

	events, err := listEvents(r.Context(), limit, skip)
	if err != nil {
		log.Printf("[Webhook] list events failed: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"events": events})
}

func listEvents(ctx context.Context, limit, skip int64) ([]models.WebhookEvent, error) {
	opts := options.Find().
		SetSort(bson.M{"receivedAt": -1}).
		SetLimit(limit).
		SetSkip(skip)
	cursor, err := db.WebhookEventCollection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	events := []models.WebhookEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
