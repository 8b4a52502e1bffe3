package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"vitrine/utils"

	"github.com/julienschmidt/httprouter"
)

// CheckoutHandler drives the checkout saga for the authenticated user.
// 202 means the payment outcome is unknown and will settle via webhook.
func CheckoutHandler(svc *Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		userID := utils.GetUserIDFromRequest(r)
		if userID == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		order, payment, err := svc.ProcessCheckout(r.Context(), userID, req)
		if err != nil && !errors.Is(err, ErrGatewayUnknown) {
			respondCheckoutError(w, err)
			return
		}

		status := http.StatusCreated
		body := utils.M{"order": order, "payment": payment}
		if errors.Is(err, ErrGatewayUnknown) {
			status = http.StatusAccepted
			body["message"] = "Payment submitted; confirmation pending"
		}
		utils.RespondWithJSON(w, status, body)
	}
}

func respondCheckoutError(w http.ResponseWriter, err error) {
	var stockErr *InsufficientStockError
	var couponErr *InvalidCouponError

	switch {
	case errors.Is(err, ErrEmptyCart):
		utils.RespondWithError(w, http.StatusBadRequest, "Cart is empty")
	case errors.Is(err, ErrInvalidMethod):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAddressNotOwned):
		utils.RespondWithError(w, http.StatusForbidden, "Address does not belong to you")
	case errors.As(err, &stockErr):
		utils.RespondWithJSON(w, http.StatusConflict, utils.M{
			"error":     "Insufficient stock",
			"variantId": stockErr.VariantID,
		})
	case errors.As(err, &couponErr):
		utils.RespondWithError(w, http.StatusUnprocessableEntity, couponErr.Error())
	case errors.Is(err, ErrGateway):
		utils.RespondWithError(w, http.StatusBadGateway, "Payment provider unavailable, please try again")
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "Checkout failed")
	}
}
