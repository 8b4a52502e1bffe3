package orders

import (
	"log"
	"net/http"

	"vitrine/mq"
	"vitrine/rdx"
	"vitrine/utils"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins — adjust for production if needed
		return true
	},
}

// OrderStreamHandler pushes live status updates for one order over a
// websocket. Updates arrive on the order's redis pubsub channel, published by
// checkout, the webhook reconciler and the stale-order sweep.
func OrderStreamHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	orderID := ps.ByName("orderid")
	if _, err := ownedOrder(r.Context(), orderID, userID); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	streamOrder(w, r, orderID)
}

func streamOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client on failure.
		log.Printf("OrderStreamHandler: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := rdx.Subscribe(r.Context(), mq.Channel(orderID))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Channel() {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		}
	}()

	// Keep the connection open until the client disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	if err := sub.Close(); err != nil {
		log.Printf("OrderStreamHandler: close subscription: %v", err)
	}
	<-done
}
