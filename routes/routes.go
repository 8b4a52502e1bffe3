package routes

import (
	"vitrine/cart"
	"vitrine/checkout"
	"vitrine/coupon"
	"vitrine/globals"
	"vitrine/middleware"
	"vitrine/orders"
	"vitrine/ratelim"
	"vitrine/webhook"

	"github.com/julienschmidt/httprouter"
)

// AddCartRoutes wires the cart CRUD endpoints.
func AddCartRoutes(router *httprouter.Router, rateLimiter *ratelim.RateLimiter) {
	authed := middleware.Chain(rateLimiter.Limit, middleware.Authenticate)

	router.GET("/api/v1/cart", authed(cart.GetCart))
	router.POST("/api/v1/cart", authed(cart.AddToCart))
	router.PUT("/api/v1/cart/:variantid", authed(cart.UpdateCartItem))
	router.DELETE("/api/v1/cart/:variantid", authed(cart.RemoveFromCart))
	router.DELETE("/api/v1/cart", authed(cart.ClearCart))
}

// AddCheckoutRoutes wires the checkout saga endpoint.
func AddCheckoutRoutes(router *httprouter.Router, rateLimiter *ratelim.RateLimiter) {
	svc := checkout.NewService()

	router.POST("/api/v1/checkout",
		middleware.Chain(
			rateLimiter.Limit,
			middleware.Authenticate,
		)(checkout.CheckoutHandler(svc)),
	)
}

// AddOrderRoutes wires order reads, payment artifacts and the live stream.
func AddOrderRoutes(router *httprouter.Router, rateLimiter *ratelim.RateLimiter) {
	authed := middleware.Chain(rateLimiter.Limit, middleware.Authenticate)

	router.GET("/api/v1/orders", authed(orders.ListOrdersHandler))
	router.GET("/api/v1/orders/:orderid", authed(orders.GetOrderHandler))
	router.GET("/api/v1/orders/:orderid/receipt.pdf", authed(orders.ReceiptHandler))
	router.GET("/api/v1/payments/:paymentid/pix.png", authed(orders.PixPngHandler))

	// The websocket stream skips the rate limiter: one long-lived connection
	// per order, not a request burst.
	router.GET("/api/v1/orders/:orderid/live",
		middleware.Chain(middleware.Authenticate)(orders.OrderStreamHandler))
}

// AddCouponRoutes wires the storefront coupon pre-check.
func AddCouponRoutes(router *httprouter.Router, rateLimiter *ratelim.RateLimiter) {
	router.POST("/api/v1/coupons/validate",
		middleware.Chain(
			rateLimiter.Limit,
			middleware.OptionalAuth,
		)(coupon.ValidateCouponHandler),
	)
}

// AddWebhookRoutes wires the provider callback and the operator event view.
// The callback is signature-authenticated, not JWT-authenticated, and is not
// rate limited: dropping provider deliveries only delays reconciliation.
func AddWebhookRoutes(router *httprouter.Router, rateLimiter *ratelim.RateLimiter) {
	rec := webhook.NewReconciler()

	router.POST("/api/v1/webhooks/payments",
		webhook.PaymentWebhookHandler(rec, globals.WebhookSecret))

	router.GET("/api/v1/webhooks/events",
		middleware.Chain(
			rateLimiter.Limit,
			middleware.Authenticate,
			middleware.RequireRoles("admin"),
		)(webhook.ListEventsHandler),
	)
}
