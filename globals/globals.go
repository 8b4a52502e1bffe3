package globals

import (
	"context"
	"os"
)

var (
	JwtSecret = []byte(Getenv("JWT_SECRET", "your_secret_key"))

	// Shared secret the payment provider signs webhook bodies with.
	WebhookSecret = []byte(Getenv("WEBHOOK_SECRET", "provider-webhook-secret"))

	// Secret used to sign receipt QR payloads.
	ReceiptSecret = []byte(Getenv("RECEIPT_SECRET", "receipt-signing-secret"))
)

// Context keys
type ContextKey string

const RoleKey ContextKey = "role"
const UserIDKey ContextKey = "userId"

var Ctx = context.Background()

// Getenv reads an environment variable with a fallback default.
func Getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
