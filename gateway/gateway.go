package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"vitrine/globals"
	"vitrine/models"
)

var (
	// ErrUnavailable: the provider answered with a failure or was never
	// reached. No payment exists; the whole checkout is safe to roll back and
	// the caller may retry.
	ErrUnavailable = errors.New("payment provider unavailable")

	// ErrUnknownOutcome: the request may or may not have reached the
	// provider (timeout after send). A payment may exist on their side, so
	// this must NOT be retried; the webhook channel reconciles it later.
	ErrUnknownOutcome = errors.New("payment creation outcome unknown")
)

// CardDetails are forwarded to the provider and never persisted.
type CardDetails struct {
	HolderName  string `json:"holderName"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CCV         string `json:"ccv"`
}

type PaymentRequest struct {
	CustomerID        string
	Method            models.PaymentMethod
	Amount            float64
	Description       string
	ExternalReference string
	DueDate           time.Time
	Card              *CardDetails
}

type PaymentResult struct {
	ExternalID   string
	Status       models.PaymentStatus
	PixQrCode    string
	PixCopyPaste string
	BankSlipURL  string
}

// Client talks to the external payment provider's REST API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL: globals.Getenv("PROVIDER_BASE_URL", "https://api.provider.example/v1"),
		APIKey:  globals.Getenv("PROVIDER_API_KEY", ""),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// --- wire shapes ---

type customerPayload struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	CpfCnpj           string `json:"cpfCnpj,omitempty"`
	Phone             string `json:"phone,omitempty"`
	ExternalReference string `json:"externalReference"`
}

type customerResponse struct {
	ID string `json:"id"`
}

type paymentPayload struct {
	Customer          string       `json:"customer"`
	BillingType       string       `json:"billingType"`
	Value             float64      `json:"value"`
	Description       string       `json:"description,omitempty"`
	ExternalReference string       `json:"externalReference"`
	DueDate           string       `json:"dueDate,omitempty"`
	CreditCard        *CardDetails `json:"creditCard,omitempty"`
}

type paymentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	PixQrCode    string `json:"pixQrCode,omitempty"`
	PixCopyPaste string `json:"pixCopyPaste,omitempty"`
	BankSlipURL  string `json:"bankSlipUrl,omitempty"`
}

// EnsureCustomer returns the provider-side customer id for the user, creating
// it on first use. Creation is idempotent on the provider (keyed by our user
// id), so a bounded retry on transient failure is safe here — unlike payment
// creation.
func (c *Client) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.GatewayCustomerID != "" {
		return user.GatewayCustomerID, nil
	}

	payload := customerPayload{
		Name:              user.Name,
		Email:             user.Email,
		CpfCnpj:           user.Document,
		Phone:             user.Phone,
		ExternalReference: user.ID,
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		var resp customerResponse
		lastErr = c.post(ctx, "/customers", payload, &resp)
		if lastErr == nil {
			return resp.ID, nil
		}
		log.Printf("EnsureCustomer attempt %d failed for user %s: %v", attempt+1, user.ID, lastErr)
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// CreatePayment creates one payment on the provider. Exactly one attempt: a
// retried creation could double-charge, so ambiguous failures come back as
// ErrUnknownOutcome for webhook reconciliation instead of being retried.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	payload := paymentPayload{
		Customer:          req.CustomerID,
		BillingType:       string(req.Method),
		Value:             req.Amount,
		Description:       req.Description,
		ExternalReference: req.ExternalReference,
		CreditCard:        req.Card,
	}
	if !req.DueDate.IsZero() {
		payload.DueDate = req.DueDate.Format("2006-01-02")
	}

	var resp paymentResponse
	if err := c.post(ctx, "/payments", payload, &resp); err != nil {
		if isAmbiguous(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnknownOutcome, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &PaymentResult{
		ExternalID:   resp.ID,
		Status:       mapStatus(resp.Status),
		PixQrCode:    resp.PixQrCode,
		PixCopyPaste: resp.PixCopyPaste,
		BankSlipURL:  resp.BankSlipURL,
	}, nil
}

// mapStatus folds the provider's status vocabulary into ours. Cards may come
// back confirmed synchronously; PIX and boleto start pending.
func mapStatus(providerStatus string) models.PaymentStatus {
	switch providerStatus {
	case "CONFIRMED", "RECEIVED":
		return models.PaymentConfirmed
	default:
		return models.PaymentPending
	}
}

// isAmbiguous reports whether the request may have been processed by the
// provider despite the error: timeouts and cancellations after send. A
// refused connection or a non-2xx response is unambiguous.
func isAmbiguous(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("access_token", c.APIKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, msg)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
