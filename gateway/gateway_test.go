package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"vitrine/models"
)

func testClient(url string) *Client {
	return &Client{
		BaseURL: url,
		APIKey:  "test-key",
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

func TestEnsureCustomer_CachedIDSkipsProvider(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	user := &models.User{ID: "u1", GatewayCustomerID: "cus_cached"}
	id, err := testClient(srv.URL).EnsureCustomer(context.Background(), user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "cus_cached" {
		t.Errorf("expected cached id, got %s", id)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no provider call, got %d", calls.Load())
	}
}

func TestEnsureCustomer_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"id":"cus_123"}`))
	}))
	defer srv.Close()

	user := &models.User{ID: "u1", Name: "Ana", Email: "ana@example.com"}
	id, err := testClient(srv.URL).EnsureCustomer(context.Background(), user)
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if id != "cus_123" {
		t.Errorf("expected cus_123, got %s", id)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestCreatePayment_NeverRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreatePayment(context.Background(), PaymentRequest{
		CustomerID: "cus_1", Method: models.MethodPix, Amount: 100,
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", calls.Load())
	}
}

func TestCreatePayment_TimeoutIsUnknownOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"id":"pay_1","status":"PENDING"}`))
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	client.HTTP.Timeout = 50 * time.Millisecond

	_, err := client.CreatePayment(context.Background(), PaymentRequest{
		CustomerID: "cus_1", Method: models.MethodPix, Amount: 100,
	})
	if !errors.Is(err, ErrUnknownOutcome) {
		t.Fatalf("expected ErrUnknownOutcome on timeout, got: %v", err)
	}
}

func TestCreatePayment_PixArtifacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"pay_9","status":"PENDING","pixQrCode":"iVBOR...","pixCopyPaste":"00020126PIXKEY"}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).CreatePayment(context.Background(), PaymentRequest{
		CustomerID: "cus_1", Method: models.MethodPix, Amount: 59.9,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExternalID != "pay_9" {
		t.Errorf("expected pay_9, got %s", res.ExternalID)
	}
	if res.Status != models.PaymentPending {
		t.Errorf("expected PENDING, got %s", res.Status)
	}
	if res.PixCopyPaste == "" {
		t.Error("expected non-empty PIX payload")
	}
}

func TestMapStatus(t *testing.T) {
	if mapStatus("CONFIRMED") != models.PaymentConfirmed {
		t.Error("CONFIRMED should map to confirmed")
	}
	if mapStatus("RECEIVED") != models.PaymentConfirmed {
		t.Error("RECEIVED should map to confirmed")
	}
	if mapStatus("AWAITING_PAYMENT") != models.PaymentPending {
		t.Error("unknown provider status should map to pending")
	}
}
