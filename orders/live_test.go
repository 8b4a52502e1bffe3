package orders

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStreamOrder_FailedUpgradeWritesSingleResponse(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/orders/o1/stream", nil)

	// A plain GET without the websocket handshake headers must be rejected by
	// the upgrader alone; the handler may not write a second response on top.
	streamOrder(w, r, "o1")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 from the upgrader, got %d", w.Code)
	}
	body := strings.TrimRight(w.Body.String(), "\n")
	if !strings.Contains(body, "websocket") {
		t.Errorf("expected the upgrader's rejection message, got %q", body)
	}
	if strings.Contains(body, "\n") {
		t.Errorf("expected a single response body, got %q", body)
	}
}
