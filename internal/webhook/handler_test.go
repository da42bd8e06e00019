package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hearthhq/hearth/pkg/types"
)

func newGate(t *testing.T) (*Handler, *fakeLedger, *fakeAppliers) {
	t.Helper()
	ledger := newFakeLedger()
	appliers := &fakeAppliers{}
	return NewHandler("test-secret", NewProcessor(ledger, appliers, appliers)), ledger, appliers
}

func postWebhook(h *Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	h.HandlePaymentWebhook(w, req)
	return w
}

func signedEnvelope(t *testing.T, event string) []byte {
	t.Helper()
	data, _ := json.Marshal(map[string]any{"booking_id": uuid.New().String()})
	body, err := json.Marshal(types.WebhookEnvelope{
		ID:        "evt_1",
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestHandlePaymentWebhook(t *testing.T) {
	t.Run("valid delivery", func(t *testing.T) {
		h, ledger, appliers := newGate(t)
		body := signedEnvelope(t, types.WebhookPaymentSucceeded)

		w := postWebhook(h, body, Sign(body, "test-secret"))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if appliers.succeeded != 1 {
			t.Errorf("applier calls = %d, want 1", appliers.succeeded)
		}
		if ledger.outcomes["evt_1"] != OutcomeProcessed {
			t.Errorf("outcome = %s, want processed", ledger.outcomes["evt_1"])
		}
	})

	t.Run("invalid signature", func(t *testing.T) {
		h, ledger, appliers := newGate(t)
		body := signedEnvelope(t, types.WebhookPaymentSucceeded)

		w := postWebhook(h, body, Sign(body, "wrong-secret"))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
		if appliers.succeeded != 0 {
			t.Error("unverified delivery must not reach the applier")
		}
		if len(ledger.outcomes) != 0 {
			t.Error("unverified delivery must not touch the ledger")
		}
	})

	t.Run("missing signature", func(t *testing.T) {
		h, _, _ := newGate(t)
		body := signedEnvelope(t, types.WebhookPaymentSucceeded)

		if w := postWebhook(h, body, ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})

	t.Run("processor error returns 500 for redelivery", func(t *testing.T) {
		ledger := newFakeLedger()
		appliers := &fakeAppliers{err: errors.New("store down")}
		h := NewHandler("test-secret", NewProcessor(ledger, appliers, appliers))
		body := signedEnvelope(t, types.WebhookPaymentSucceeded)

		if w := postWebhook(h, body, Sign(body, "test-secret")); w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", w.Code)
		}
	})
}
