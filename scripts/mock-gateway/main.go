package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Mock payment gateway for local development. Charges succeed immediately and
// a signed payment.succeeded webhook is delivered to the core after a short
// delay; transfers behave the same with payout.paid.

var (
	webhookURL    = flag.String("webhook-url", "http://localhost:8080/webhooks/payments", "where to deliver webhooks")
	webhookSecret = flag.String("webhook-secret", "dev-secret", "shared webhook signing secret")
	port          = flag.String("port", ":8081", "listen address")
)

type chargeRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	CustomerRef string            `json:"customer_ref"`
	Metadata    map[string]string `json:"metadata"`
}

type transferRequest struct {
	ConnectedAccount string `json:"connected_account"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Reference        string `json:"reference"`
}

type webhookEnvelope struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func main() {
	flag.Parse()

	http.HandleFunc("/v1/charges", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req chargeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		chargeID := fmt.Sprintf("ch_mock_%d", time.Now().UnixNano())
		writeJSON(w, map[string]any{
			"status":    true,
			"message":   "Charge created",
			"charge_id": chargeID,
		})
		log.Printf("Created mock charge %s for booking %s", chargeID, req.Metadata["booking_id"])

		go deliverWebhook("payment.succeeded", map[string]any{
			"charge_id":  chargeID,
			"booking_id": req.Metadata["booking_id"],
			"amount":     req.Amount,
			"fee":        req.Amount * 29 / 1000, // 2.9% processor fee
			"currency":   req.Currency,
		})
	})

	http.HandleFunc("/v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		// The idempotency key makes retries return the same transfer.
		idemKey := r.Header.Get("Idempotency-Key")
		transferID := "tr_mock_" + idemKey
		if idemKey == "" {
			transferID = fmt.Sprintf("tr_mock_%d", time.Now().UnixNano())
		}

		writeJSON(w, map[string]any{
			"status":      true,
			"message":     "Transfer queued",
			"transfer_id": transferID,
		})
		log.Printf("Created mock transfer %s to %s", transferID, req.ConnectedAccount)

		go deliverWebhook("payout.paid", map[string]any{
			"transfer_id": transferID,
			"booking_id":  req.Reference,
			"amount":      req.Amount,
			"currency":    req.Currency,
		})
	})

	http.HandleFunc("/v1/transfers/", func(w http.ResponseWriter, r *http.Request) {
		transferID := strings.TrimPrefix(r.URL.Path, "/v1/transfers/")
		writeJSON(w, map[string]any{
			"status":          true,
			"message":         "ok",
			"transfer_id":     transferID,
			"transfer_status": "paid",
		})
	})

	log.Printf("Mock gateway starting on %s...", *port)
	if err := http.ListenAndServe(*port, nil); err != nil {
		log.Fatal(err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func deliverWebhook(event string, data any) {
	time.Sleep(200 * time.Millisecond)

	envelope := webhookEnvelope{
		ID:        fmt.Sprintf("evt_mock_%d", time.Now().UnixNano()),
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("Failed to marshal webhook: %v", err)
		return
	}

	mac := hmac.New(sha256.New, []byte(*webhookSecret))
	mac.Write(body)
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequest(http.MethodPost, *webhookURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("Failed to build webhook request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hearth-Signature", signature)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("Failed to deliver %s webhook: %v", event, err)
		return
	}
	resp.Body.Close()
	log.Printf("Delivered %s webhook (%d)", event, resp.StatusCode)
}
