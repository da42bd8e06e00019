package types

import (
	"encoding/json"
	"time"
)

// Inbound webhook event names from the payment processor.
const (
	WebhookPaymentSucceeded = "payment.succeeded"
	WebhookPaymentFailed    = "payment.failed"
	WebhookRefundProcessed  = "refund.processed"
	WebhookPayoutPaid       = "payout.paid"
	WebhookPayoutFailed     = "payout.failed"
)

// WebhookEnvelope is the processor's wire format. Data is decoded per event
// kind; anything not in the known set is an unknown variant, acknowledged
// and ignored.
type WebhookEnvelope struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// PaymentEventData is the payload for payment.succeeded / payment.failed.
// Fee is the processor's own fee, needed later for the host payout split.
type PaymentEventData struct {
	ChargeID      string `json:"charge_id"`
	BookingID     string `json:"booking_id"`
	Amount        int64  `json:"amount"`
	Fee           int64  `json:"fee"`
	Currency      string `json:"currency"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// RefundEventData is the payload for refund.processed. Amount is the
// refunded portion; less than the charge marks a partial refund.
type RefundEventData struct {
	ChargeID  string `json:"charge_id"`
	BookingID string `json:"booking_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// PayoutEventData is the payload for payout.paid / payout.failed.
type PayoutEventData struct {
	TransferID    string `json:"transfer_id"`
	BookingID     string `json:"booking_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	FailureReason string `json:"failure_reason,omitempty"`
}
