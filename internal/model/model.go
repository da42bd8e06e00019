package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Model struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
	BookingNoShow     BookingStatus = "no_show"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentProcessing        PaymentStatus = "processing"
	PaymentSucceeded         PaymentStatus = "succeeded"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

type PayoutStatus string

const (
	PayoutScheduled    PayoutStatus = "scheduled"
	PayoutInTransit    PayoutStatus = "in_transit"
	PayoutPaid         PayoutStatus = "paid"
	PayoutFailed       PayoutStatus = "failed"
	PayoutManualReview PayoutStatus = "manual_review"
)

// Booking is one guest stay request. Rows are never deleted; cancelled and
// completed are terminal display states kept for audit.
type Booking struct {
	ID            uuid.UUID     `json:"id" validate:"required"`
	PropertyID    uuid.UUID     `json:"property_id" validate:"required"`
	HostID        uuid.UUID     `json:"host_id" validate:"required"`
	GuestID       uuid.UUID     `json:"guest_id" validate:"required"`
	GuestEmail    string        `json:"guest_email" validate:"required,email"`
	CheckIn       time.Time     `json:"check_in" validate:"required"`
	CheckOut      time.Time     `json:"check_out" validate:"required,gtfield=CheckIn"`
	Guests        int           `json:"guests" validate:"required,gte=1"`
	Nights        int           `json:"nights" validate:"required,gte=1"`
	TotalAmount   int64         `json:"total_amount" validate:"required,gte=0"`
	Currency      string        `json:"currency" validate:"required,len=3"`
	BookingStatus BookingStatus `json:"booking_status" validate:"required,oneof=pending confirmed in_progress completed cancelled no_show"`
	PaymentStatus PaymentStatus `json:"payment_status" validate:"required,oneof=pending processing succeeded failed refunded partially_refunded"`
	Model
}

// PaymentRecord mirrors one external charge attempt, tied 1:1 to a booking's
// active payment cycle. At most one record per booking may be non-terminal.
type PaymentRecord struct {
	ID            uuid.UUID     `json:"id" validate:"required"`
	BookingID     uuid.UUID     `json:"booking_id" validate:"required"`
	ChargeID      string        `json:"charge_id"`
	Amount        int64         `json:"amount" validate:"required,gte=0"`
	Fee           int64         `json:"fee" validate:"gte=0"`
	Currency      string        `json:"currency" validate:"required,len=3"`
	Status        PaymentStatus `json:"status" validate:"required"`
	LastEventID   string        `json:"last_event_id,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Model
}

// PayoutRecord mirrors one transfer of net host earnings. A booking has at
// most one payout record; AvailableAt is never before check-in.
type PayoutRecord struct {
	ID           uuid.UUID    `json:"id" validate:"required"`
	BookingID    uuid.UUID    `json:"booking_id" validate:"required"`
	HostAccount  string       `json:"host_account" validate:"required"`
	GrossAmount  int64        `json:"gross_amount" validate:"required,gte=0"`
	PlatformFee  int64        `json:"platform_fee" validate:"gte=0"`
	ProcessorFee int64        `json:"processor_fee" validate:"gte=0"`
	NetAmount    int64        `json:"net_amount" validate:"gte=0"`
	Currency     string       `json:"currency" validate:"required,len=3"`
	Status       PayoutStatus `json:"status" validate:"required,oneof=scheduled in_transit paid failed manual_review"`
	AvailableAt  time.Time    `json:"available_at" validate:"required"`
	TransferID   string       `json:"transfer_id,omitempty"`
	Attempts     int          `json:"attempts" validate:"gte=0"`
	NextAttempt  time.Time    `json:"next_attempt,omitempty"`
	LastError    string       `json:"last_error,omitempty"`
	Model
}

// ProcessedWebhookEvent is the dedup ledger row for one external event id.
// Purely additive within the retention window.
type ProcessedWebhookEvent struct {
	EventID   string `json:"event_id" validate:"required"`
	EventType string `json:"event_type" validate:"required"`
	Outcome   string `json:"outcome" validate:"required,oneof=processing processed ignored error"`
	Model
}

// OutboxMessage is a to-be-written outbox row. Repositories insert these in
// the same transaction as the state transition they announce, so no event is
// ever emitted for a transition that did not persist.
type OutboxMessage struct {
	EventType    string
	PartitionKey string
	Payload      json.RawMessage
}

type EventOutbox struct {
	ID            int64           `json:"id" validate:"required"`
	EventType     string          `json:"event_type" validate:"required"`
	Payload       json.RawMessage `json:"payload" validate:"required"`
	PartitionKey  string          `json:"partition_key" validate:"required"`
	Status        string          `json:"status" validate:"required,oneof=pending processed failed"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	RetryCount    int             `json:"retry_count" validate:"gte=0"`
	LastError     string          `json:"last_error,omitempty"`
	Model
}
