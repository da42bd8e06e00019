package types

// DomainEvent is the outbound payload delivered to the notification
// collaborator for every committed state transition. Delivery is
// at-least-once; the collaborator owns its own idempotency.
type DomainEvent struct {
	Event         string `json:"event"`
	BookingID     string `json:"booking_id"`
	RecipientRole string `json:"recipient_role"`
	Payload       any    `json:"payload,omitempty"`
}

type BookingEventPayload struct {
	BookingStatus   string `json:"booking_status"`
	PaymentStatus   string `json:"payment_status"`
	RefundRequested bool   `json:"refund_requested,omitempty"`
}

type PayoutEventPayload struct {
	NetAmount int64  `json:"net_amount"`
	Currency  string `json:"currency"`
	Reason    string `json:"reason,omitempty"`
}
