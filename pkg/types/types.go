package types

import "time"

// CreateBookingRequest is the guest-facing entry point of the lifecycle.
type CreateBookingRequest struct {
	PropertyID  string    `json:"property_id" validate:"required,uuid4"`
	HostID      string    `json:"host_id" validate:"required,uuid4"`
	GuestID     string    `json:"guest_id" validate:"required,uuid4"`
	GuestEmail  string    `json:"guest_email" validate:"required,email"`
	CheckIn     time.Time `json:"check_in" validate:"required"`
	CheckOut    time.Time `json:"check_out" validate:"required,gtfield=CheckIn"`
	Guests      int       `json:"guests" validate:"required,gte=1"`
	NightlyRate int64     `json:"nightly_rate" validate:"required,gte=0"`
	Currency    string    `json:"currency" validate:"required,len=3"`
}

type CreateChargeRequest struct {
	Amount      int64             `json:"amount" validate:"required,gte=0"`
	Currency    string            `json:"currency" validate:"required,len=3"`
	CustomerRef string            `json:"customer_ref" validate:"required"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type ChargeResponse struct {
	Status   bool   `json:"status"`
	Message  string `json:"message"`
	ChargeID string `json:"charge_id"`
}

type CreateTransferRequest struct {
	ConnectedAccount string `json:"connected_account" validate:"required"`
	Amount           int64  `json:"amount" validate:"required,gte=0"`
	Currency         string `json:"currency" validate:"required,len=3"`
	Reference        string `json:"reference" validate:"required"`
}

type TransferResponse struct {
	Status     bool   `json:"status"`
	Message    string `json:"message"`
	TransferID string `json:"transfer_id"`
}

type TransferStatusResponse struct {
	Status         bool   `json:"status"`
	Message        string `json:"message"`
	TransferID     string `json:"transfer_id"`
	TransferStatus string `json:"transfer_status"`
}
