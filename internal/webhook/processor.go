package webhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hearthhq/hearth/internal/middleware"
	"github.com/hearthhq/hearth/pkg/types"
)

// BookingApplier applies payment outcomes to the booking lifecycle.
type BookingApplier interface {
	ApplyPaymentSucceeded(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.PaymentEventData) (bool, error)
	ApplyPaymentFailed(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.PaymentEventData) (bool, error)
	ApplyRefund(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.RefundEventData) (bool, error)
}

// PayoutApplier applies transfer outcomes to payout records.
type PayoutApplier interface {
	ApplyPayoutPaid(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.PayoutEventData) (bool, error)
	ApplyPayoutFailed(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.PayoutEventData) (bool, error)
}

// Processor runs a verified webhook body through the dedup ledger and
// dispatches it to the right applier. Every event has exactly one effect no
// matter how many times the gateway redelivers it.
type Processor struct {
	ledger   Ledger
	bookings BookingApplier
	payouts  PayoutApplier
}

func NewProcessor(ledger Ledger, bookings BookingApplier, payouts PayoutApplier) *Processor {
	return &Processor{
		ledger:   ledger,
		bookings: bookings,
		payouts:  payouts,
	}
}

// Process handles one delivery. A nil return acknowledges the event; an error
// leaves its ledger row at 'processing' so a redelivery can retry it.
func (p *Processor) Process(ctx context.Context, body []byte) error {
	logger := middleware.GetLogger(ctx)

	var envelope types.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.ID == "" {
		logger.Warn().Err(err).Msg("Discarding malformed webhook envelope")
		return nil
	}

	logger.Info().Str("event_id", envelope.ID).Str("event", envelope.Event).Msg("Processing webhook event")

	proceed, err := p.ledger.Begin(ctx, envelope.ID, envelope.Event)
	if err != nil {
		return err
	}
	if !proceed {
		logger.Info().Str("event_id", envelope.ID).Msg("Webhook event already processed, skipping")
		return nil
	}

	outcome, err := p.dispatch(ctx, &envelope)
	if err != nil {
		// Leave the ledger row at 'processing' so a redelivery retries.
		logger.Error().Err(err).Str("event_id", envelope.ID).Msg("Failed to apply webhook event")
		return err
	}

	if err := p.ledger.Complete(ctx, envelope.ID, outcome); err != nil {
		return err
	}

	logger.Info().Str("event_id", envelope.ID).Str("outcome", outcome).Msg("Webhook event recorded")
	return nil
}

func (p *Processor) dispatch(ctx context.Context, envelope *types.WebhookEnvelope) (string, error) {
	logger := middleware.GetLogger(ctx)

	switch envelope.Event {
	case types.WebhookPaymentSucceeded, types.WebhookPaymentFailed:
		var data types.PaymentEventData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			logger.Warn().Err(err).Str("event_id", envelope.ID).Msg("Undecodable payment event data")
			return OutcomeError, nil
		}
		bookingID, err := uuid.Parse(data.BookingID)
		if err != nil {
			logger.Warn().Str("event_id", envelope.ID).Str("booking_id", data.BookingID).Msg("Payment event has invalid booking id")
			return OutcomeError, nil
		}
		var applied bool
		if envelope.Event == types.WebhookPaymentSucceeded {
			applied, err = p.bookings.ApplyPaymentSucceeded(ctx, bookingID, envelope.ID, &data)
		} else {
			applied, err = p.bookings.ApplyPaymentFailed(ctx, bookingID, envelope.ID, &data)
		}
		return appliedOutcome(applied), err

	case types.WebhookRefundProcessed:
		var data types.RefundEventData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			logger.Warn().Err(err).Str("event_id", envelope.ID).Msg("Undecodable refund event data")
			return OutcomeError, nil
		}
		bookingID, err := uuid.Parse(data.BookingID)
		if err != nil {
			logger.Warn().Str("event_id", envelope.ID).Str("booking_id", data.BookingID).Msg("Refund event has invalid booking id")
			return OutcomeError, nil
		}
		applied, err := p.bookings.ApplyRefund(ctx, bookingID, envelope.ID, &data)
		return appliedOutcome(applied), err

	case types.WebhookPayoutPaid, types.WebhookPayoutFailed:
		var data types.PayoutEventData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			logger.Warn().Err(err).Str("event_id", envelope.ID).Msg("Undecodable payout event data")
			return OutcomeError, nil
		}
		bookingID, err := uuid.Parse(data.BookingID)
		if err != nil {
			logger.Warn().Str("event_id", envelope.ID).Str("booking_id", data.BookingID).Msg("Payout event has invalid booking id")
			return OutcomeError, nil
		}
		var applied bool
		if envelope.Event == types.WebhookPayoutPaid {
			applied, err = p.payouts.ApplyPayoutPaid(ctx, bookingID, envelope.ID, &data)
		} else {
			applied, err = p.payouts.ApplyPayoutFailed(ctx, bookingID, envelope.ID, &data)
		}
		return appliedOutcome(applied), err

	default:
		logger.Info().Str("event", envelope.Event).Msg("Ignoring unknown webhook event kind")
		return OutcomeIgnored, nil
	}
}

func appliedOutcome(applied bool) string {
	if applied {
		return OutcomeProcessed
	}
	return OutcomeIgnored
}
