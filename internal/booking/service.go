package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hearthhq/hearth/internal/config"
	"github.com/hearthhq/hearth/internal/kafka"
	"github.com/hearthhq/hearth/internal/middleware"
	"github.com/hearthhq/hearth/internal/model"
	"github.com/hearthhq/hearth/internal/redis"
	"github.com/hearthhq/hearth/pkg/constants"
	"github.com/hearthhq/hearth/pkg/types"
)

// Store is the ledger-store surface the service mutates through. Every
// transition method applies a conditional update guarded by the current
// known state and returns whether the update took effect.
type Store interface {
	CreateBooking(ctx context.Context, b *model.Booking, events ...model.OutboxMessage) error
	GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	TransitionBooking(ctx context.Context, id uuid.UUID, from, to model.BookingStatus, events ...model.OutboxMessage) (bool, error)
	TransitionPayment(ctx context.Context, id uuid.UUID, from []model.PaymentStatus, to model.PaymentStatus, events ...model.OutboxMessage) (bool, error)
	UpsertPaymentRecord(ctx context.Context, rec *model.PaymentRecord) error
	UpdatePaymentRecord(ctx context.Context, bookingID uuid.UUID, from []model.PaymentStatus, to model.PaymentStatus, chargeID, eventID, failureReason string, fee int64) (bool, error)
	ListStartable(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)
	ListCompletable(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)
}

// Gateway is the slice of the payment processor client the booking flow
// needs: charge creation on confirmation.
type Gateway interface {
	CreateCharge(ctx context.Context, req *types.CreateChargeRequest) (*types.ChargeResponse, error)
}

// IdemCache is the idempotency-key cache in front of charge initiation.
type IdemCache interface {
	CheckAndSetIdempotency(ctx context.Context, key string, ttl time.Duration) ([]byte, error)
	MarkIdempotencyComplete(ctx context.Context, key string, response []byte, ttl time.Duration) error
	MarkIdempotencyFailed(ctx context.Context, key string) error
}

type Service struct {
	store   Store
	gateway Gateway
	cache   IdemCache
	policy  config.PolicyConfig
	now     func() time.Time
}

func NewService(store Store, gateway Gateway, cache IdemCache, policy config.PolicyConfig) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		cache:   cache,
		policy:  policy,
		now:     time.Now,
	}
}

// Create registers a guest stay request. Under the auto-approve policy the
// booking is confirmed immediately and the confirmation event rides the same
// transaction as the insert.
func (s *Service) Create(ctx context.Context, req *types.CreateBookingRequest) (*model.Booking, error) {
	logger := middleware.GetLogger(ctx)

	checkIn := req.CheckIn.UTC().Truncate(24 * time.Hour)
	checkOut := req.CheckOut.UTC().Truncate(24 * time.Hour)
	nights := int(checkOut.Sub(checkIn).Hours() / 24)
	if nights < 1 {
		return nil, fmt.Errorf("stay must be at least one night")
	}

	b := &model.Booking{
		ID:            uuid.New(),
		PropertyID:    uuid.MustParse(req.PropertyID),
		HostID:        uuid.MustParse(req.HostID),
		GuestID:       uuid.MustParse(req.GuestID),
		GuestEmail:    req.GuestEmail,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		Guests:        req.Guests,
		Nights:        nights,
		TotalAmount:   int64(nights) * req.NightlyRate,
		Currency:      req.Currency,
		BookingStatus: model.BookingPending,
		PaymentStatus: model.PaymentPending,
	}

	var events []model.OutboxMessage
	if s.policy.AutoApprove {
		b.BookingStatus = model.BookingConfirmed
		events = append(events, s.bookingEvent(kafka.EventBookingConfirmed, b, constants.RoleGuest, false))
	}

	if err := s.store.CreateBooking(ctx, b, events...); err != nil {
		logger.Error().Err(err).Msg("Failed to create booking")
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	logger.Info().Str("booking_id", b.ID.String()).Bool("auto_approved", s.policy.AutoApprove).Msg("Booking created")
	return b, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// Confirm applies the host approval edge (pending -> confirmed) and then
// initiates the guest charge. A false return means the guard failed and
// nothing changed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (bool, error) {
	logger := middleware.GetLogger(ctx)

	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return false, err
	}

	ev := s.bookingEvent(kafka.EventBookingConfirmed, b, constants.RoleGuest, false)
	applied, err := s.store.TransitionBooking(ctx, id, model.BookingPending, model.BookingConfirmed, ev)
	if err != nil {
		return false, err
	}
	if !applied {
		logger.Info().Str("booking_id", id.String()).Str("status", string(b.BookingStatus)).Msg("Confirm skipped, booking no longer pending")
		return false, nil
	}

	if err := s.initiateCharge(ctx, b); err != nil {
		// The booking stays confirmed; the charge can be retried and a
		// payment webhook reconciles the final status either way.
		logger.Error().Err(err).Str("booking_id", id.String()).Msg("Charge initiation failed after confirmation")
	}
	return true, nil
}

// Decline applies the host rejection edge (pending -> cancelled).
func (s *Service) Decline(ctx context.Context, id uuid.UUID) (bool, error) {
	logger := middleware.GetLogger(ctx)

	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return false, err
	}

	ev := s.bookingEvent(kafka.EventBookingCancelled, b, constants.RoleGuest, false)
	applied, err := s.store.TransitionBooking(ctx, id, model.BookingPending, model.BookingCancelled, ev)
	if err != nil {
		return false, err
	}
	if !applied {
		logger.Info().Str("booking_id", id.String()).Msg("Decline skipped, booking no longer pending")
	}
	return applied, nil
}

// Cancel moves any non-terminal booking to cancelled. If payment already
// succeeded the cancellation event carries a refund request for downstream
// handling.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	logger := middleware.GetLogger(ctx)

	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return false, err
	}
	if IsTerminalBooking(b.BookingStatus) || !CanTransitionBooking(b.BookingStatus, model.BookingCancelled) {
		logger.Info().Str("booking_id", id.String()).Str("status", string(b.BookingStatus)).Msg("Cancel skipped, booking is terminal")
		return false, nil
	}

	refundRequested := b.PaymentStatus == model.PaymentSucceeded
	ev := s.bookingEvent(kafka.EventBookingCancelled, b, constants.RoleGuest, refundRequested)
	applied, err := s.store.TransitionBooking(ctx, id, b.BookingStatus, model.BookingCancelled, ev)
	if err != nil {
		return false, err
	}
	if applied && refundRequested {
		logger.Info().Str("booking_id", id.String()).Msg("Cancellation requested a refund")
	}
	return applied, nil
}

// initiateCharge creates the payment record and asks the processor to charge
// the guest. The redis idempotency key makes a confirm retry reuse the first
// charge instead of creating a second one.
func (s *Service) initiateCharge(ctx context.Context, b *model.Booking) error {
	logger := middleware.GetLogger(ctx)
	idemKey := "charge:" + b.ID.String()

	cached, err := s.cache.CheckAndSetIdempotency(ctx, idemKey, 24*time.Hour)
	if cached != nil {
		logger.Info().Str("booking_id", b.ID.String()).Msg("Charge already initiated for booking")
		return nil
	}
	if errors.Is(err, redis.ErrKeyExists) {
		return fmt.Errorf("charge initiation in progress")
	}
	if err != nil {
		return err
	}

	rec := &model.PaymentRecord{
		ID:        uuid.New(),
		BookingID: b.ID,
		Amount:    b.TotalAmount,
		Currency:  b.Currency,
		Status:    model.PaymentPending,
	}
	if err := s.store.UpsertPaymentRecord(ctx, rec); err != nil {
		s.cache.MarkIdempotencyFailed(ctx, idemKey)
		return fmt.Errorf("failed to create payment record: %w", err)
	}

	resp, err := s.gateway.CreateCharge(ctx, &types.CreateChargeRequest{
		Amount:      b.TotalAmount,
		Currency:    b.Currency,
		CustomerRef: b.GuestID.String(),
		Metadata: map[string]string{
			"booking_id": b.ID.String(),
		},
	})
	if err != nil {
		s.cache.MarkIdempotencyFailed(ctx, idemKey)
		return fmt.Errorf("failed to create charge: %w", err)
	}

	if _, err := s.store.UpdatePaymentRecord(ctx, b.ID, []model.PaymentStatus{model.PaymentPending}, model.PaymentProcessing, resp.ChargeID, "", "", 0); err != nil {
		return err
	}
	if _, err := s.store.TransitionPayment(ctx, b.ID, []model.PaymentStatus{model.PaymentPending}, model.PaymentProcessing); err != nil {
		return err
	}

	responseBytes, _ := json.Marshal(resp)
	s.cache.MarkIdempotencyComplete(ctx, idemKey, responseBytes, 24*time.Hour)

	logger.Info().Str("booking_id", b.ID.String()).Str("charge_id", resp.ChargeID).Msg("Charge initiated")
	return nil
}

// ApplyPaymentSucceeded handles a verified payment.succeeded webhook. The
// guarded updates make a redelivered or out-of-order event a no-op.
func (s *Service) ApplyPaymentSucceeded(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.PaymentEventData) (bool, error) {
	logger := middleware.GetLogger(ctx)
	active := []model.PaymentStatus{model.PaymentPending, model.PaymentProcessing}

	if _, err := s.store.UpdatePaymentRecord(ctx, bookingID, active, model.PaymentSucceeded, data.ChargeID, eventID, "", data.Fee); err != nil {
		return false, err
	}

	ev := s.paymentEvent(kafka.EventPaymentSucceeded, bookingID, constants.RoleHost, data.Amount, data.Currency, "")
	applied, err := s.store.TransitionPayment(ctx, bookingID, active, model.PaymentSucceeded, ev)
	if err != nil {
		return false, err
	}
	if !applied {
		logger.Info().Str("booking_id", bookingID.String()).Str("event_id", eventID).Msg("Payment success already applied, skipping")
		return false, nil
	}

	// The stay may already have begun by the time the payment lands; take
	// the in_progress edge here rather than waiting for the next sweep.
	b, err := s.store.GetBooking(ctx, bookingID)
	if err == nil && CanStartStay(b, s.now()) {
		if _, err := s.store.TransitionBooking(ctx, bookingID, model.BookingConfirmed, model.BookingInProgress); err != nil {
			logger.Error().Err(err).Str("booking_id", bookingID.String()).Msg("Failed to start stay after payment")
		}
	}
	return true, nil
}

// ApplyPaymentFailed handles a verified payment.failed webhook: the payment
// cycle terminates and the booking is cancelled.
func (s *Service) ApplyPaymentFailed(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.PaymentEventData) (bool, error) {
	logger := middleware.GetLogger(ctx)
	active := []model.PaymentStatus{model.PaymentPending, model.PaymentProcessing}

	if _, err := s.store.UpdatePaymentRecord(ctx, bookingID, active, model.PaymentFailed, data.ChargeID, eventID, data.FailureReason, 0); err != nil {
		return false, err
	}

	ev := s.paymentEvent(kafka.EventPaymentFailed, bookingID, constants.RoleGuest, data.Amount, data.Currency, data.FailureReason)
	applied, err := s.store.TransitionPayment(ctx, bookingID, active, model.PaymentFailed, ev)
	if err != nil {
		return false, err
	}
	if !applied {
		logger.Info().Str("booking_id", bookingID.String()).Str("event_id", eventID).Msg("Payment failure already applied, skipping")
		return false, nil
	}

	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return true, err
	}
	if b.BookingStatus == model.BookingPending || b.BookingStatus == model.BookingConfirmed {
		cancelEv := s.bookingEvent(kafka.EventBookingCancelled, b, constants.RoleGuest, false)
		if _, err := s.store.TransitionBooking(ctx, bookingID, b.BookingStatus, model.BookingCancelled, cancelEv); err != nil {
			return true, err
		}
	}
	return true, nil
}

// ApplyRefund handles a verified refund.processed webhook. A refund below
// the booking total marks the payment partially refunded.
func (s *Service) ApplyRefund(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.RefundEventData) (bool, error) {
	logger := middleware.GetLogger(ctx)

	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}

	target := model.PaymentRefunded
	if data.Amount < b.TotalAmount {
		target = model.PaymentPartiallyRefunded
	}
	from := []model.PaymentStatus{model.PaymentSucceeded, model.PaymentPartiallyRefunded}

	if _, err := s.store.UpdatePaymentRecord(ctx, bookingID, from, target, data.ChargeID, eventID, "", 0); err != nil {
		return false, err
	}

	ev := s.paymentEvent(kafka.EventPaymentRefunded, bookingID, constants.RoleGuest, data.Amount, data.Currency, "")
	applied, err := s.store.TransitionPayment(ctx, bookingID, from, target, ev)
	if err != nil {
		return false, err
	}
	if !applied {
		logger.Info().Str("booking_id", bookingID.String()).Str("event_id", eventID).Msg("Refund already applied, skipping")
	}
	return applied, nil
}

// StartStays is the daily sweep over the confirmed -> in_progress edge.
func (s *Service) StartStays(ctx context.Context, now time.Time, limit int) (int, error) {
	logger := middleware.GetLogger(ctx)

	bookings, err := s.store.ListStartable(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	started := 0
	for i := range bookings {
		b := &bookings[i]
		if !CanStartStay(b, now) {
			continue
		}
		applied, err := s.store.TransitionBooking(ctx, b.ID, model.BookingConfirmed, model.BookingInProgress)
		if err != nil {
			logger.Error().Err(err).Str("booking_id", b.ID.String()).Msg("Failed to start stay")
			continue
		}
		if applied {
			started++
		}
	}
	return started, nil
}

// CompleteStays is the daily sweep over the in_progress -> completed edge.
func (s *Service) CompleteStays(ctx context.Context, now time.Time, limit int) (int, error) {
	logger := middleware.GetLogger(ctx)

	bookings, err := s.store.ListCompletable(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	completed := 0
	for i := range bookings {
		b := &bookings[i]
		if !CanCompleteStay(b, now) {
			continue
		}
		applied, err := s.store.TransitionBooking(ctx, b.ID, model.BookingInProgress, model.BookingCompleted)
		if err != nil {
			logger.Error().Err(err).Str("booking_id", b.ID.String()).Msg("Failed to complete stay")
			continue
		}
		if applied {
			completed++
		}
	}
	return completed, nil
}

func (s *Service) bookingEvent(eventType string, b *model.Booking, role constants.RecipientRole, refundRequested bool) model.OutboxMessage {
	status := b.BookingStatus
	switch eventType {
	case kafka.EventBookingConfirmed:
		status = model.BookingConfirmed
	case kafka.EventBookingCancelled:
		status = model.BookingCancelled
	}
	payload, _ := json.Marshal(types.DomainEvent{
		Event:         eventType,
		BookingID:     b.ID.String(),
		RecipientRole: string(role),
		Payload: types.BookingEventPayload{
			BookingStatus:   string(status),
			PaymentStatus:   string(b.PaymentStatus),
			RefundRequested: refundRequested,
		},
	})
	return model.OutboxMessage{
		EventType:    eventType,
		PartitionKey: b.ID.String(),
		Payload:      payload,
	}
}

func (s *Service) paymentEvent(eventType string, bookingID uuid.UUID, role constants.RecipientRole, amount int64, currency, reason string) model.OutboxMessage {
	payload, _ := json.Marshal(types.DomainEvent{
		Event:         eventType,
		BookingID:     bookingID.String(),
		RecipientRole: string(role),
		Payload: types.PayoutEventPayload{
			NetAmount: amount,
			Currency:  currency,
			Reason:    reason,
		},
	})
	return model.OutboxMessage{
		EventType:    eventType,
		PartitionKey: bookingID.String(),
		Payload:      payload,
	}
}
