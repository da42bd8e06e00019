package payout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hearthhq/hearth/internal/config"
	"github.com/hearthhq/hearth/internal/kafka"
	"github.com/hearthhq/hearth/internal/middleware"
	"github.com/hearthhq/hearth/internal/model"
	"github.com/hearthhq/hearth/internal/psp"
	"github.com/hearthhq/hearth/internal/redis"
	"github.com/hearthhq/hearth/internal/settlement"
	"github.com/hearthhq/hearth/pkg/constants"
	"github.com/hearthhq/hearth/pkg/types"
)

// Store is the payout-record surface the service mutates through.
type Store interface {
	ListEligible(ctx context.Context, limit int) ([]Eligible, error)
	ClaimPayout(ctx context.Context, p *model.PayoutRecord) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.PayoutRecord, error)
	ListInTransit(ctx context.Context, limit int) ([]model.PayoutRecord, error)
	GetByBooking(ctx context.Context, bookingID uuid.UUID) (*model.PayoutRecord, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []model.PayoutStatus, to model.PayoutStatus, transferID, lastError string, events ...model.OutboxMessage) (bool, error)
	RecordAttempt(ctx context.Context, id uuid.UUID, nextAttempt time.Time, lastError string) (int, error)
}

// Gateway is the slice of the payment processor client the payout flow needs.
type Gateway interface {
	CreateTransfer(ctx context.Context, req *types.CreateTransferRequest, idemKey string) (*types.TransferResponse, error)
	GetTransferStatus(ctx context.Context, transferID string) (*types.TransferStatusResponse, error)
}

// Locker serializes dispatch of a single payout across scheduler instances.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (Releaser, error)
}

type Releaser interface {
	Release(ctx context.Context) error
}

// RedisLocker adapts the redis client to the Locker interface.
type RedisLocker struct {
	Client *redis.Client
}

func (r RedisLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (Releaser, error) {
	return r.Client.AcquireLock(ctx, key, ttl)
}

type Service struct {
	store   Store
	gateway Gateway
	locks   Locker
	policy  config.PolicyConfig
	now     func() time.Time
}

func NewService(store Store, gateway Gateway, locks Locker, policy config.PolicyConfig) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		locks:   locks,
		policy:  policy,
		now:     time.Now,
	}
}

// Schedule claims payout records for every settled booking, in progress or
// completed, that has none yet. The split comes from the settlement calculator; an anomalous
// split is parked at manual_review and never dispatched.
func (s *Service) Schedule(ctx context.Context) (int, error) {
	logger := middleware.GetLogger(ctx)

	eligible, err := s.store.ListEligible(ctx, s.policy.PayoutBatchSize)
	if err != nil {
		return 0, err
	}

	claimed := 0
	for _, e := range eligible {
		b := e.Booking
		split := settlement.Calculate(b.TotalAmount, s.policy.PlatformFeePercent, e.ProcessorFee)

		rec := &model.PayoutRecord{
			ID:           uuid.New(),
			BookingID:    b.ID,
			HostAccount:  hostAccountRef(b.HostID),
			GrossAmount:  split.Gross,
			PlatformFee:  split.PlatformFee,
			ProcessorFee: split.ProcessorFee,
			NetAmount:    split.Net,
			Currency:     b.Currency,
			Status:       model.PayoutScheduled,
			AvailableAt:  availableAt(b.CheckIn, s.policy.HoldPeriod),
		}
		if split.Anomaly {
			rec.Status = model.PayoutManualReview
			logger.Warn().
				Str("booking_id", b.ID.String()).
				Int64("gross", split.Gross).
				Int64("net", split.Net).
				Msg("Settlement anomaly, payout parked for manual review")
		}

		ok, err := s.store.ClaimPayout(ctx, rec)
		if err != nil {
			logger.Error().Err(err).Str("booking_id", b.ID.String()).Msg("Failed to claim payout")
			continue
		}
		if ok {
			claimed++
		}
	}
	return claimed, nil
}

// Dispatch sends every due payout to the gateway. Each payout is guarded by a
// distributed lock and the scheduled -> in_transit edge, so overlapping runs
// never double-send.
func (s *Service) Dispatch(ctx context.Context) (int, error) {
	logger := middleware.GetLogger(ctx)

	due, err := s.store.ListDue(ctx, s.now(), s.policy.PayoutBatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range due {
		rec := &due[i]
		lock, err := s.locks.AcquireLock(ctx, "payout:"+rec.ID.String(), 30*time.Second)
		if err != nil {
			logger.Info().Str("payout_id", rec.ID.String()).Msg("Payout locked by another run, skipping")
			continue
		}
		if s.dispatchOne(ctx, rec) {
			sent++
		}
		lock.Release(ctx)
	}
	return sent, nil
}

func (s *Service) dispatchOne(ctx context.Context, rec *model.PayoutRecord) bool {
	logger := middleware.GetLogger(ctx)

	applied, err := s.store.UpdateStatus(ctx, rec.ID, []model.PayoutStatus{model.PayoutScheduled}, model.PayoutInTransit, "", "")
	if err != nil {
		logger.Error().Err(err).Str("payout_id", rec.ID.String()).Msg("Failed to mark payout in transit")
		return false
	}
	if !applied {
		return false
	}

	// The payout record ID doubles as the idempotency key: a retry after an
	// ambiguous outcome resolves to the same transfer at the gateway.
	resp, err := s.gateway.CreateTransfer(ctx, &types.CreateTransferRequest{
		ConnectedAccount: rec.HostAccount,
		Amount:           rec.NetAmount,
		Currency:         rec.Currency,
		Reference:        rec.BookingID.String(),
	}, rec.ID.String())
	if err != nil {
		s.handleTransferError(ctx, rec, err)
		return false
	}

	if _, err := s.store.UpdateStatus(ctx, rec.ID, []model.PayoutStatus{model.PayoutInTransit}, model.PayoutInTransit, resp.TransferID, ""); err != nil {
		logger.Error().Err(err).Str("payout_id", rec.ID.String()).Msg("Failed to record transfer id")
	}

	logger.Info().Str("payout_id", rec.ID.String()).Str("transfer_id", resp.TransferID).Msg("Payout dispatched")
	return true
}

// handleTransferError routes a failed CreateTransfer by its class. Ambiguous
// outcomes leave the payout in transit; the transfer may have gone through
// and only a status poll or webhook can say.
func (s *Service) handleTransferError(ctx context.Context, rec *model.PayoutRecord, err error) {
	logger := middleware.GetLogger(ctx)

	switch psp.Classify(err) {
	case psp.ErrAmbiguous:
		logger.Warn().Err(err).Str("payout_id", rec.ID.String()).Msg("Transfer outcome unknown, leaving payout in transit for reconciliation")
		s.store.UpdateStatus(ctx, rec.ID, []model.PayoutStatus{model.PayoutInTransit}, model.PayoutInTransit, "", err.Error())

	case psp.ErrPermanent:
		logger.Error().Err(err).Str("payout_id", rec.ID.String()).Msg("Transfer rejected, parking payout for manual review")
		ev := s.payoutEvent(kafka.EventPayoutFailed, rec, err.Error())
		s.store.UpdateStatus(ctx, rec.ID, []model.PayoutStatus{model.PayoutInTransit}, model.PayoutManualReview, "", err.Error(), ev)

	default:
		s.retryLater(ctx, rec, err.Error())
	}
}

// retryLater returns the payout to scheduled with exponential backoff, or
// parks it at manual_review once attempts run out.
func (s *Service) retryLater(ctx context.Context, rec *model.PayoutRecord, reason string) {
	logger := middleware.GetLogger(ctx)

	attempts, err := s.store.RecordAttempt(ctx, rec.ID, s.now().Add(backoff(s.policy.PayoutRetryBackoff, rec.Attempts+1)), reason)
	if err != nil {
		logger.Error().Err(err).Str("payout_id", rec.ID.String()).Msg("Failed to record payout attempt")
		return
	}

	if attempts >= s.policy.PayoutMaxAttempts {
		logger.Error().Str("payout_id", rec.ID.String()).Int("attempts", attempts).Msg("Payout attempts exhausted, parking for manual review")
		ev := s.payoutEvent(kafka.EventPayoutFailed, rec, reason)
		s.store.UpdateStatus(ctx, rec.ID, []model.PayoutStatus{model.PayoutInTransit, model.PayoutScheduled}, model.PayoutManualReview, "", reason, ev)
		return
	}

	logger.Warn().Str("payout_id", rec.ID.String()).Int("attempts", attempts).Str("reason", reason).Msg("Transfer failed, payout rescheduled")
	s.store.UpdateStatus(ctx, rec.ID, []model.PayoutStatus{model.PayoutInTransit}, model.PayoutScheduled, "", reason)
}

// Reconcile polls the gateway for every in-transit transfer and applies the
// final state. This closes the loop for ambiguous dispatches and lost
// webhooks.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	logger := middleware.GetLogger(ctx)

	inTransit, err := s.store.ListInTransit(ctx, s.policy.PayoutBatchSize)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for i := range inTransit {
		rec := &inTransit[i]
		status, err := s.gateway.GetTransferStatus(ctx, rec.TransferID)
		if err != nil {
			logger.Warn().Err(err).Str("payout_id", rec.ID.String()).Msg("Transfer status poll failed")
			continue
		}

		switch status.TransferStatus {
		case "paid":
			ev := s.payoutEvent(kafka.EventPayoutPaid, rec, "")
			applied, err := s.store.UpdateStatus(ctx, rec.ID, []model.PayoutStatus{model.PayoutInTransit}, model.PayoutPaid, rec.TransferID, "", ev)
			if err != nil {
				logger.Error().Err(err).Str("payout_id", rec.ID.String()).Msg("Failed to mark payout paid")
				continue
			}
			if applied {
				resolved++
			}
		case "failed":
			s.retryLater(ctx, rec, status.Message)
			resolved++
		}
	}
	return resolved, nil
}

// ApplyPayoutPaid handles a verified payout.paid webhook.
func (s *Service) ApplyPayoutPaid(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.PayoutEventData) (bool, error) {
	logger := middleware.GetLogger(ctx)

	rec, err := s.store.GetByBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}

	ev := s.payoutEvent(kafka.EventPayoutPaid, rec, "")
	applied, err := s.store.UpdateStatus(ctx, rec.ID, []model.PayoutStatus{model.PayoutScheduled, model.PayoutInTransit}, model.PayoutPaid, data.TransferID, "", ev)
	if err != nil {
		return false, err
	}
	if !applied {
		logger.Info().Str("booking_id", bookingID.String()).Str("event_id", eventID).Msg("Payout already settled, skipping")
	}
	return applied, nil
}

// ApplyPayoutFailed handles a verified payout.failed webhook by pushing the
// payout back through the retry path.
func (s *Service) ApplyPayoutFailed(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.PayoutEventData) (bool, error) {
	logger := middleware.GetLogger(ctx)

	rec, err := s.store.GetByBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if rec.Status != model.PayoutInTransit && rec.Status != model.PayoutScheduled {
		logger.Info().Str("booking_id", bookingID.String()).Str("event_id", eventID).Str("status", string(rec.Status)).Msg("Payout failure for settled payout, skipping")
		return false, nil
	}

	s.retryLater(ctx, rec, data.FailureReason)
	return true, nil
}

func (s *Service) payoutEvent(eventType string, rec *model.PayoutRecord, reason string) model.OutboxMessage {
	payload, _ := json.Marshal(types.DomainEvent{
		Event:         eventType,
		BookingID:     rec.BookingID.String(),
		RecipientRole: string(constants.RoleHost),
		Payload: types.PayoutEventPayload{
			NetAmount: rec.NetAmount,
			Currency:  rec.Currency,
			Reason:    reason,
		},
	})
	return model.OutboxMessage{
		EventType:    eventType,
		PartitionKey: rec.BookingID.String(),
		Payload:      payload,
	}
}

// availableAt is the earliest dispatch time: the hold period counted from
// check-in.
func availableAt(checkIn time.Time, hold time.Duration) time.Time {
	return checkIn.Add(hold)
}

// backoff doubles per attempt: base, 2*base, 4*base...
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > 24*time.Hour {
			return 24 * time.Hour
		}
	}
	return d
}

func hostAccountRef(hostID uuid.UUID) string {
	return "acct_" + hostID.String()
}
