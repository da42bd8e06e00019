package booking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hearthhq/hearth/internal/config"
	"github.com/hearthhq/hearth/internal/kafka"
	"github.com/hearthhq/hearth/internal/model"
	"github.com/hearthhq/hearth/internal/redis"
	"github.com/hearthhq/hearth/pkg/types"
)

// fakeStore is an in-memory Store with the same conditional-update semantics
// as the postgres repository.
type fakeStore struct {
	bookings map[uuid.UUID]*model.Booking
	payments map[uuid.UUID]*model.PaymentRecord
	outbox   []model.OutboxMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bookings: make(map[uuid.UUID]*model.Booking),
		payments: make(map[uuid.UUID]*model.PaymentRecord),
	}
}

func (f *fakeStore) CreateBooking(ctx context.Context, b *model.Booking, events ...model.OutboxMessage) error {
	cp := *b
	f.bookings[b.ID] = &cp
	f.outbox = append(f.outbox, events...)
	return nil
}

func (f *fakeStore) GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) TransitionBooking(ctx context.Context, id uuid.UUID, from, to model.BookingStatus, events ...model.OutboxMessage) (bool, error) {
	b, ok := f.bookings[id]
	if !ok || b.BookingStatus != from {
		return false, nil
	}
	b.BookingStatus = to
	f.outbox = append(f.outbox, events...)
	return true, nil
}

func (f *fakeStore) TransitionPayment(ctx context.Context, id uuid.UUID, from []model.PaymentStatus, to model.PaymentStatus, events ...model.OutboxMessage) (bool, error) {
	b, ok := f.bookings[id]
	if !ok || !containsStatus(from, b.PaymentStatus) {
		return false, nil
	}
	b.PaymentStatus = to
	f.outbox = append(f.outbox, events...)
	return true, nil
}

func (f *fakeStore) UpsertPaymentRecord(ctx context.Context, rec *model.PaymentRecord) error {
	if existing, ok := f.payments[rec.BookingID]; ok {
		if existing.Status == model.PaymentPending || existing.Status == model.PaymentProcessing {
			return nil
		}
	}
	cp := *rec
	f.payments[rec.BookingID] = &cp
	return nil
}

func (f *fakeStore) UpdatePaymentRecord(ctx context.Context, bookingID uuid.UUID, from []model.PaymentStatus, to model.PaymentStatus, chargeID, eventID, failureReason string, fee int64) (bool, error) {
	rec, ok := f.payments[bookingID]
	if !ok || !containsStatus(from, rec.Status) {
		return false, nil
	}
	rec.Status = to
	if chargeID != "" {
		rec.ChargeID = chargeID
	}
	if eventID != "" {
		rec.LastEventID = eventID
	}
	if failureReason != "" {
		rec.FailureReason = failureReason
	}
	if fee > rec.Fee {
		rec.Fee = fee
	}
	return true, nil
}

func (f *fakeStore) ListStartable(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range f.bookings {
		if b.BookingStatus == model.BookingConfirmed && b.PaymentStatus == model.PaymentSucceeded && !now.Before(b.CheckIn) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStore) ListCompletable(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range f.bookings {
		if b.BookingStatus == model.BookingInProgress && !now.Before(b.CheckOut) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStore) eventsOfType(eventType string) []model.OutboxMessage {
	var out []model.OutboxMessage
	for _, e := range f.outbox {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func containsStatus(statuses []model.PaymentStatus, s model.PaymentStatus) bool {
	for _, c := range statuses {
		if c == s {
			return true
		}
	}
	return false
}

type fakeGateway struct {
	calls    int
	chargeID string
	err      error
}

func (f *fakeGateway) CreateCharge(ctx context.Context, req *types.CreateChargeRequest) (*types.ChargeResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.ChargeResponse{Status: true, ChargeID: f.chargeID}, nil
}

type fakeCache struct {
	claimed  map[string]bool
	complete map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		claimed:  make(map[string]bool),
		complete: make(map[string][]byte),
	}
}

func (f *fakeCache) CheckAndSetIdempotency(ctx context.Context, key string, ttl time.Duration) ([]byte, error) {
	if resp, ok := f.complete[key]; ok {
		return resp, nil
	}
	if f.claimed[key] {
		return nil, redis.ErrKeyExists
	}
	f.claimed[key] = true
	return nil, nil
}

func (f *fakeCache) MarkIdempotencyComplete(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	f.complete[key] = response
	return nil
}

func (f *fakeCache) MarkIdempotencyFailed(ctx context.Context, key string) error {
	delete(f.claimed, key)
	return nil
}

func testPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		HoldPeriod:         24 * time.Hour,
		PlatformFeePercent: 15,
		PayoutMaxAttempts:  5,
		PayoutRetryBackoff: time.Hour,
		PayoutBatchSize:    100,
	}
}

func newTestService(store *fakeStore, gw *fakeGateway) *Service {
	return NewService(store, gw, newFakeCache(), testPolicy())
}

func createRequest() *types.CreateBookingRequest {
	return &types.CreateBookingRequest{
		PropertyID:  uuid.New().String(),
		HostID:      uuid.New().String(),
		GuestID:     uuid.New().String(),
		GuestEmail:  "guest@example.com",
		CheckIn:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		CheckOut:    time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Guests:      2,
		NightlyRate: 250,
		Currency:    "USD",
	}
}

func TestCreateBooking(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{chargeID: "ch_1"})

	b, err := svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if b.BookingStatus != model.BookingPending {
		t.Errorf("status = %s, want pending", b.BookingStatus)
	}
	if b.Nights != 4 {
		t.Errorf("nights = %d, want 4", b.Nights)
	}
	if b.TotalAmount != 1000 {
		t.Errorf("total = %d, want 1000", b.TotalAmount)
	}
	if len(store.outbox) != 0 {
		t.Errorf("pending booking must not emit events, got %d", len(store.outbox))
	}
}

func TestCreateBookingAutoApprove(t *testing.T) {
	store := newFakeStore()
	policy := testPolicy()
	policy.AutoApprove = true
	svc := NewService(store, &fakeGateway{chargeID: "ch_1"}, newFakeCache(), policy)

	b, err := svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if b.BookingStatus != model.BookingConfirmed {
		t.Errorf("status = %s, want confirmed", b.BookingStatus)
	}
	if got := store.eventsOfType(kafka.EventBookingConfirmed); len(got) != 1 {
		t.Errorf("confirmed events = %d, want 1", len(got))
	}
}

func TestCreateBookingRejectsSameDayStay(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeGateway{})

	req := createRequest()
	req.CheckOut = req.CheckIn
	if _, err := svc.Create(context.Background(), req); err == nil {
		t.Fatal("expected error for zero-night stay")
	}
}

func TestConfirmInitiatesCharge(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{chargeID: "ch_1"}
	svc := newTestService(store, gw)

	b, _ := svc.Create(context.Background(), createRequest())

	applied, err := svc.Confirm(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !applied {
		t.Fatal("expected confirm to apply")
	}
	if gw.calls != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.calls)
	}

	got, _ := store.GetBooking(context.Background(), b.ID)
	if got.BookingStatus != model.BookingConfirmed {
		t.Errorf("booking status = %s, want confirmed", got.BookingStatus)
	}
	if got.PaymentStatus != model.PaymentProcessing {
		t.Errorf("payment status = %s, want processing", got.PaymentStatus)
	}
	if rec := store.payments[b.ID]; rec == nil || rec.ChargeID != "ch_1" {
		t.Error("payment record missing or missing charge id")
	}
	if got := store.eventsOfType(kafka.EventBookingConfirmed); len(got) != 1 {
		t.Errorf("confirmed events = %d, want 1", len(got))
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{chargeID: "ch_1"}
	svc := newTestService(store, gw)

	b, _ := svc.Create(context.Background(), createRequest())

	if applied, _ := svc.Confirm(context.Background(), b.ID); !applied {
		t.Fatal("first confirm must apply")
	}
	applied, err := svc.Confirm(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("second Confirm: %v", err)
	}
	if applied {
		t.Error("second confirm must be a no-op")
	}
	if gw.calls != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.calls)
	}
}

func TestConfirmKeepsBookingWhenChargeFails(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{err: errors.New("gateway down")}
	svc := newTestService(store, gw)

	b, _ := svc.Create(context.Background(), createRequest())

	applied, err := svc.Confirm(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !applied {
		t.Fatal("confirm must apply even when the charge call fails")
	}

	got, _ := store.GetBooking(context.Background(), b.ID)
	if got.BookingStatus != model.BookingConfirmed {
		t.Errorf("booking status = %s, want confirmed", got.BookingStatus)
	}
	if got.PaymentStatus != model.PaymentPending {
		t.Errorf("payment status = %s, want pending", got.PaymentStatus)
	}
}

func TestDecline(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})

	b, _ := svc.Create(context.Background(), createRequest())

	applied, err := svc.Decline(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if !applied {
		t.Fatal("expected decline to apply")
	}

	got, _ := store.GetBooking(context.Background(), b.ID)
	if got.BookingStatus != model.BookingCancelled {
		t.Errorf("status = %s, want cancelled", got.BookingStatus)
	}
	if got := store.eventsOfType(kafka.EventBookingCancelled); len(got) != 1 {
		t.Errorf("cancelled events = %d, want 1", len(got))
	}
}

func TestApplyPaymentSucceeded(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{chargeID: "ch_1"}
	svc := newTestService(store, gw)

	b, _ := svc.Create(context.Background(), createRequest())
	svc.Confirm(context.Background(), b.ID)

	data := &types.PaymentEventData{ChargeID: "ch_1", BookingID: b.ID.String(), Amount: 1000, Fee: 30, Currency: "USD"}
	applied, err := svc.ApplyPaymentSucceeded(context.Background(), b.ID, "evt_1", data)
	if err != nil {
		t.Fatalf("ApplyPaymentSucceeded: %v", err)
	}
	if !applied {
		t.Fatal("expected event to apply")
	}

	got, _ := store.GetBooking(context.Background(), b.ID)
	if got.PaymentStatus != model.PaymentSucceeded {
		t.Errorf("payment status = %s, want succeeded", got.PaymentStatus)
	}
	if rec := store.payments[b.ID]; rec.Fee != 30 {
		t.Errorf("recorded fee = %d, want 30", rec.Fee)
	}
	if got := store.eventsOfType(kafka.EventPaymentSucceeded); len(got) != 1 {
		t.Errorf("payment events = %d, want 1", len(got))
	}
}

func TestApplyPaymentSucceededReplayIsNoop(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{chargeID: "ch_1"})

	b, _ := svc.Create(context.Background(), createRequest())
	svc.Confirm(context.Background(), b.ID)

	data := &types.PaymentEventData{ChargeID: "ch_1", BookingID: b.ID.String(), Amount: 1000, Currency: "USD"}
	svc.ApplyPaymentSucceeded(context.Background(), b.ID, "evt_1", data)

	applied, err := svc.ApplyPaymentSucceeded(context.Background(), b.ID, "evt_1", data)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if applied {
		t.Error("replayed event must not apply again")
	}
	if got := store.eventsOfType(kafka.EventPaymentSucceeded); len(got) != 1 {
		t.Errorf("payment events = %d, want 1 after replay", len(got))
	}
}

func TestApplyPaymentSucceededStartsOverdueStay(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{chargeID: "ch_1"})
	svc.now = func() time.Time { return time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC) }

	b, _ := svc.Create(context.Background(), createRequest())
	svc.Confirm(context.Background(), b.ID)

	data := &types.PaymentEventData{ChargeID: "ch_1", BookingID: b.ID.String(), Amount: 1000, Currency: "USD"}
	svc.ApplyPaymentSucceeded(context.Background(), b.ID, "evt_1", data)

	got, _ := store.GetBooking(context.Background(), b.ID)
	if got.BookingStatus != model.BookingInProgress {
		t.Errorf("booking status = %s, want in_progress for a stay past check-in", got.BookingStatus)
	}
}

func TestApplyPaymentFailedCancelsBooking(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{chargeID: "ch_1"})

	b, _ := svc.Create(context.Background(), createRequest())
	svc.Confirm(context.Background(), b.ID)

	data := &types.PaymentEventData{ChargeID: "ch_1", BookingID: b.ID.String(), Amount: 1000, Currency: "USD", FailureReason: "card_declined"}
	applied, err := svc.ApplyPaymentFailed(context.Background(), b.ID, "evt_2", data)
	if err != nil {
		t.Fatalf("ApplyPaymentFailed: %v", err)
	}
	if !applied {
		t.Fatal("expected event to apply")
	}

	got, _ := store.GetBooking(context.Background(), b.ID)
	if got.PaymentStatus != model.PaymentFailed {
		t.Errorf("payment status = %s, want failed", got.PaymentStatus)
	}
	if got.BookingStatus != model.BookingCancelled {
		t.Errorf("booking status = %s, want cancelled", got.BookingStatus)
	}
	if rec := store.payments[b.ID]; rec.FailureReason != "card_declined" {
		t.Errorf("failure reason = %q, want card_declined", rec.FailureReason)
	}
}

func TestApplyRefund(t *testing.T) {
	setup := func() (*fakeStore, *Service, uuid.UUID) {
		store := newFakeStore()
		svc := newTestService(store, &fakeGateway{chargeID: "ch_1"})
		b, _ := svc.Create(context.Background(), createRequest())
		svc.Confirm(context.Background(), b.ID)
		svc.ApplyPaymentSucceeded(context.Background(), b.ID, "evt_1",
			&types.PaymentEventData{ChargeID: "ch_1", BookingID: b.ID.String(), Amount: 1000, Currency: "USD"})
		return store, svc, b.ID
	}

	t.Run("full refund", func(t *testing.T) {
		store, svc, id := setup()
		applied, err := svc.ApplyRefund(context.Background(), id, "evt_3",
			&types.RefundEventData{ChargeID: "ch_1", BookingID: id.String(), Amount: 1000, Currency: "USD"})
		if err != nil || !applied {
			t.Fatalf("ApplyRefund: applied=%v err=%v", applied, err)
		}
		got, _ := store.GetBooking(context.Background(), id)
		if got.PaymentStatus != model.PaymentRefunded {
			t.Errorf("payment status = %s, want refunded", got.PaymentStatus)
		}
	})

	t.Run("partial refund", func(t *testing.T) {
		store, svc, id := setup()
		applied, err := svc.ApplyRefund(context.Background(), id, "evt_3",
			&types.RefundEventData{ChargeID: "ch_1", BookingID: id.String(), Amount: 400, Currency: "USD"})
		if err != nil || !applied {
			t.Fatalf("ApplyRefund: applied=%v err=%v", applied, err)
		}
		got, _ := store.GetBooking(context.Background(), id)
		if got.PaymentStatus != model.PaymentPartiallyRefunded {
			t.Errorf("payment status = %s, want partially_refunded", got.PaymentStatus)
		}
	})

	t.Run("refund before settlement is a no-op", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store, &fakeGateway{chargeID: "ch_1"})
		b, _ := svc.Create(context.Background(), createRequest())
		svc.Confirm(context.Background(), b.ID)

		applied, err := svc.ApplyRefund(context.Background(), b.ID, "evt_3",
			&types.RefundEventData{ChargeID: "ch_1", BookingID: b.ID.String(), Amount: 1000, Currency: "USD"})
		if err != nil {
			t.Fatalf("ApplyRefund: %v", err)
		}
		if applied {
			t.Error("refund of an unsettled payment must not apply")
		}
	})
}

func TestCancelRequestsRefundAfterSettlement(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{chargeID: "ch_1"})

	b, _ := svc.Create(context.Background(), createRequest())
	svc.Confirm(context.Background(), b.ID)
	svc.ApplyPaymentSucceeded(context.Background(), b.ID, "evt_1",
		&types.PaymentEventData{ChargeID: "ch_1", BookingID: b.ID.String(), Amount: 1000, Currency: "USD"})

	applied, err := svc.Cancel(context.Background(), b.ID)
	if err != nil || !applied {
		t.Fatalf("Cancel: applied=%v err=%v", applied, err)
	}

	events := store.eventsOfType(kafka.EventBookingCancelled)
	if len(events) != 1 {
		t.Fatalf("cancelled events = %d, want 1", len(events))
	}
	if !strings.Contains(string(events[0].Payload), `"refund_requested":true`) {
		t.Errorf("cancellation event should request a refund, payload: %s", events[0].Payload)
	}
}

func TestCancelTerminalBookingIsNoop(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})

	b, _ := svc.Create(context.Background(), createRequest())
	svc.Decline(context.Background(), b.ID)

	applied, err := svc.Cancel(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if applied {
		t.Error("cancel of a terminal booking must be a no-op")
	}
}

func TestSweeps(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{chargeID: "ch_1"})

	b, _ := svc.Create(context.Background(), createRequest())
	svc.Confirm(context.Background(), b.ID)
	svc.ApplyPaymentSucceeded(context.Background(), b.ID, "evt_1",
		&types.PaymentEventData{ChargeID: "ch_1", BookingID: b.ID.String(), Amount: 1000, Currency: "USD"})

	started, err := svc.StartStays(context.Background(), time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC), 100)
	if err != nil {
		t.Fatalf("StartStays: %v", err)
	}
	if started != 1 {
		t.Fatalf("started = %d, want 1", started)
	}

	completed, err := svc.CompleteStays(context.Background(), time.Date(2026, 3, 14, 1, 0, 0, 0, time.UTC), 100)
	if err != nil {
		t.Fatalf("CompleteStays: %v", err)
	}
	if completed != 1 {
		t.Fatalf("completed = %d, want 1", completed)
	}

	got, _ := store.GetBooking(context.Background(), b.ID)
	if got.BookingStatus != model.BookingCompleted {
		t.Errorf("booking status = %s, want completed", got.BookingStatus)
	}
}
