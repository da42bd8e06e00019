package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hearthhq/hearth/pkg/types"
)

type fakeLedger struct {
	outcomes map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{outcomes: make(map[string]string)}
}

func (f *fakeLedger) Begin(ctx context.Context, eventID, eventType string) (bool, error) {
	if outcome, ok := f.outcomes[eventID]; ok {
		return outcome == OutcomeProcessing, nil
	}
	f.outcomes[eventID] = OutcomeProcessing
	return true, nil
}

func (f *fakeLedger) Complete(ctx context.Context, eventID, outcome string) error {
	f.outcomes[eventID] = outcome
	return nil
}

func (f *fakeLedger) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeAppliers struct {
	succeeded int
	failed    int
	refunded  int
	paid      int
	payFailed int
	err       error
}

func (f *fakeAppliers) ApplyPaymentSucceeded(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.PaymentEventData) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.succeeded++
	return true, nil
}

func (f *fakeAppliers) ApplyPaymentFailed(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.PaymentEventData) (bool, error) {
	f.failed++
	return true, nil
}

func (f *fakeAppliers) ApplyRefund(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.RefundEventData) (bool, error) {
	f.refunded++
	return true, nil
}

func (f *fakeAppliers) ApplyPayoutPaid(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.PayoutEventData) (bool, error) {
	f.paid++
	return true, nil
}

func (f *fakeAppliers) ApplyPayoutFailed(ctx context.Context, bookingID uuid.UUID, eventID string, data *types.PayoutEventData) (bool, error) {
	f.payFailed++
	return true, nil
}

func envelope(t *testing.T, id, event string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	body, err := json.Marshal(types.WebhookEnvelope{
		ID:        id,
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestProcessorDispatch(t *testing.T) {
	bookingID := uuid.New().String()

	tests := []struct {
		name  string
		event string
		count func(f *fakeAppliers) int
	}{
		{"payment succeeded", types.WebhookPaymentSucceeded, func(f *fakeAppliers) int { return f.succeeded }},
		{"payment failed", types.WebhookPaymentFailed, func(f *fakeAppliers) int { return f.failed }},
		{"refund processed", types.WebhookRefundProcessed, func(f *fakeAppliers) int { return f.refunded }},
		{"payout paid", types.WebhookPayoutPaid, func(f *fakeAppliers) int { return f.paid }},
		{"payout failed", types.WebhookPayoutFailed, func(f *fakeAppliers) int { return f.payFailed }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newFakeLedger()
			appliers := &fakeAppliers{}
			p := NewProcessor(ledger, appliers, appliers)

			body := envelope(t, "evt_1", tt.event, map[string]any{"booking_id": bookingID})
			if err := p.Process(context.Background(), body); err != nil {
				t.Fatalf("Process: %v", err)
			}
			if got := tt.count(appliers); got != 1 {
				t.Errorf("applier calls = %d, want 1", got)
			}
			if ledger.outcomes["evt_1"] != OutcomeProcessed {
				t.Errorf("outcome = %s, want processed", ledger.outcomes["evt_1"])
			}
		})
	}
}

func TestProcessorDuplicateEvent(t *testing.T) {
	ledger := newFakeLedger()
	appliers := &fakeAppliers{}
	p := NewProcessor(ledger, appliers, appliers)

	body := envelope(t, "evt_1", types.WebhookPaymentSucceeded, map[string]any{"booking_id": uuid.New().String()})

	for i := 0; i < 3; i++ {
		if err := p.Process(context.Background(), body); err != nil {
			t.Fatalf("Process #%d: %v", i+1, err)
		}
	}

	if appliers.succeeded != 1 {
		t.Errorf("applier calls = %d, want exactly 1 across redeliveries", appliers.succeeded)
	}
}

func TestProcessorRetriesAfterApplierError(t *testing.T) {
	ledger := newFakeLedger()
	appliers := &fakeAppliers{err: errors.New("db down")}
	p := NewProcessor(ledger, appliers, appliers)

	body := envelope(t, "evt_1", types.WebhookPaymentSucceeded, map[string]any{"booking_id": uuid.New().String()})

	if err := p.Process(context.Background(), body); err == nil {
		t.Fatal("expected error from failing applier")
	}
	if ledger.outcomes["evt_1"] != OutcomeProcessing {
		t.Fatalf("outcome = %s, want processing so the redelivery retries", ledger.outcomes["evt_1"])
	}

	// The outage clears and the redelivery lands.
	appliers.err = nil
	if err := p.Process(context.Background(), body); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if appliers.succeeded != 1 {
		t.Errorf("applier calls = %d, want 1", appliers.succeeded)
	}
	if ledger.outcomes["evt_1"] != OutcomeProcessed {
		t.Errorf("outcome = %s, want processed", ledger.outcomes["evt_1"])
	}
}

func TestProcessorUnknownEvent(t *testing.T) {
	ledger := newFakeLedger()
	appliers := &fakeAppliers{}
	p := NewProcessor(ledger, appliers, appliers)

	body := envelope(t, "evt_9", "account.updated", map[string]any{"whatever": true})
	if err := p.Process(context.Background(), body); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ledger.outcomes["evt_9"] != OutcomeIgnored {
		t.Errorf("outcome = %s, want ignored", ledger.outcomes["evt_9"])
	}
}

func TestProcessorMalformedInput(t *testing.T) {
	ledger := newFakeLedger()
	appliers := &fakeAppliers{}
	p := NewProcessor(ledger, appliers, appliers)

	t.Run("unparseable body is acked", func(t *testing.T) {
		if err := p.Process(context.Background(), []byte("not json")); err != nil {
			t.Fatalf("Process: %v", err)
		}
		if len(ledger.outcomes) != 0 {
			t.Error("malformed body must not touch the ledger")
		}
	})

	t.Run("missing event id is acked", func(t *testing.T) {
		if err := p.Process(context.Background(), []byte(`{"event":"payment.succeeded"}`)); err != nil {
			t.Fatalf("Process: %v", err)
		}
	})

	t.Run("bad booking id records error outcome", func(t *testing.T) {
		body := envelope(t, "evt_bad", types.WebhookPaymentSucceeded, map[string]any{"booking_id": "not-a-uuid"})
		if err := p.Process(context.Background(), body); err != nil {
			t.Fatalf("Process: %v", err)
		}
		if ledger.outcomes["evt_bad"] != OutcomeError {
			t.Errorf("outcome = %s, want error", ledger.outcomes["evt_bad"])
		}
		if appliers.succeeded != 0 {
			t.Error("applier must not run for an undecodable event")
		}
	})
}

func TestProcessorConcurrentDistinctEvents(t *testing.T) {
	ledger := newFakeLedger()
	appliers := &fakeAppliers{}
	p := NewProcessor(ledger, appliers, appliers)

	for i := 0; i < 5; i++ {
		body := envelope(t, fmt.Sprintf("evt_%d", i), types.WebhookPayoutPaid, map[string]any{"booking_id": uuid.New().String()})
		if err := p.Process(context.Background(), body); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if appliers.paid != 5 {
		t.Errorf("applier calls = %d, want 5", appliers.paid)
	}
}
