package booking

import (
	"testing"
	"time"

	"github.com/hearthhq/hearth/internal/model"
)

func TestCanTransitionBooking(t *testing.T) {
	tests := []struct {
		name string
		from model.BookingStatus
		to   model.BookingStatus
		want bool
	}{
		{"pending to confirmed", model.BookingPending, model.BookingConfirmed, true},
		{"pending to cancelled", model.BookingPending, model.BookingCancelled, true},
		{"pending to completed", model.BookingPending, model.BookingCompleted, false},
		{"pending to in_progress", model.BookingPending, model.BookingInProgress, false},
		{"confirmed to in_progress", model.BookingConfirmed, model.BookingInProgress, true},
		{"confirmed to cancelled", model.BookingConfirmed, model.BookingCancelled, true},
		{"confirmed to no_show", model.BookingConfirmed, model.BookingNoShow, true},
		{"confirmed to completed", model.BookingConfirmed, model.BookingCompleted, false},
		{"in_progress to completed", model.BookingInProgress, model.BookingCompleted, true},
		{"in_progress to cancelled", model.BookingInProgress, model.BookingCancelled, true},
		{"completed is terminal", model.BookingCompleted, model.BookingCancelled, false},
		{"cancelled is terminal", model.BookingCancelled, model.BookingConfirmed, false},
		{"no_show is terminal", model.BookingNoShow, model.BookingCompleted, false},
		{"no self loop", model.BookingConfirmed, model.BookingConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionBooking(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransitionBooking(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCanTransitionPayment(t *testing.T) {
	tests := []struct {
		name string
		from model.PaymentStatus
		to   model.PaymentStatus
		want bool
	}{
		{"pending to processing", model.PaymentPending, model.PaymentProcessing, true},
		{"pending to succeeded", model.PaymentPending, model.PaymentSucceeded, true},
		{"pending to failed", model.PaymentPending, model.PaymentFailed, true},
		{"processing to succeeded", model.PaymentProcessing, model.PaymentSucceeded, true},
		{"processing to failed", model.PaymentProcessing, model.PaymentFailed, true},
		{"failed allows retry", model.PaymentFailed, model.PaymentProcessing, true},
		{"succeeded to refunded", model.PaymentSucceeded, model.PaymentRefunded, true},
		{"succeeded to partial refund", model.PaymentSucceeded, model.PaymentPartiallyRefunded, true},
		{"partial refund to refunded", model.PaymentPartiallyRefunded, model.PaymentRefunded, true},
		{"succeeded never reverts", model.PaymentSucceeded, model.PaymentProcessing, false},
		{"refunded is terminal", model.PaymentRefunded, model.PaymentSucceeded, false},
		{"failed cannot succeed directly", model.PaymentFailed, model.PaymentSucceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionPayment(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransitionPayment(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsTerminalBooking(t *testing.T) {
	terminal := []model.BookingStatus{model.BookingCompleted, model.BookingCancelled, model.BookingNoShow}
	for _, s := range terminal {
		if !IsTerminalBooking(s) {
			t.Errorf("IsTerminalBooking(%s) = false, want true", s)
		}
	}
	active := []model.BookingStatus{model.BookingPending, model.BookingConfirmed, model.BookingInProgress}
	for _, s := range active {
		if IsTerminalBooking(s) {
			t.Errorf("IsTerminalBooking(%s) = true, want false", s)
		}
	}
}

func TestCanStartStay(t *testing.T) {
	checkIn := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	base := model.Booking{
		BookingStatus: model.BookingConfirmed,
		PaymentStatus: model.PaymentSucceeded,
		CheckIn:       checkIn,
	}

	t.Run("ready at check-in", func(t *testing.T) {
		b := base
		if !CanStartStay(&b, checkIn) {
			t.Error("expected stay to be startable at check-in")
		}
	})

	t.Run("not before check-in", func(t *testing.T) {
		b := base
		if CanStartStay(&b, checkIn.Add(-time.Hour)) {
			t.Error("stay must not start before check-in")
		}
	})

	t.Run("not without settled payment", func(t *testing.T) {
		b := base
		b.PaymentStatus = model.PaymentProcessing
		if CanStartStay(&b, checkIn) {
			t.Error("stay must not start before payment settles")
		}
	})

	t.Run("not from pending", func(t *testing.T) {
		b := base
		b.BookingStatus = model.BookingPending
		if CanStartStay(&b, checkIn) {
			t.Error("stay must not start from an unconfirmed booking")
		}
	})
}

func TestCanCompleteStay(t *testing.T) {
	checkOut := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	b := model.Booking{
		BookingStatus: model.BookingInProgress,
		CheckOut:      checkOut,
	}

	if !CanCompleteStay(&b, checkOut) {
		t.Error("expected stay to be completable at check-out")
	}
	if CanCompleteStay(&b, checkOut.Add(-time.Minute)) {
		t.Error("stay must not complete before check-out")
	}

	b.BookingStatus = model.BookingConfirmed
	if CanCompleteStay(&b, checkOut) {
		t.Error("only in-progress stays complete")
	}
}
