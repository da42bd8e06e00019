package booking

import (
	"time"

	"github.com/hearthhq/hearth/internal/model"
)

// The transition tables below are the single source of truth for the booking
// lifecycle. A transition whose edge is absent is not an error at the call
// sites: redelivered and out-of-order webhooks make invalid-source attempts
// routine, so callers log them and move on.

var bookingEdges = map[model.BookingStatus][]model.BookingStatus{
	model.BookingPending:    {model.BookingConfirmed, model.BookingCancelled},
	model.BookingConfirmed:  {model.BookingInProgress, model.BookingCancelled, model.BookingNoShow},
	model.BookingInProgress: {model.BookingCompleted, model.BookingCancelled},
}

// Payment status is monotone except for the refund path out of succeeded.
var paymentEdges = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentPending:           {model.PaymentProcessing, model.PaymentSucceeded, model.PaymentFailed},
	model.PaymentProcessing:        {model.PaymentSucceeded, model.PaymentFailed},
	model.PaymentFailed:            {model.PaymentProcessing},
	model.PaymentSucceeded:         {model.PaymentRefunded, model.PaymentPartiallyRefunded},
	model.PaymentPartiallyRefunded: {model.PaymentRefunded},
}

func CanTransitionBooking(from, to model.BookingStatus) bool {
	for _, next := range bookingEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionPayment(from, to model.PaymentStatus) bool {
	for _, next := range paymentEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminalBooking(s model.BookingStatus) bool {
	return len(bookingEdges[s]) == 0
}

// CanStartStay guards the confirmed -> in_progress edge: payment must have
// succeeded and the stay must have begun.
func CanStartStay(b *model.Booking, now time.Time) bool {
	return b.BookingStatus == model.BookingConfirmed &&
		b.PaymentStatus == model.PaymentSucceeded &&
		!now.Before(b.CheckIn)
}

// CanCompleteStay guards the in_progress -> completed edge.
func CanCompleteStay(b *model.Booking, now time.Time) bool {
	return b.BookingStatus == model.BookingInProgress &&
		!now.Before(b.CheckOut)
}
