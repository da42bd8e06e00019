package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hearthhq/hearth/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrBookingNotFound = errors.New("booking not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

const bookingColumns = `id, property_id, host_id, guest_id, guest_email, check_in, check_out,
	guests, nights, total_amount, currency, booking_status, payment_status, created_at, updated_at`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.PropertyID, &b.HostID, &b.GuestID, &b.GuestEmail, &b.CheckIn, &b.CheckOut,
		&b.Guests, &b.Nights, &b.TotalAmount, &b.Currency, &b.BookingStatus, &b.PaymentStatus, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) CreateBooking(ctx context.Context, b *model.Booking, events ...model.OutboxMessage) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (id, property_id, host_id, guest_id, guest_email, check_in, check_out,
			guests, nights, total_amount, currency, booking_status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, b.ID, b.PropertyID, b.HostID, b.GuestID, b.GuestEmail, b.CheckIn, b.CheckOut,
		b.Guests, b.Nights, b.TotalAmount, b.Currency, b.BookingStatus, b.PaymentStatus)
	if err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// TransitionBooking applies from -> to only if the row still holds from,
// writing the outbox messages in the same transaction. Returns false when
// the guard fails, which callers treat as a logged no-op.
func (r *Repo) TransitionBooking(ctx context.Context, id uuid.UUID, from, to model.BookingStatus, events ...model.OutboxMessage) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET booking_status = $3, updated_at = NOW()
		WHERE id = $1 AND booking_status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertOutbox(ctx, tx, events); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// TransitionPayment applies the payment-status edge with the same
// conditional-update and outbox semantics as TransitionBooking.
func (r *Repo) TransitionPayment(ctx context.Context, id uuid.UUID, from []model.PaymentStatus, to model.PaymentStatus, events ...model.OutboxMessage) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET payment_status = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status = ANY($2)
	`, id, statusStrings(from), to)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertOutbox(ctx, tx, events); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// UpsertPaymentRecord creates the active payment record for a booking. A
// retry that races the first insert lands on the partial unique index and
// keeps the existing record.
func (r *Repo) UpsertPaymentRecord(ctx context.Context, rec *model.PaymentRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payment_records (id, booking_id, charge_id, amount, fee, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (booking_id) WHERE status IN ('pending', 'processing')
		DO NOTHING
	`, rec.ID, rec.BookingID, rec.ChargeID, rec.Amount, rec.Fee, rec.Currency, rec.Status)
	return err
}

func (r *Repo) UpdatePaymentRecord(ctx context.Context, bookingID uuid.UUID, from []model.PaymentStatus, to model.PaymentStatus, chargeID, eventID, failureReason string, fee int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payment_records
		SET status = $3,
			charge_id = COALESCE(NULLIF($4, ''), charge_id),
			last_event_id = COALESCE(NULLIF($5, ''), last_event_id),
			failure_reason = COALESCE(NULLIF($6, ''), failure_reason),
			fee = GREATEST(fee, $7),
			updated_at = NOW()
		WHERE booking_id = $1 AND status = ANY($2)
	`, bookingID, statusStrings(from), to, chargeID, eventID, failureReason, fee)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) ListStartable(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE booking_status = 'confirmed' AND payment_status = 'succeeded' AND check_in <= $1
		ORDER BY check_in ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *Repo) ListCompletable(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE booking_status = 'in_progress' AND check_out <= $1
		ORDER BY check_out ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func insertOutbox(ctx context.Context, tx pgx.Tx, events []model.OutboxMessage) error {
	for _, e := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO event_outbox (event_type, payload, partition_key, status)
			VALUES ($1, $2, $3, 'pending')
		`, e.EventType, e.Payload, e.PartitionKey)
		if err != nil {
			return err
		}
	}
	return nil
}

func statusStrings[T ~string](statuses []T) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
