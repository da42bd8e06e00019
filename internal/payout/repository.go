package payout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hearthhq/hearth/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPayoutNotFound = errors.New("payout not found")

// Eligible is a settled booking, in progress or completed, that has no payout
// record yet, joined with the processor fee its charge carried.
type Eligible struct {
	Booking      model.Booking
	ProcessorFee int64
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

const payoutColumns = `id, booking_id, host_account, gross_amount, platform_fee, processor_fee,
	net_amount, currency, status, available_at, transfer_id, attempts, next_attempt, last_error, created_at, updated_at`

func scanPayout(row pgx.Row) (*model.PayoutRecord, error) {
	var p model.PayoutRecord
	var transferID, lastError *string
	var nextAttempt *time.Time
	err := row.Scan(&p.ID, &p.BookingID, &p.HostAccount, &p.GrossAmount, &p.PlatformFee, &p.ProcessorFee,
		&p.NetAmount, &p.Currency, &p.Status, &p.AvailableAt, &transferID, &p.Attempts, &nextAttempt, &lastError, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if transferID != nil {
		p.TransferID = *transferID
	}
	if lastError != nil {
		p.LastError = *lastError
	}
	if nextAttempt != nil {
		p.NextAttempt = *nextAttempt
	}
	return &p, nil
}

// ListEligible returns completed bookings whose payment settled and which
// have no payout record yet.
func (r *Repo) ListEligible(ctx context.Context, limit int) ([]Eligible, error) {
	rows, err := r.db.Query(ctx, `
		SELECT b.id, b.property_id, b.host_id, b.guest_id, b.guest_email, b.check_in, b.check_out,
			b.guests, b.nights, b.total_amount, b.currency, b.booking_status, b.payment_status,
			b.created_at, b.updated_at, COALESCE(pr.fee, 0)
		FROM bookings b
		JOIN payment_records pr ON pr.booking_id = b.id AND pr.status = 'succeeded'
		LEFT JOIN payout_records po ON po.booking_id = b.id
		WHERE b.booking_status IN ('in_progress', 'completed')
			AND b.payment_status = 'succeeded' AND po.id IS NULL
		ORDER BY b.check_out ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Eligible
	for rows.Next() {
		var e Eligible
		b := &e.Booking
		err := rows.Scan(&b.ID, &b.PropertyID, &b.HostID, &b.GuestID, &b.GuestEmail, &b.CheckIn, &b.CheckOut,
			&b.Guests, &b.Nights, &b.TotalAmount, &b.Currency, &b.BookingStatus, &b.PaymentStatus,
			&b.CreatedAt, &b.UpdatedAt, &e.ProcessorFee)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClaimPayout inserts the single payout record for a booking. Two scheduler
// runs racing on the same booking collapse on the unique index; the loser
// gets false and moves on.
func (r *Repo) ClaimPayout(ctx context.Context, p *model.PayoutRecord) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO payout_records (id, booking_id, host_account, gross_amount, platform_fee,
			processor_fee, net_amount, currency, status, available_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (booking_id) DO NOTHING
	`, p.ID, p.BookingID, p.HostAccount, p.GrossAmount, p.PlatformFee,
		p.ProcessorFee, p.NetAmount, p.Currency, p.Status, p.AvailableAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListDue returns scheduled payouts past their hold whose backoff window has
// elapsed.
func (r *Repo) ListDue(ctx context.Context, now time.Time, limit int) ([]model.PayoutRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+payoutColumns+` FROM payout_records
		WHERE status = 'scheduled' AND available_at <= $1
			AND (next_attempt IS NULL OR next_attempt <= $1)
		ORDER BY available_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectPayouts(rows)
}

// ListInTransit returns payouts with an outstanding transfer to reconcile.
func (r *Repo) ListInTransit(ctx context.Context, limit int) ([]model.PayoutRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+payoutColumns+` FROM payout_records
		WHERE status = 'in_transit' AND transfer_id IS NOT NULL
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectPayouts(rows)
}

func (r *Repo) GetByBooking(ctx context.Context, bookingID uuid.UUID) (*model.PayoutRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payout_records WHERE booking_id = $1`, bookingID)
	p, err := scanPayout(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPayoutNotFound
	}
	return p, err
}

// UpdateStatus applies from -> to only if the row still holds one of from,
// writing the outbox messages in the same transaction.
func (r *Repo) UpdateStatus(ctx context.Context, id uuid.UUID, from []model.PayoutStatus, to model.PayoutStatus, transferID, lastError string, events ...model.OutboxMessage) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE payout_records
		SET status = $3,
			transfer_id = COALESCE(NULLIF($4, ''), transfer_id),
			last_error = COALESCE(NULLIF($5, ''), last_error),
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
	`, id, statusStrings(from), to, transferID, lastError)
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

// RecordAttempt bumps the attempt counter and sets the next retry time.
func (r *Repo) RecordAttempt(ctx context.Context, id uuid.UUID, nextAttempt time.Time, lastError string) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx, `
		UPDATE payout_records
		SET attempts = attempts + 1, next_attempt = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING attempts
	`, id, nextAttempt, lastError).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrPayoutNotFound
	}
	return attempts, err
}

func collectPayouts(rows pgx.Rows) ([]model.PayoutRecord, error) {
	defer rows.Close()
	var payouts []model.PayoutRecord
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	return payouts, rows.Err()
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
