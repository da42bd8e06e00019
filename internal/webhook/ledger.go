package webhook

import (
	"context"
	"time"

	"github.com/hearthhq/hearth/internal/database"
	"github.com/pkg/errors"
)

// Outcomes recorded in the dedup ledger. A row stuck at OutcomeProcessing
// means a previous attempt crashed mid-flight and the event may be retried.
const (
	OutcomeProcessing = "processing"
	OutcomeProcessed  = "processed"
	OutcomeIgnored    = "ignored"
	OutcomeError      = "error"
)

// Ledger records which webhook event IDs have been handled so redeliveries
// become no-ops.
type Ledger interface {
	// Begin claims an event for processing. It returns false when the event
	// already reached a terminal outcome and must be skipped.
	Begin(ctx context.Context, eventID, eventType string) (bool, error)
	// Complete records the terminal outcome for a claimed event.
	Complete(ctx context.Context, eventID, outcome string) error
	// PurgeBefore deletes ledger rows older than the cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PgLedger struct {
	db *database.Database
}

func NewPgLedger(db *database.Database) *PgLedger {
	return &PgLedger{db: db}
}

func (l *PgLedger) Begin(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := l.db.Pool.Exec(ctx, `
		INSERT INTO processed_webhook_events (event_id, event_type, outcome)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, OutcomeProcessing)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim webhook event")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Row exists. A 'processing' row belongs to an attempt that never
	// finished, so the redelivery may take over. Terminal rows are duplicates.
	var outcome string
	err = l.db.Pool.QueryRow(ctx, `
		SELECT outcome FROM processed_webhook_events WHERE event_id = $1
	`, eventID).Scan(&outcome)
	if err != nil {
		return false, errors.Wrap(err, "failed to read webhook event outcome")
	}

	return outcome == OutcomeProcessing, nil
}

func (l *PgLedger) Complete(ctx context.Context, eventID, outcome string) error {
	_, err := l.db.Pool.Exec(ctx, `
		UPDATE processed_webhook_events
		SET outcome = $2, updated_at = NOW()
		WHERE event_id = $1
	`, eventID, outcome)
	if err != nil {
		return errors.Wrap(err, "failed to record webhook event outcome")
	}
	return nil
}

func (l *PgLedger) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := l.db.Pool.Exec(ctx, `
		DELETE FROM processed_webhook_events WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge webhook events")
	}
	return tag.RowsAffected(), nil
}
