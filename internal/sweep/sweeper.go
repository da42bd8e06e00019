package sweep

import (
	"context"
	"time"

	"github.com/hearthhq/hearth/internal/booking"
	"github.com/hearthhq/hearth/internal/config"
	"github.com/hearthhq/hearth/internal/middleware"
	"github.com/hearthhq/hearth/internal/webhook"
	"github.com/rs/zerolog"
)

const batchSize = 500

// Sweeper drives the time-based booking edges and retention cleanup on a
// fixed interval. All of its work is idempotent, so overlapping or repeated
// runs are harmless.
type Sweeper struct {
	bookings *booking.Service
	ledger   webhook.Ledger
	policy   config.PolicyConfig
	logger   *zerolog.Logger
}

func New(bookings *booking.Service, ledger webhook.Ledger, policy config.PolicyConfig, logger *zerolog.Logger) *Sweeper {
	return &Sweeper{
		bookings: bookings,
		ledger:   ledger,
		policy:   policy,
		logger:   logger,
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.policy.SweepInterval).Msg("Starting booking sweeper")
	ticker := time.NewTicker(s.policy.SweepInterval)
	defer ticker.Stop()

	// One pass at startup so a restarted sweeper catches up immediately.
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Stopping booking sweeper")
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) {
	ctx = middleware.WithLogger(ctx, s.logger)
	now := time.Now().UTC()

	started, err := s.bookings.StartStays(ctx, now, batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to start stays")
	}

	completed, err := s.bookings.CompleteStays(ctx, now, batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to complete stays")
	}

	purged, err := s.ledger.PurgeBefore(ctx, now.Add(-s.policy.WebhookRetention))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to purge webhook ledger")
	}

	s.logger.Info().
		Int("started", started).
		Int("completed", completed).
		Int64("purged_webhook_events", purged).
		Msg("Sweep pass finished")
}
