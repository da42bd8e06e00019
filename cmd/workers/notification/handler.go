package main

import (
	"context"
	"encoding/json"

	"github.com/hearthhq/hearth/internal/kafka"
	"github.com/hearthhq/hearth/internal/notify"
	"github.com/hearthhq/hearth/pkg/types"
	"github.com/rs/zerolog"
)

func notificationHandler(notifier *notify.Client, log *zerolog.Logger) kafka.Handler {
	return func(ctx context.Context, msg *kafka.Message) error {
		log.Info().Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("Processing domain event")

		var event types.DomainEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// A payload that never parses will never parse on retry either.
			log.Error().Err(err).Str("topic", msg.Topic).Msg("Discarding unparseable domain event")
			return nil
		}

		if err := notifier.Deliver(ctx, &event); err != nil {
			log.Error().Err(err).
				Str("event", event.Event).
				Str("booking_id", event.BookingID).
				Msg("Failed to deliver notification")
			return err // Retry through the consumer's backoff
		}

		log.Info().
			Str("event", event.Event).
			Str("booking_id", event.BookingID).
			Str("recipient_role", event.RecipientRole).
			Msg("Notification delivered")
		return nil
	}
}
