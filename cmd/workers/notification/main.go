package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hearthhq/hearth/internal/config"
	"github.com/hearthhq/hearth/internal/kafka"
	"github.com/hearthhq/hearth/internal/logger"
	"github.com/hearthhq/hearth/internal/notify"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	log.Info().Msg("Starting Notification Worker...")

	notifier := notify.NewClient(cfg.Notifier.BaseURL, cfg.Notifier.Token)

	consumer, err := kafka.NewConsumer(
		kafka.DefaultConfig(cfg.Kafka.Brokers),
		kafka.GroupNotificationWorker,
		kafka.TopicBookingConfirmed,
		kafka.TopicBookingCancelled,
		kafka.TopicPaymentSucceeded,
		kafka.TopicPaymentFailed,
		kafka.TopicPaymentRefunded,
		kafka.TopicPayoutPaid,
		kafka.TopicPayoutFailed,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka consumer")
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx, notificationHandler(notifier, &log)); err != nil {
			log.Error().Err(err).Msg("Notification worker stopped with error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Notification Worker...")
	cancel()

	log.Info().Msg("Notification Worker shutdown complete")
}
