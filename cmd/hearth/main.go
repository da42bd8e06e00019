package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hearthhq/hearth/internal/booking"
	"github.com/hearthhq/hearth/internal/config"
	"github.com/hearthhq/hearth/internal/database"
	"github.com/hearthhq/hearth/internal/logger"
	"github.com/hearthhq/hearth/internal/payout"
	"github.com/hearthhq/hearth/internal/psp"
	"github.com/hearthhq/hearth/internal/redis"
	"github.com/hearthhq/hearth/internal/router"
	"github.com/hearthhq/hearth/internal/server"
	"github.com/hearthhq/hearth/internal/webhook"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()

	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	db, err := database.New(cfg, &log, loggerService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	redisClient, err := redis.New(&log, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}
	defer redisClient.Close()

	srv := server.NewServer(cfg, &log, loggerService, db)

	gateway := psp.NewGatewayClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Timeout)

	bookingRepo := booking.NewRepository(db.Pool)
	payoutRepo := payout.NewRepository(db.Pool)

	bookingService := booking.NewService(bookingRepo, gateway, redisClient, cfg.Policy)
	payoutService := payout.NewService(payoutRepo, gateway, payout.RedisLocker{Client: redisClient}, cfg.Policy)

	ledger := webhook.NewPgLedger(db)
	processor := webhook.NewProcessor(ledger, bookingService, payoutService)

	handlers := &router.Handlers{
		Booking: booking.NewHandler(bookingService),
		Webhook: webhook.NewHandler(cfg.Gateway.WebhookSecret, processor),
	}

	r := router.NewRouter(srv, redisClient, handlers)

	srv.SetupHTTPServer(r)

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
