package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hearthhq/hearth/internal/booking"
	"github.com/hearthhq/hearth/internal/config"
	"github.com/hearthhq/hearth/internal/database"
	"github.com/hearthhq/hearth/internal/logger"
	"github.com/hearthhq/hearth/internal/middleware"
	"github.com/hearthhq/hearth/internal/payout"
	"github.com/hearthhq/hearth/internal/psp"
	"github.com/hearthhq/hearth/internal/redis"
	"github.com/hearthhq/hearth/internal/sweep"
	"github.com/hearthhq/hearth/internal/webhook"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	log.Info().Msg("Starting Payout Scheduler...")

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

	gateway := psp.NewGatewayClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Timeout)

	bookingRepo := booking.NewRepository(db.Pool)
	payoutRepo := payout.NewRepository(db.Pool)

	bookingService := booking.NewService(bookingRepo, gateway, redisClient, cfg.Policy)
	payoutService := payout.NewService(payoutRepo, gateway, payout.RedisLocker{Client: redisClient}, cfg.Policy)

	ledger := webhook.NewPgLedger(db)
	sweeper := sweep.New(bookingService, ledger, cfg.Policy, &log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger := make(chan struct{}, 1)

	go func() {
		if err := sweeper.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Sweeper stopped with error")
		}
	}()

	go runPayoutLoop(ctx, payoutService, cfg.Policy.PayoutInterval, trigger, &log)

	// A small admin endpoint so operators can kick a payout run without
	// waiting for the next tick.
	adminServer := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/run" {
				http.NotFound(w, r)
				return
			}
			select {
			case trigger <- struct{}{}:
				w.WriteHeader(http.StatusAccepted)
				w.Write([]byte("payout run triggered"))
			default:
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte("payout run already pending"))
			}
		}),
	}
	go func() {
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Admin server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Payout Scheduler...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	adminServer.Shutdown(shutdownCtx)

	log.Info().Msg("Payout Scheduler shutdown complete")
}

func runPayoutLoop(ctx context.Context, svc *payout.Service, interval time.Duration, trigger <-chan struct{}, log *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, svc, log)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, svc, log)
		case <-trigger:
			log.Info().Msg("Payout run triggered on demand")
			runOnce(ctx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *payout.Service, log *zerolog.Logger) {
	ctx = middleware.WithLogger(ctx, log)

	claimed, err := svc.Schedule(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Payout scheduling failed")
	}

	sent, err := svc.Dispatch(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Payout dispatch failed")
	}

	resolved, err := svc.Reconcile(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Payout reconciliation failed")
	}

	log.Info().
		Int("claimed", claimed).
		Int("dispatched", sent).
		Int("reconciled", resolved).
		Msg("Payout run finished")
}
