package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webhook-delivery-gateway/config"
	pgStorage "webhook-delivery-gateway/internal/adapter/storage/postgres"
	"webhook-delivery-gateway/internal/service"
	"webhook-delivery-gateway/pkg/logger"
)

// The sweeper is a standalone worker that resubmits deliveries scheduled for
// retry. Multiple instances may run concurrently; the engine's claim step
// guarantees each due delivery is attempted by exactly one of them.
func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Dur("interval", cfg.Webhook.SweepInterval).
		Int("batch_limit", cfg.Webhook.SweepBatchLimit).
		Msg("Starting retry sweeper")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	regRepo := pgStorage.NewRegistrationRepo(pool)
	deliveryRepo := pgStorage.NewDeliveryRepo(pool)

	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()

	deliverySvc := service.NewDeliveryService(
		deliveryRepo,
		regRepo,
		encSvc,
		sigSvc,
		&http.Client{Timeout: cfg.Webhook.RequestTimeout},
		log,
	)
	sweeper := service.NewSweeperService(deliveryRepo, regRepo, deliverySvc, log)

	ticker := time.NewTicker(cfg.Webhook.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Sweeper exiting")
			return
		case <-ticker.C:
			n, err := sweeper.Sweep(ctx, cfg.Webhook.SweepBatchLimit)
			if err != nil {
				log.Error().Err(err).Msg("Sweep pass failed")
				continue
			}
			if n > 0 {
				log.Info().Int("retried", n).Msg("Sweep pass complete")
			}
		}
	}
}
