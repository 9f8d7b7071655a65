package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pptmaker/pptmaker-api/internal/config"
	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/domain/presentation"
	"github.com/pptmaker/pptmaker-api/internal/domain/realtime"
	"github.com/pptmaker/pptmaker-api/internal/domain/subscription"
	"github.com/pptmaker/pptmaker-api/internal/pkg/database"
	"github.com/pptmaker/pptmaker-api/internal/pkg/lock"
	"github.com/pptmaker/pptmaker-api/internal/pkg/logger"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, Service: "worker"}); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger")
	}

	log.Info().Msg("Starting worker")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	// Expiry changes balances; the hub publishes to API instances over Redis.
	hub := realtime.NewHub(rdb)
	go hub.Run()
	defer hub.Shutdown()

	creditService := credit.NewService(db)
	creditService.SetNotifier(hub)
	subscriptionService := subscription.NewService(subscription.NewRepository(db), creditService)
	presentationService := presentation.NewService(presentation.Deps{
		Repo:    presentation.NewRepository(db),
		Credits: creditService,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newScheduler(lock.New(rdb))
	jobs := []job{
		{
			name:     "credit_batch_expiry",
			schedule: cfg.BatchExpirySchedule,
			ttl:      9 * time.Minute,
			run: func(ctx context.Context) error {
				report, err := creditService.ExpireBatches(ctx, time.Now())
				if err != nil {
					return err
				}
				log.Info().
					Int("users", report.Users).
					Int("batches", report.Batches).
					Int("credits", report.Credits).
					Int("failed", report.Failed).
					Msg("Expired credit batches")
				return nil
			},
		},
		{
			name:     "subscription_expiry",
			schedule: cfg.SubscriptionExpirySchedule,
			ttl:      30 * time.Minute,
			run: func(ctx context.Context) error {
				n, err := subscriptionService.ExpireOldSubscriptions(ctx)
				if err != nil {
					return err
				}
				log.Info().Int("count", n).Msg("Expired subscriptions")
				return nil
			},
		},
		generationRecoveryJob(cfg.GenerationRecoverySchedule, cfg.GenerationStuckAfter, presentationService, time.Now),
	}
	for _, j := range jobs {
		if err := s.add(ctx, j); err != nil {
			log.Fatal().Err(err).Str("job", j.name).Str("schedule", j.schedule).Msg("Invalid job schedule")
		}
	}

	s.cron.Start()
	log.Info().Int("jobs", len(jobs)).Msg("Worker scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
	log.Info().Msg("Shutdown signal received")

	cancel()
	<-s.cron.Stop().Done()
	log.Info().Msg("Worker stopped")
}
