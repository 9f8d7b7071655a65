package main

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/pptmaker/pptmaker-api/internal/pkg/lock"
	"github.com/pptmaker/pptmaker-api/internal/pkg/metrics"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
	statusSkipped = "skipped"
)

// job is a scheduled task. ttl bounds how long its lock is held.
type job struct {
	name     string
	schedule string
	ttl      time.Duration
	run      func(ctx context.Context) error
}

type scheduler struct {
	cron   *cron.Cron
	locker *lock.Locker
}

func newScheduler(locker *lock.Locker) *scheduler {
	return &scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		locker: locker,
	}
}

func (s *scheduler) add(ctx context.Context, j job) error {
	_, err := s.cron.AddFunc(j.schedule, func() { s.runOnce(ctx, j) })
	return err
}

// runOnce executes j under its distributed lock and records the outcome.
// A run that finds the lock held elsewhere is skipped, not failed.
func (s *scheduler) runOnce(ctx context.Context, j job) string {
	start := time.Now()
	err := s.locker.WithLock(ctx, j.name, j.ttl, j.run)

	status := statusSuccess
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		status = statusSkipped
		log.Debug().Str("job", j.name).Msg("Job running on another instance, skipping")
	case err != nil:
		status = statusFailed
		log.Error().Err(err).Str("job", j.name).Msg("Job failed")
	default:
		metrics.JobDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())
	}
	metrics.JobRunsTotal.WithLabelValues(j.name, status).Inc()
	return status
}
