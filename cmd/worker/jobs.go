package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pptmaker/pptmaker-api/internal/domain/presentation"
)

type generationRecoverer interface {
	RecoverStuckGenerations(ctx context.Context, startedBefore time.Time) (presentation.RecoveryReport, error)
}

// generationRecoveryJob fails generation runs older than stuckAfter and refunds them.
func generationRecoveryJob(schedule string, stuckAfter time.Duration, r generationRecoverer, now func() time.Time) job {
	return job{
		name:     "generation_recovery",
		schedule: schedule,
		ttl:      4 * time.Minute,
		run: func(ctx context.Context) error {
			report, err := r.RecoverStuckGenerations(ctx, now().Add(-stuckAfter))
			if err != nil {
				return err
			}
			if report.Found > 0 {
				log.Info().
					Int("found", report.Found).
					Int("recovered", report.Recovered).
					Int("failed", report.Failed).
					Msg("Recovered stuck generations")
			}
			return nil
		},
	}
}
