/**
 * @description
 * Scheduled job implementations for the treasury-service.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

const reconciliationJobTimeout = 10 * time.Minute

// Sweeper runs one reconciliation pass.
type Sweeper interface {
	RunReconciliationSweep(ctx context.Context) (SweepResult, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	sweeper Sweeper
	logger  *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(sweeper Sweeper, logger *slog.Logger) *Jobs {
	return &Jobs{
		sweeper: sweeper,
		logger:  logger,
	}
}

// RunReconciliation fails overdue records and restores ones whose deadline moved.
func (j *Jobs) RunReconciliation() {
	j.logger.Info("starting payment reconciliation job")
	ctx, cancel := context.WithTimeout(context.Background(), reconciliationJobTimeout)
	defer cancel()

	result, err := j.sweeper.RunReconciliationSweep(ctx)
	if err != nil {
		j.logger.Error("payment reconciliation job failed", "error", err, "evaluated", result.Evaluated)
		return
	}

	j.logger.Info("payment reconciliation job finished",
		"evaluated", result.Evaluated,
		"marked_failed", result.MarkedFailed,
		"recovered", result.Recovered,
		"errors", result.Errors,
	)
}
