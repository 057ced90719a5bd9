// Package jobs contains the engine's scheduled background jobs.
package jobs

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/fitpulse/challenge-engine/internal/application/command"
)

// LifecycleSweepJob advances challenge statuses along their windows:
// upcoming challenges whose start date passed become active, active
// challenges whose end date passed become completed.
type LifecycleSweepJob struct {
	lifecycle *command.LifecycleHandler
	logger    *slog.Logger
}

// NewLifecycleSweepJob creates a new LifecycleSweepJob.
func NewLifecycleSweepJob(lifecycle *command.LifecycleHandler, logger *slog.Logger) *LifecycleSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleSweepJob{
		lifecycle: lifecycle,
		logger:    logger.With("job", "lifecycle_sweep"),
	}
}

// Name returns the job name.
func (j *LifecycleSweepJob) Name() string { return "lifecycle_sweep" }

// Description returns the job description.
func (j *LifecycleSweepJob) Description() string {
	return "Advances challenge statuses as their windows open and close"
}

// Run executes one sweep.
func (j *LifecycleSweepJob) Run(ctx context.Context) error {
	result, err := j.lifecycle.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle sweep: %w", err)
	}

	if result.Activated > 0 || result.Completed > 0 {
		j.logger.Info("lifecycle sweep moved challenges",
			slog.Int("examined", result.Examined),
			slog.Int("activated", result.Activated),
			slog.Int("completed", result.Completed),
		)
	}

	return nil
}
