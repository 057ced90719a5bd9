package jobs

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// OutboxCleanupJob deletes dispatched outbox entries past the retention
// window. Pending entries are never touched.
type OutboxCleanupJob struct {
	outbox    shared.Outbox
	clock     timeutil.Clock
	retention time.Duration
	logger    *slog.Logger
}

// NewOutboxCleanupJob creates a new OutboxCleanupJob. A non-positive
// retention defaults to 24 hours.
func NewOutboxCleanupJob(
	outbox shared.Outbox,
	clock timeutil.Clock,
	retention time.Duration,
	logger *slog.Logger,
) *OutboxCleanupJob {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxCleanupJob{
		outbox:    outbox,
		clock:     clock,
		retention: retention,
		logger:    logger.With("job", "outbox_cleanup"),
	}
}

// Name returns the job name.
func (j *OutboxCleanupJob) Name() string { return "outbox_cleanup" }

// Description returns the job description.
func (j *OutboxCleanupJob) Description() string {
	return "Deletes dispatched outbox entries past the retention window"
}

// Run deletes expired entries.
func (j *OutboxCleanupJob) Run(ctx context.Context) error {
	cutoff := j.clock.Now().Add(-j.retention)

	deleted, err := j.outbox.DeleteDispatched(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("outbox cleanup: %w", err)
	}

	if deleted > 0 {
		j.logger.Info("outbox entries deleted",
			slog.Int("count", deleted),
			slog.Time("older_than", cutoff),
		)
	}

	return nil
}
