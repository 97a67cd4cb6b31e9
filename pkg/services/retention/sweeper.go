// Package retention prunes the execution log on a schedule: records older
// than the retention window are deleted, and every workflow keeps only its
// newest records.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/atomaton/atomaton/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const (
	// DefaultRetentionDays is how long records live regardless of volume.
	DefaultRetentionDays = 3
	// DefaultMaxPerWorkflow caps each workflow's record count.
	DefaultMaxPerWorkflow = 1000

	sweepSchedule = "@every 24h"
)

// Sweeper runs the retention policy. Sweep errors are logged and never fatal:
// a failed pass is retried on the next tick.
type Sweeper struct {
	persist        persistence.Persistence
	logger         *slog.Logger
	cron           *cron.Cron
	retentionDays  int
	maxPerWorkflow int
	now            func() time.Time
}

// NewSweeper creates a sweeper. Non-positive limits fall back to the defaults.
func NewSweeper(persist persistence.Persistence, logger *slog.Logger, retentionDays, maxPerWorkflow int) *Sweeper {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	if maxPerWorkflow <= 0 {
		maxPerWorkflow = DefaultMaxPerWorkflow
	}

	return &Sweeper{
		persist:        persist,
		logger:         logger.With("module", "log_retention"),
		cron:           cron.New(),
		retentionDays:  retentionDays,
		maxPerWorkflow: maxPerWorkflow,
		now:            time.Now,
	}
}

// SetNow overrides the clock. Tests use it to move the cutoff around.
func (s *Sweeper) SetNow(now func() time.Time) {
	s.now = now
}

// Start runs one sweep immediately, then one every 24 hours.
func (s *Sweeper) Start(ctx context.Context) error {
	s.Sweep(ctx)

	_, err := s.cron.AddFunc(sweepSchedule, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Log retention sweeper started",
		"retention_days", s.retentionDays,
		"max_per_workflow", s.maxPerWorkflow)

	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one retention pass: the age cutoff first, then the per-workflow
// cap.
func (s *Sweeper) Sweep(ctx context.Context) {
	logs := s.persist.LogRepository()
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)

	expired, err := logs.DeleteLogsOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete expired log records", "error", err)
	}

	workflows, err := s.persist.WorkflowRepository().Workflows(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list workflows for log trimming", "error", err)

		return
	}

	var trimmed int64

	for _, wf := range workflows {
		n, err := logs.TrimWorkflowLogs(ctx, wf.ID, s.maxPerWorkflow)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to trim workflow logs",
				"workflow_id", wf.ID,
				"error", err)

			continue
		}

		trimmed += n
	}

	s.logger.InfoContext(ctx, "Log retention sweep completed",
		"expired", expired,
		"trimmed", trimmed)
}
