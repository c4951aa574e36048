package transcription

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/joseph-ayodele/transcripts-tracker/constants"
	"github.com/joseph-ayodele/transcripts-tracker/internal/metrics"
	"github.com/joseph-ayodele/transcripts-tracker/internal/stt"
)

type ReaperConfig struct {
	StuckAfter time.Duration
	PageSize   int
}

// Reaper deletes provider jobs that have been processing for too long.
type Reaper struct {
	provider stt.Provider
	cfg      ReaperConfig
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewReaper(provider stt.Provider, cfg ReaperConfig, clock clockwork.Clock, m *metrics.Metrics, logger *slog.Logger) *Reaper {
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 10 * time.Minute
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reaper{provider: provider, cfg: cfg, clock: clock, metrics: m, logger: logger}
}

// ReapStuck deletes stuck jobs and returns how many were deleted.
// Failures are logged and never returned.
func (r *Reaper) ReapStuck(ctx context.Context) int {
	jobs, err := r.provider.List(ctx, r.cfg.PageSize)
	if err != nil {
		r.logger.Warn("transcribe.reap.list_failed", "error", err)
		r.metrics.RecordReaped(0, 1)
		return 0
	}

	cutoff := r.clock.Now().Add(-r.cfg.StuckAfter)
	deleted, failed := 0, 0
	for _, job := range jobs {
		if constants.JobStatus(job.Status) != constants.JobStatusProcessing {
			continue
		}
		created, ok := job.CreatedAt()
		if !ok {
			r.logger.Warn("transcribe.reap.bad_created", "job_id", job.ID, "created", job.Created)
			continue
		}
		if !created.Before(cutoff) {
			continue
		}

		if err := r.provider.Delete(ctx, job.ID); err != nil {
			failed++
			r.logger.Warn("transcribe.reap.delete_failed", "job_id", job.ID, "error", err)
			continue
		}
		deleted++
		r.logger.Info("transcribe.reap.deleted", "job_id", job.ID, "age", r.clock.Now().Sub(created).String())
	}

	r.metrics.RecordReaped(deleted, failed)
	if deleted > 0 || failed > 0 {
		r.logger.Info("transcribe.reap.done", "deleted", deleted, "failed", failed, "listed", len(jobs))
	}
	return deleted
}
