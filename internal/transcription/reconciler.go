package transcription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/entity"
	"github.com/joseph-ayodele/transcripts-tracker/internal/metrics"
	"github.com/joseph-ayodele/transcripts-tracker/internal/repository"
	"github.com/joseph-ayodele/transcripts-tracker/internal/stt"
)

// ReconcileStats summarises one reconciliation pass.
type ReconcileStats struct {
	Listed    int `json:"listed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type ReconcileConfig struct {
	PageSize    int
	Concurrency int
}

// Reconciler brings local job records in line with the provider's job list.
type Reconciler struct {
	provider stt.Provider
	poller   *Poller
	repo     repository.TranscriptRepository
	cfg      ReconcileConfig
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewReconciler(provider stt.Provider, poller *Poller, repo repository.TranscriptRepository, cfg ReconcileConfig,
	clock clockwork.Clock, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reconciler{provider: provider, poller: poller, repo: repo, cfg: cfg, clock: clock, metrics: m, logger: logger}
}

// Reconcile lists the provider's jobs, fetches each one's status and upserts it for owner.
// Unknown jobs are created for owner. A non-nil error is a ReconciliationWarning: stats
// still describe what was applied.
func (r *Reconciler) Reconcile(ctx context.Context, owner string) (ReconcileStats, error) {
	var stats ReconcileStats

	jobs, err := r.provider.List(ctx, r.cfg.PageSize)
	if err != nil {
		r.logger.Warn("transcribe.reconcile.list_failed", "owner", owner, "error", err)
		r.metrics.RecordReconcile("error", nil)
		return stats, common.NewReconciliationWarning("could not list provider jobs", err)
	}
	stats.Listed = len(jobs)

	snaps := make([]Snapshot, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			snaps[i] = r.poller.Poll(gctx, job.ID)
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	for i, job := range jobs {
		snap := snaps[i]
		if !snap.Observed() {
			stats.Skipped++
			r.logger.Warn("transcribe.reconcile.skipped", "job_id", job.ID, "error", snap.Failure)
			if firstErr == nil {
				firstErr = snap.Failure
			}
			continue
		}

		now := r.clock.Now()
		created, ok := job.CreatedAt()
		if !ok {
			created = now
		}
		language := job.Lang()
		if language == "" {
			language = snap.LanguageCode
		}
		seed := entity.NewQueuedTranscript(job.ID, owner, job.AudioURL, language, created)

		outcome, err := r.repo.Upsert(ctx, seed, snap.Observation(now))
		if err != nil {
			stats.Failed++
			r.logger.Error("transcribe.reconcile.upsert_failed", "job_id", job.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		switch outcome {
		case repository.UpsertCreated:
			stats.Created++
		case repository.UpsertUpdated:
			stats.Updated++
		default:
			stats.Unchanged++
		}
	}

	outcomes := map[string]int{
		"created":   stats.Created,
		"updated":   stats.Updated,
		"unchanged": stats.Unchanged,
		"skipped":   stats.Skipped,
		"failed":    stats.Failed,
	}
	r.logger.Info("transcribe.reconcile.done", "owner", owner, "listed", stats.Listed,
		"created", stats.Created, "updated", stats.Updated, "skipped", stats.Skipped, "failed", stats.Failed)

	if stats.Skipped > 0 || stats.Failed > 0 {
		r.metrics.RecordReconcile("warning", outcomes)
		return stats, common.NewReconciliationWarning(
			fmt.Sprintf("%d of %d jobs could not be reconciled", stats.Skipped+stats.Failed, stats.Listed), firstErr)
	}
	r.metrics.RecordReconcile("ok", outcomes)
	return stats, nil
}
