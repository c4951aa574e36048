// Package transcription orchestrates transcription jobs: validation, upload, submission,
// status polling, stuck-job cleanup and reconciliation with the provider.
package transcription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/joseph-ayodele/transcripts-tracker/constants"
	"github.com/joseph-ayodele/transcripts-tracker/internal/async"
	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/entity"
	"github.com/joseph-ayodele/transcripts-tracker/internal/export"
	"github.com/joseph-ayodele/transcripts-tracker/internal/media"
	"github.com/joseph-ayodele/transcripts-tracker/internal/metrics"
	"github.com/joseph-ayodele/transcripts-tracker/internal/repository"
	"github.com/joseph-ayodele/transcripts-tracker/internal/stt"
)

// UploadAccepted is the message returned once a job has been submitted.
const UploadAccepted = "File uploaded and transcription started"

// Service handles transcription business logic.
type Service struct {
	validator  *media.Validator
	uploader   *Uploader
	submitter  *Submitter
	poller     *Poller
	reaper     *Reaper
	reconciler *Reconciler
	exporter   *export.Service
	repo       repository.TranscriptRepository
	queue      async.Queue
	tempDir    string
	clock      clockwork.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewService wires every component from cfg. clock and m may be nil.
func NewService(cfg *common.Config, provider stt.Provider, repo repository.TranscriptRepository,
	clock clockwork.Clock, m *metrics.Metrics, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	reaper := NewReaper(provider, ReaperConfig{
		StuckAfter: cfg.Reaper.StuckAfter,
		PageSize:   cfg.Reaper.PageSize,
	}, clock, m, logger)
	poller := NewPoller(provider, PollerConfig{
		Interval:   cfg.Polling.Interval,
		MaxRetries: cfg.Polling.MaxRetries,
		MaxWait:    cfg.Polling.MaxWait,
	}, clock, m, logger)

	return &Service{
		validator: media.NewValidator(cfg.Upload.MaxFileSize, cfg.Upload.AllowedFormatsMap(), logger).WithMetrics(m),
		uploader:  NewUploader(provider, m, logger),
		submitter: NewSubmitter(provider, reaper, m, logger),
		poller:    poller,
		reaper:    reaper,
		reconciler: NewReconciler(provider, poller, repo, ReconcileConfig{
			PageSize:    cfg.Reconcile.PageSize,
			Concurrency: cfg.Reconcile.Concurrency,
		}, clock, m, logger),
		exporter: export.NewService(repo, logger),
		repo:     repo,
		tempDir:  cfg.Upload.TempDir,
		clock:    clock,
		metrics:  m,
		logger:   logger,
	}
}

// WithQueue makes every accepted job get followed in the background by q.
func (s *Service) WithQueue(q async.Queue) *Service {
	s.queue = q
	return s
}

// TranscribeRequest is an upload as received from a caller.
type TranscribeRequest struct {
	Owner        string
	File         media.Candidate
	LanguageCode string
	AutoDetect   bool
}

// TranscribeResult acknowledges an accepted upload.
type TranscribeResult struct {
	Message      string              `json:"message"`
	TranscriptID string              `json:"transcript_id"`
	Status       constants.JobStatus `json:"status"`
}

// Validate checks a candidate file without touching the network.
func (s *Service) Validate(c media.Candidate) error {
	return s.validator.Validate(c)
}

// Upload spills a validated candidate to a temp file and forwards it to the provider.
// The temp file never outlives the call.
func (s *Service) Upload(ctx context.Context, c media.Candidate) (string, error) {
	ext, _ := s.validator.ResolveExt(c)
	path, err := SpillToTemp(s.tempDir, ext, c.Reader)
	if err != nil {
		s.logger.Error("transcribe.upload.spill_failed", "filename", c.Filename, "error", err)
		return "", common.NewUploadError("Upload failed: could not stage file", err)
	}
	return s.uploader.Upload(ctx, path)
}

// Submit creates the provider job for handle and records it as queued for owner.
func (s *Service) Submit(ctx context.Context, owner, handle, languageCode string, autoDetect bool) (*TranscribeResult, error) {
	jobID, err := s.submitter.Submit(ctx, handle, languageCode, autoDetect)
	if err != nil {
		return nil, err
	}

	language, detect := ResolveLanguage(languageCode, autoDetect, nil)
	t := entity.NewQueuedTranscript(jobID, owner, handle, StoredLanguage(language, detect), s.clock.Now())
	if err := s.repo.Create(ctx, t); err != nil {
		s.logger.Error("transcribe.submit.persist_failed", "job_id", jobID, "owner", owner, "error", err)
		return nil, err
	}

	s.logger.Info("transcribe.submit.recorded", "job_id", jobID, "owner", owner)
	if s.queue != nil {
		job := async.Job{
			TranscriptID: jobID,
			Owner:        owner,
			SubmittedAt:  t.CreatedAt,
			TraceID:      common.RequestIDFromContext(ctx),
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.logger.Warn("transcribe.submit.track_skipped", "job_id", jobID, "error", err)
		}
	}
	return &TranscribeResult{
		Message:      UploadAccepted,
		TranscriptID: jobID,
		Status:       constants.JobStatusQueued,
	}, nil
}

// Transcribe runs the whole intake: validate, upload, submit, record.
func (s *Service) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	if err := s.Validate(req.File); err != nil {
		return nil, err
	}
	handle, err := s.Upload(ctx, req.File)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, req.Owner, handle, req.LanguageCode, req.AutoDetect)
}

// RetrieveOptions controls whether Retrieve waits for a terminal state.
type RetrieveOptions struct {
	Wait    bool
	MaxWait time.Duration
}

// Retrieve returns the current snapshot of one of owner's jobs and folds it into the store.
// Jobs that are unknown locally or belong to someone else are reported as not found.
func (s *Service) Retrieve(ctx context.Context, owner, id string, opts RetrieveOptions) (Snapshot, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if t.Owner != owner {
		s.logger.Warn("transcribe.retrieve.foreign_job", "job_id", id, "owner", owner)
		return Snapshot{}, common.NewNotFoundError("transcript not found")
	}

	var snap Snapshot
	if opts.Wait {
		snap = s.poller.AwaitTerminal(ctx, id, opts.MaxWait)
	} else {
		snap = s.poller.Poll(ctx, id)
	}

	s.record(ctx, id, snap)
	return snap, nil
}

// Track follows a stored job until it finishes, recording every observed change.
// It returns an error when the job is still unfinished at the end of the wait.
func (s *Service) Track(ctx context.Context, id string) error {
	snap := s.poller.Watch(ctx, id, 0, func(change Snapshot) {
		s.record(ctx, id, change)
	})
	switch {
	case snap.Failure != nil:
		return common.WrapError(snap.Failure, "track "+id)
	case snap.TimedOut:
		return errors.New(snap.Message)
	}
	return nil
}

// record folds a provider observation into the store; failures are logged only.
func (s *Service) record(ctx context.Context, id string, snap Snapshot) {
	if !snap.Observed() {
		return
	}
	if _, _, err := s.repo.ApplySnapshot(ctx, id, snap.Observation(s.clock.Now())); err != nil {
		s.logger.Error("transcribe.store_failed", "job_id", id, "status", snap.Status, "error", err)
	}
}

// Reconcile syncs owner's records with the provider. The error, if any, is a warning.
func (s *Service) Reconcile(ctx context.Context, owner string) (ReconcileStats, error) {
	return s.reconciler.Reconcile(ctx, owner)
}

// List reconciles first, then returns a grouped page of owner's jobs.
// A failed reconciliation is logged and the stored data is served as is.
func (s *Service) List(ctx context.Context, owner string, page, pageSize int) (*repository.GroupedPage, error) {
	if _, err := s.Reconcile(ctx, owner); err != nil {
		if !errors.Is(err, common.ErrReconciliation) {
			return nil, err
		}
		s.logger.Warn("transcribe.list.stale", "owner", owner, "error", err)
	}
	return s.repo.ListGrouped(ctx, owner, page, pageSize)
}

// Export renders owner's transcripts as an XLSX workbook.
func (s *Service) Export(ctx context.Context, owner string) ([]byte, error) {
	b, err := s.exporter.ExportTranscriptsXLSX(ctx, owner)
	if err != nil {
		s.logger.Error("transcribe.export.failed", "owner", owner, "error", err)
		return nil, common.NewAppError("EXPORT_ERROR", "export failed", common.WrapError(err, "export"))
	}
	return b, nil
}

// Reap removes stuck provider jobs and returns how many were deleted.
func (s *Service) Reap(ctx context.Context) int {
	return s.reaper.ReapStuck(ctx)
}

// AllowedFormats lists the accepted file extensions.
func (s *Service) AllowedFormats() []string {
	return s.validator.AllowedExts()
}
