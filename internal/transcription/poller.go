package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/joseph-ayodele/transcripts-tracker/constants"
	"github.com/joseph-ayodele/transcripts-tracker/internal/entity"
	"github.com/joseph-ayodele/transcripts-tracker/internal/metrics"
	"github.com/joseph-ayodele/transcripts-tracker/internal/stt"
)

// TimedOutError is the error text of a snapshot whose wait budget ran out.
const TimedOutError = "Transcription timed out"

// Snapshot is one observation of a job as reported to callers.
type Snapshot struct {
	ID            string              `json:"id"`
	Status        constants.JobStatus `json:"status"`
	Progress      float64             `json:"progress"`
	Text          string              `json:"text,omitempty"`
	Error         string              `json:"error,omitempty"`
	Message       string              `json:"message"`
	LanguageCode  string              `json:"language_code,omitempty"`
	AudioDuration *float64            `json:"audio_duration,omitempty"`
	Confidence    *float64            `json:"confidence,omitempty"`
	Words         json.RawMessage     `json:"words,omitempty"`
	Utterances    json.RawMessage     `json:"utterances,omitempty"`
	Chapters      json.RawMessage     `json:"chapters,omitempty"`
	Highlights    json.RawMessage     `json:"highlights,omitempty"`
	Entities      json.RawMessage     `json:"entities,omitempty"`
	Categories    json.RawMessage     `json:"categories,omitempty"`

	// Failure is set when the provider could not be reached; the status is then not the provider's.
	Failure error `json:"-"`
	// TimedOut is set when a wait ran out before the job finished.
	TimedOut bool `json:"-"`
}

// Observed reports whether the snapshot reflects the provider's view of the job.
func (s Snapshot) Observed() bool {
	return s.Failure == nil && !s.TimedOut
}

// Observation converts the snapshot for the job store.
func (s Snapshot) Observation(at time.Time) entity.Observation {
	return entity.Observation{Status: s.Status, Text: s.Text, Error: s.Error, At: at}
}

// Observer is notified of every status or progress change during a wait.
type Observer func(Snapshot)

type PollerConfig struct {
	Interval   time.Duration
	MaxRetries int
	MaxWait    time.Duration
}

// Poller reads job status from the provider.
type Poller struct {
	provider stt.Provider
	cfg      PollerConfig
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewPoller(provider stt.Provider, cfg PollerConfig, clock clockwork.Clock, m *metrics.Metrics, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 1500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 600
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Duration(cfg.MaxRetries) * cfg.Interval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{provider: provider, cfg: cfg, clock: clock, metrics: m, logger: logger}
}

// Poll performs a single status request. Transport failures come back as an error
// snapshot with Failure set.
func (p *Poller) Poll(ctx context.Context, id string) Snapshot {
	t, err := p.provider.Get(ctx, id)
	if err != nil {
		p.metrics.RecordPoll("unreachable")
		p.logger.Error("transcribe.poll.failed", "job_id", id, "error", err)
		return Snapshot{
			ID:      id,
			Status:  constants.JobStatusError,
			Error:   err.Error(),
			Message: "Error checking transcription status: " + err.Error(),
			Failure: err,
		}
	}

	snap := snapshotFromTranscript(id, t)
	switch {
	case snap.Status == constants.JobStatusCompleted && snap.Text == "":
		p.logger.Warn("transcribe.poll.empty_text", "job_id", id)
	case !constants.JobStatus(t.Status).Valid():
		p.logger.Warn("transcribe.poll.unknown_status", "job_id", id, "status", t.Status)
	}
	p.metrics.RecordPoll(string(snap.Status))
	return snap
}

func snapshotFromTranscript(id string, t stt.Transcript) Snapshot {
	status := constants.JobStatus(t.Status)
	if !status.Valid() {
		status = constants.JobStatusProcessing
	}

	snap := Snapshot{
		ID:            id,
		Status:        status,
		Progress:      t.Percentage,
		AudioDuration: t.AudioDuration,
		Confidence:    t.Confidence,
		Words:         t.Words,
		Utterances:    t.Utterances,
		Chapters:      t.Chapters,
		Highlights:    t.AutoHighlightsResult,
		Entities:      t.Entities,
		Categories:    t.IABCategoriesResult,
	}
	if t.LanguageCode != nil {
		snap.LanguageCode = *t.LanguageCode
	}

	switch status {
	case constants.JobStatusQueued:
		snap.Message = "Your audio is queued for processing"
	case constants.JobStatusProcessing:
		snap.Message = fmt.Sprintf("Processing your audio: %d%% complete", int(t.Percentage))
	case constants.JobStatusCompleted:
		snap.Progress = 100
		if t.Text != nil && *t.Text != "" {
			snap.Text = *t.Text
			snap.Message = "Transcription completed successfully"
		} else {
			snap.Message = "Warning: Transcription completed but no text was generated"
		}
	case constants.JobStatusError:
		if t.Error != nil {
			snap.Error = *t.Error
		}
		snap.Message = "Error during transcription: " + snap.Error
	}
	return snap
}

// AwaitTerminal polls until the job completes or fails, the budget runs out, or ctx ends.
// maxWait is capped by the configured maximum; zero means the maximum.
func (p *Poller) AwaitTerminal(ctx context.Context, id string, maxWait time.Duration) Snapshot {
	return p.Watch(ctx, id, maxWait, nil)
}

// Watch is AwaitTerminal with an optional observer for status and progress changes.
func (p *Poller) Watch(ctx context.Context, id string, maxWait time.Duration, onChange Observer) Snapshot {
	budget := p.cfg.MaxWait
	if maxWait > 0 && maxWait < budget {
		budget = maxWait
	}
	start := p.clock.Now()
	deadline := start.Add(budget)
	defer func() { p.metrics.RecordAwait(p.clock.Now().Sub(start)) }()

	var last Snapshot
	seen := false
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		remaining := deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			break
		}

		// A single status request may not outlive the wait budget.
		pctx, cancel := context.WithTimeout(ctx, remaining)
		snap := p.Poll(pctx, id)
		expired := pctx.Err() != nil
		cancel()
		if snap.Failure != nil {
			if expired {
				break
			}
			return snap
		}

		if !seen || snap.Status != last.Status || snap.Progress != last.Progress {
			p.logger.Info("transcribe.poll.change", "job_id", id, "status", snap.Status,
				"progress", snap.Progress, "attempt", attempt+1)
			if onChange != nil {
				onChange(snap)
			}
		}
		last, seen = snap, true

		if snap.Status.IsTerminal() {
			return snap
		}

		remaining = deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			break
		}
		wait := p.cfg.Interval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
		case <-p.clock.After(wait):
		}
	}

	p.logger.Warn("transcribe.poll.timeout", "job_id", id, "budget", budget.String(), "progress", last.Progress)
	return Snapshot{
		ID:       id,
		Status:   constants.JobStatusError,
		Progress: last.Progress,
		Error:    TimedOutError,
		Message:  fmt.Sprintf("Transcription timed out after %s", budget),
		TimedOut: true,
	}
}
