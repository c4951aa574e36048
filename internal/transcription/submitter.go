package transcription

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/transcripts-tracker/constants"
	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/metrics"
	"github.com/joseph-ayodele/transcripts-tracker/internal/stt"
)

// Submitter creates provider jobs for uploaded content.
type Submitter struct {
	provider stt.Provider
	reaper   *Reaper
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewSubmitter builds a submitter. reaper may be nil.
func NewSubmitter(provider stt.Provider, reaper *Reaper, m *metrics.Metrics, logger *slog.Logger) *Submitter {
	return &Submitter{provider: provider, reaper: reaper, metrics: m, logger: logger}
}

// ResolveLanguage applies the language policy. It returns the code to request and
// whether the provider should detect the language instead.
// Unsupported codes fall back to the default language.
func ResolveLanguage(code string, autoDetect bool, logger *slog.Logger) (string, bool) {
	if autoDetect || strings.TrimSpace(code) == "" {
		return "", true
	}
	if canonical, ok := constants.CanonicalLanguage(code); ok {
		return canonical, false
	}
	if logger != nil {
		logger.Warn("transcribe.submit.unsupported_language",
			"language_code", code, "fallback", constants.DefaultLanguage)
	}
	return constants.DefaultLanguage, false
}

// BuildRequest assembles the job request for handle. The full feature set is only
// requested for detected or English audio.
func BuildRequest(handle, language string, detect bool) stt.SubmitRequest {
	req := stt.SubmitRequest{
		AudioURL:   handle,
		Punctuate:  true,
		FormatText: true,
	}
	if detect {
		req.LanguageDetection = true
	} else {
		req.LanguageCode = language
	}
	if detect || language == constants.DefaultLanguage {
		req.AutoHighlights = true
		req.SpeakerLabels = true
		req.AutoChapters = true
		req.EntityDetection = true
		req.IABCategories = true
	}
	return req
}

// StoredLanguage is the language recorded on the local job.
func StoredLanguage(language string, detect bool) string {
	if detect {
		return constants.LanguageAuto
	}
	return language
}

// Submit creates a job for handle and returns its id. Stuck jobs are reaped first, best effort.
func (s *Submitter) Submit(ctx context.Context, handle, languageCode string, autoDetect bool) (string, error) {
	language, detect := ResolveLanguage(languageCode, autoDetect, s.logger)
	mode := "explicit"
	if detect {
		mode = "detect"
	}

	if s.reaper != nil {
		s.reaper.ReapStuck(ctx)
	}

	req := BuildRequest(handle, language, detect)
	s.logger.Info("transcribe.submit.start", "language_code", language, "language_detection", detect)

	job, err := s.provider.Submit(ctx, req)
	if err != nil {
		s.metrics.RecordSubmission(mode, "error")
		s.logger.Error("transcribe.submit.failed", "error", err)
		if errors.Is(err, stt.ErrMissingJobID) {
			return "", common.NewSubmissionError("Transcription request failed: missing job id", err)
		}
		return "", common.NewSubmissionError("Transcription request failed: "+providerDetail(err), err)
	}

	s.metrics.RecordSubmission(mode, "ok")
	s.logger.Info("transcribe.submit.done", "job_id", job.ID, "status", job.Status)
	return job.ID, nil
}
