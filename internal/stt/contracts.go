// Package stt describes the remote speech-to-text provider the service delegates recognition to.
package stt

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// Provider is the surface the orchestration layer depends on.
type Provider interface {
	// Upload streams size bytes from r to the provider and returns the content handle.
	Upload(ctx context.Context, r io.Reader, size int64) (string, error)
	Submit(ctx context.Context, req SubmitRequest) (Job, error)
	Get(ctx context.Context, id string) (Transcript, error)
	List(ctx context.Context, limit int) ([]JobSummary, error)
	Delete(ctx context.Context, id string) error
}

// SubmitRequest is the body of POST /transcript.
type SubmitRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageCode      string `json:"language_code,omitempty"`
	LanguageDetection bool   `json:"language_detection,omitempty"`
	Punctuate         bool   `json:"punctuate"`
	FormatText        bool   `json:"format_text"`
	AutoHighlights    bool   `json:"auto_highlights,omitempty"`
	SpeakerLabels     bool   `json:"speaker_labels,omitempty"`
	AutoChapters      bool   `json:"auto_chapters,omitempty"`
	EntityDetection   bool   `json:"entity_detection,omitempty"`
	IABCategories     bool   `json:"iab_categories,omitempty"`
}

// Job is the provider's acknowledgement of a submission.
type Job struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Transcript is the provider's full view of one job.
type Transcript struct {
	ID                   string          `json:"id"`
	Status               string          `json:"status"`
	Percentage           float64         `json:"percentage,omitempty"`
	Text                 *string         `json:"text,omitempty"`
	Error                *string         `json:"error,omitempty"`
	AudioURL             string          `json:"audio_url,omitempty"`
	LanguageCode         *string         `json:"language_code,omitempty"`
	AudioDuration        *float64        `json:"audio_duration,omitempty"`
	Confidence           *float64        `json:"confidence,omitempty"`
	Words                json.RawMessage `json:"words,omitempty"`
	Utterances           json.RawMessage `json:"utterances,omitempty"`
	Chapters             json.RawMessage `json:"chapters,omitempty"`
	AutoHighlightsResult json.RawMessage `json:"auto_highlights_result,omitempty"`
	Entities             json.RawMessage `json:"entities,omitempty"`
	IABCategoriesResult  json.RawMessage `json:"iab_categories_result,omitempty"`
}

// JobSummary is one entry of GET /transcript.
type JobSummary struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Created      string `json:"created"`
	AudioURL     string `json:"audio_url"`
	Language     string `json:"language,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// CreatedAt parses Created; timestamps without a zone are taken as UTC.
func (s JobSummary) CreatedAt() (time.Time, bool) {
	created := strings.TrimSpace(s.Created)
	if created == "" {
		return time.Time{}, false
	}
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, created); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Lang returns the reported language under either key.
func (s JobSummary) Lang() string {
	if s.LanguageCode != "" {
		return s.LanguageCode
	}
	return s.Language
}
