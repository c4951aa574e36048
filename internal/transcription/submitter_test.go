package transcription

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/stt"
)

func TestResolveLanguage(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		autoDetect bool
		want       string
		detect     bool
	}{
		{"no code detects", "", false, "", true},
		{"auto detect wins over code", "fr", true, "", true},
		{"plain code", "fr", false, "fr", false},
		{"region suffix stripped", "EN_us", false, "en", false},
		{"dash suffix stripped", "pt-BR", false, "pt", false},
		{"full code synonym", "zh_TW", false, "zh", false},
		{"unsupported falls back", "xx", false, "en", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, detect := ResolveLanguage(tt.code, tt.autoDetect, discardLogger())
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.detect, detect)
		})
	}
}

func TestBuildRequest(t *testing.T) {
	detect := BuildRequest("h", "", true)
	assert.True(t, detect.LanguageDetection)
	assert.Empty(t, detect.LanguageCode)
	assert.True(t, detect.SpeakerLabels)
	assert.True(t, detect.AutoChapters)
	assert.True(t, detect.IABCategories)

	english := BuildRequest("h", "en", false)
	assert.False(t, english.LanguageDetection)
	assert.Equal(t, "en", english.LanguageCode)
	assert.True(t, english.AutoHighlights)
	assert.True(t, english.EntityDetection)

	french := BuildRequest("h", "fr", false)
	assert.Equal(t, stt.SubmitRequest{AudioURL: "h", LanguageCode: "fr", Punctuate: true, FormatText: true}, french)
}

func TestStoredLanguage(t *testing.T) {
	assert.Equal(t, "auto", StoredLanguage("", true))
	assert.Equal(t, "de", StoredLanguage("de", false))
}

func TestSubmitter_ReapsBeforeSubmitting(t *testing.T) {
	p := newStubProvider()
	p.list = []stt.JobSummary{
		{ID: "old", Status: "processing", Created: t0.Add(-time.Hour).Format(time.RFC3339)},
	}
	clock := clockwork.NewFakeClockAt(t0)
	reaper := NewReaper(p, ReaperConfig{}, clock, nil, discardLogger())
	s := NewSubmitter(p, reaper, nil, discardLogger())

	id, err := s.Submit(context.Background(), "https://cdn.example/h", "es_MX", false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, []string{"list", "delete:old", "submit"}, p.callLog())
	require.Len(t, p.submitted, 1)
	assert.Equal(t, "es", p.submitted[0].LanguageCode)
	assert.False(t, p.submitted[0].SpeakerLabels)
}

func TestSubmitter_ReaperFailureDoesNotBlock(t *testing.T) {
	p := newStubProvider()
	p.listErr = errors.New("connection refused")
	s := NewSubmitter(p, NewReaper(p, ReaperConfig{}, nil, nil, discardLogger()), nil, discardLogger())

	id, err := s.Submit(context.Background(), "h", "", true)
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
}

func TestSubmitter_Rejected(t *testing.T) {
	p := newStubProvider()
	p.submitErr = &stt.ProviderError{Status: http.StatusBadRequest, Body: `{"error":"audio_url invalid"}`}
	s := NewSubmitter(p, nil, nil, discardLogger())

	_, err := s.Submit(context.Background(), "h", "en", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSubmission)
	assert.Equal(t, http.StatusBadRequest, stt.StatusOf(err))
	assert.Contains(t, common.PublicMessage(err), "audio_url invalid")
}

func TestSubmitter_MissingJobID(t *testing.T) {
	p := newStubProvider()
	p.submitErr = stt.ErrMissingJobID
	s := NewSubmitter(p, nil, nil, discardLogger())

	_, err := s.Submit(context.Background(), "h", "en", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSubmission)
	assert.Equal(t, "Transcription request failed: missing job id", common.PublicMessage(err))
}
