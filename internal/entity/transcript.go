package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/joseph-ayodele/transcripts-tracker/constants"
)

// Transcript is one transcription job tracked from submission to a terminal state.
type Transcript struct {
	ID           string              `json:"id"`
	Owner        string              `json:"owner"`
	Status       constants.JobStatus `json:"status"`
	Text         *string             `json:"text,omitempty"`
	AudioURL     string              `json:"audio_url"`
	LanguageCode *string             `json:"language_code,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	Error        *string             `json:"error,omitempty"`
}

// defaultFailure is recorded when the provider reports an error without detail.
const defaultFailure = "transcription failed"

// NewQueuedTranscript builds the record persisted right after a successful submission.
func NewQueuedTranscript(id, owner, audioURL, languageCode string, createdAt time.Time) *Transcript {
	t := &Transcript{
		ID:        id,
		Owner:     owner,
		Status:    constants.JobStatusQueued,
		AudioURL:  audioURL,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if languageCode != "" {
		t.LanguageCode = &languageCode
	}
	return t
}

// Observe folds a provider observation into the record and reports whether anything changed.
//
// Completed and error are terminal, with one exception: the provider is authoritative about
// failures, so an observed error replaces a local completed. Regressions such as
// processing -> queued are ignored.
func (t *Transcript) Observe(status constants.JobStatus, text, errMsg string, at time.Time) bool {
	if !status.Valid() {
		return false
	}

	switch {
	case status == constants.JobStatusError:
		if errMsg == "" {
			errMsg = defaultFailure
		}
		if t.Status == constants.JobStatusError && t.Error != nil && *t.Error == errMsg {
			return false
		}
		t.Status = constants.JobStatusError
		t.Error = &errMsg
		t.Text = nil
		t.CompletedAt = nil

	case t.Status == constants.JobStatusError:
		return false

	case t.Status == constants.JobStatusCompleted:
		if status != constants.JobStatusCompleted || text == "" || (t.Text != nil && *t.Text == text) {
			return false
		}
		t.Text = &text

	case status.Before(t.Status) || status == t.Status:
		return false

	case status == constants.JobStatusCompleted:
		t.Status = constants.JobStatusCompleted
		t.Error = nil
		if text != "" {
			t.Text = &text
		}
		completedAt := at
		t.CompletedAt = &completedAt

	default:
		t.Status = status
	}

	t.UpdatedAt = at
	return true
}

// CheckInvariants verifies the field relationships every persisted record must satisfy.
func (t *Transcript) CheckInvariants() error {
	if t.ID == "" {
		return errors.New("transcript id is required")
	}
	if !t.Status.Valid() {
		return fmt.Errorf("transcript %s: unknown status %q", t.ID, t.Status)
	}
	if (t.CompletedAt != nil) != (t.Status == constants.JobStatusCompleted) {
		return fmt.Errorf("transcript %s: completed_at must be set iff status is completed", t.ID)
	}
	if t.Error != nil && t.Status != constants.JobStatusError {
		return fmt.Errorf("transcript %s: error set on non-error status %s", t.ID, t.Status)
	}
	if t.Text != nil && t.Status != constants.JobStatusCompleted {
		return fmt.Errorf("transcript %s: text set on non-completed status %s", t.ID, t.Status)
	}
	return nil
}

// TextOrEmpty returns the transcript text, or "" when none was produced.
func (t *Transcript) TextOrEmpty() string {
	if t.Text == nil {
		return ""
	}
	return *t.Text
}

// Observation is one provider-side view of a job.
type Observation struct {
	Status constants.JobStatus
	Text   string
	Error  string
	At     time.Time
}

// Apply folds o into the record, see Observe.
func (t *Transcript) Apply(o Observation) bool {
	return t.Observe(o.Status, o.Text, o.Error, o.At)
}
