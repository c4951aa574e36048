package async

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Enqueue once Shutdown has started.
var ErrClosed = errors.New("queue is shutting down")

// Job is one accepted transcription to follow until it finishes.
type Job struct {
	TranscriptID string
	Owner        string
	SubmittedAt  time.Time
	TraceID      string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Tracker follows a single job to a terminal state.
type Tracker interface {
	Track(ctx context.Context, transcriptID string) error
}
