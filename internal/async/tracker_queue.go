package async

import (
	"context"
	"sync"
	"time"

	"log/slog"
)

// TrackerQueue runs Tracker.Track for enqueued jobs on a fixed pool of workers.
type TrackerQueue struct {
	tracker Tracker
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch        chan Job
	wg        sync.WaitGroup
	once      sync.Once
	closeOnce sync.Once
	// closing wakes senders blocked on a full buffer so Shutdown can take the lock.
	closing chan struct{}

	// stop cancels in-flight tracks when Shutdown gives up waiting.
	ctx  context.Context
	stop context.CancelFunc

	// mu is held shared by senders and exclusively by Shutdown while it closes ch.
	mu     sync.RWMutex
	closed bool
}

type Option func(*TrackerQueue)

func WithWorkers(n int) Option {
	return func(q *TrackerQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *TrackerQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithTrackTimeout(d time.Duration) Option {
	return func(q *TrackerQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewTrackerQueue(tracker Tracker, logger *slog.Logger, opts ...Option) *TrackerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	q := &TrackerQueue{
		tracker: tracker,
		logger:  logger,
		workers: 4,
		timeout: 20 * time.Minute,
		ch:      make(chan Job, 256),
		closing: make(chan struct{}),
		ctx:     ctx,
		stop:    stop,
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *TrackerQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("track.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("track.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *TrackerQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	start := time.Now()
	if err := q.tracker.Track(ctx, job.TranscriptID); err != nil {
		q.logger.Warn("track.job.unfinished", "worker_id", workerID, "job_id", job.TranscriptID,
			"owner", job.Owner, "trace_id", job.TraceID, "error", err)
		return
	}
	q.logger.Info("track.job.done", "worker_id", workerID, "job_id", job.TranscriptID,
		"elapsed_ms", time.Since(start).Milliseconds())
}

// Enqueue hands job to the workers, blocking while the buffer is full until ctx ends
// or Shutdown starts.
func (q *TrackerQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("track.enqueue.closed", "job_id", job.TranscriptID)
		return ErrClosed
	}
	select {
	case q.ch <- job:
		q.logger.Debug("track.enqueued", "job_id", job.TranscriptID)
		return nil
	default:
	}

	q.logger.Warn("track.queue.full", "job_id", job.TranscriptID)
	select {
	case q.ch <- job:
		return nil
	case <-q.closing:
		q.logger.Warn("track.enqueue.closed", "job_id", job.TranscriptID)
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for in-flight ones until ctx ends,
// after which they are cancelled.
func (q *TrackerQueue) Shutdown(ctx context.Context) {
	q.closeOnce.Do(func() { close(q.closing) })

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("track.shutdown.interrupted")
		q.stop()
		<-done
	case <-done:
		q.logger.Info("track.shutdown.drained")
	}
	q.stop()
}
