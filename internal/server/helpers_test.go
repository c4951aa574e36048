package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/metrics"
	"github.com/joseph-ayodele/transcripts-tracker/internal/repository"
	"github.com/joseph-ayodele/transcripts-tracker/internal/stt"
	"github.com/joseph-ayodele/transcripts-tracker/internal/transcription"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// steppingClock is a fake clock at t0 that advances by step each time a poll loop sleeps on it.
func steppingClock(t *testing.T, step time.Duration) *clockwork.FakeClock {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for clock.BlockUntilContext(ctx, 1) == nil {
			clock.Advance(step)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return clock
}

// memProvider keeps provider jobs in memory.
type memProvider struct {
	mu      sync.Mutex
	jobs    map[string]stt.Transcript
	order   []string
	uploads int
	listErr error
}

func newMemProvider() *memProvider {
	return &memProvider{jobs: map[string]stt.Transcript{}}
}

func (p *memProvider) Upload(_ context.Context, r io.Reader, _ int64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.Copy(io.Discard, r)
	p.uploads++
	return fmt.Sprintf("https://cdn.example/upload/%d", p.uploads), nil
}

func (p *memProvider) Submit(_ context.Context, req stt.SubmitRequest) (stt.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("job-%d", len(p.order)+1)
	p.order = append(p.order, id)
	p.jobs[id] = stt.Transcript{ID: id, Status: "queued", AudioURL: req.AudioURL}
	return stt.Job{ID: id, Status: "queued"}, nil
}

func (p *memProvider) Get(_ context.Context, id string) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.jobs[id]
	if !ok {
		return stt.Transcript{}, &stt.ProviderError{Status: http.StatusNotFound, Body: "Transcript lookup error"}
	}
	return t, nil
}

func (p *memProvider) List(_ context.Context, _ int) ([]stt.JobSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	out := make([]stt.JobSummary, 0, len(p.order))
	for i := len(p.order) - 1; i >= 0; i-- {
		t, ok := p.jobs[p.order[i]]
		if !ok {
			continue
		}
		out = append(out, stt.JobSummary{
			ID:       t.ID,
			Status:   t.Status,
			Created:  t0.Format(time.RFC3339Nano),
			AudioURL: t.AudioURL,
		})
	}
	return out, nil
}

func (p *memProvider) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.jobs, id)
	return nil
}

func (p *memProvider) complete(id, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.jobs[id]
	t.Status = "completed"
	t.Text = &text
	p.jobs[id] = t
}

func (p *memProvider) uploadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uploads
}

type harness struct {
	cfg      *common.Config
	provider *memProvider
	repo     repository.TranscriptRepository
	svc      *transcription.Service
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, mutate ...func(*common.Config)) *harness {
	t.Helper()
	logger := discardLogger()
	ctx := context.Background()

	cfg := &common.Config{
		Server:    common.ServerConfig{HTTPAddr: ":0", ListPageSize: 20},
		Upload:    common.UploadConfig{MaxFileSize: 1024 * 1024, TempDir: t.TempDir()},
		Polling:   common.PollingConfig{Interval: time.Second, MaxRetries: 10, MaxWait: 10 * time.Second},
		Reaper:    common.ReaperConfig{StuckAfter: 10 * time.Minute, PageSize: 10},
		Reconcile: common.ReconcileConfig{PageSize: 100, Concurrency: 2},
		Accounts:  common.AccountsConfig{AllowAnonymous: true, AnonymousOwner: "anonymous"},
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	db, err := repository.Open(ctx, repository.Config{
		DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_time_format=sqlite", uuid.NewString()),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(db, logger) })
	require.NoError(t, repository.Migrate(ctx, db, logger))
	repo := repository.NewTranscriptRepository(db, logger)

	provider := newMemProvider()
	m := metrics.NewMetrics()
	return &harness{
		cfg:      cfg,
		provider: provider,
		repo:     repo,
		svc:      transcription.NewService(cfg, provider, repo, steppingClock(t, cfg.Polling.Interval), m, logger),
		metrics:  m,
	}
}
