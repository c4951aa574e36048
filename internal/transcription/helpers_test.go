package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/transcripts-tracker/internal/repository"
	"github.com/joseph-ayodele/transcripts-tracker/internal/stt"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// newTestClock returns a fake clock at t0 that jumps forward by step whenever
// something waits on it, so bounded polling loops finish without sleeping.
func newTestClock(t *testing.T, step time.Duration) *clockwork.FakeClock {
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

// stubProvider is an in-process stt.Provider with scripted responses.
type stubProvider struct {
	mu sync.Mutex

	uploadURL string
	uploadErr error
	uploaded  []string

	submitID  string
	submitErr error
	submitted []stt.SubmitRequest

	// gets are served in order per id; the last one repeats.
	gets     map[string][]stt.Transcript
	getErr   map[string]error
	getCalls map[string]int

	list    []stt.JobSummary
	listErr error

	deleteErr map[string]error
	deleted   []string

	calls []string
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		uploadURL: "https://cdn.example/upload/1",
		submitID:  "job-1",
		gets:      map[string][]stt.Transcript{},
		getErr:    map[string]error{},
		getCalls:  map[string]int{},
		deleteErr: map[string]error{},
	}
}

func (p *stubProvider) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *stubProvider) Upload(_ context.Context, r io.Reader, _ int64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("upload")
	b, _ := io.ReadAll(r)
	p.uploaded = append(p.uploaded, string(b))
	if p.uploadErr != nil {
		return "", p.uploadErr
	}
	return p.uploadURL, nil
}

func (p *stubProvider) Submit(_ context.Context, req stt.SubmitRequest) (stt.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("submit")
	p.submitted = append(p.submitted, req)
	if p.submitErr != nil {
		return stt.Job{}, p.submitErr
	}
	return stt.Job{ID: p.submitID, Status: "queued"}, nil
}

func (p *stubProvider) Get(_ context.Context, id string) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("get:" + id)
	n := p.getCalls[id]
	p.getCalls[id] = n + 1
	if err := p.getErr[id]; err != nil {
		return stt.Transcript{}, err
	}
	script := p.gets[id]
	if len(script) == 0 {
		return stt.Transcript{}, &stt.ProviderError{Status: http.StatusNotFound, Body: "not found"}
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n], nil
}

func (p *stubProvider) List(_ context.Context, _ int) ([]stt.JobSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("list")
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.list, nil
}

func (p *stubProvider) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("delete:" + id)
	if err := p.deleteErr[id]; err != nil {
		return err
	}
	p.deleted = append(p.deleted, id)
	return nil
}

func (p *stubProvider) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func newTestRepo(t *testing.T) repository.TranscriptRepository {
	t.Helper()
	logger := discardLogger()
	ctx := context.Background()

	db, err := repository.Open(ctx, repository.Config{
		DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_time_format=sqlite", uuid.NewString()),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(db, logger) })
	require.NoError(t, repository.Migrate(ctx, db, logger))
	return repository.NewTranscriptRepository(db, logger)
}

// fakeAssemblyAI emulates the provider's REST API over httptest.
type fakeAssemblyAI struct {
	mu        sync.Mutex
	jobs      map[string]map[string]any
	order     []string
	uploads   int
	submits   []map[string]any
	deleted   []string
	failWith  map[string]int // path prefix -> status code
	nextJobID int
}

func newFakeAssemblyAI(t *testing.T) (*fakeAssemblyAI, *httptest.Server) {
	t.Helper()
	f := &fakeAssemblyAI{jobs: map[string]map[string]any{}, failWith: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAssemblyAI) setJob(id string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		f.order = append(f.order, id)
		f.jobs[id] = map[string]any{"id": id}
	}
	for k, v := range fields {
		f.jobs[id][k] = v
	}
}

func (f *fakeAssemblyAI) fail(prefix string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith[prefix] = status
}

func (f *fakeAssemblyAI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("authorization") != "test-key" {
		http.Error(w, `{"error":"Authentication error"}`, http.StatusUnauthorized)
		return
	}
	for prefix, status := range f.failWith {
		if strings.HasPrefix(r.Method+" "+r.URL.Path, prefix) {
			w.WriteHeader(status)
			_, _ = fmt.Fprintf(w, `{"error":"forced failure %d"}`, status)
			return
		}
	}

	writeJSON := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload":
		_, _ = io.Copy(io.Discard, r.Body)
		f.uploads++
		writeJSON(map[string]any{"upload_url": fmt.Sprintf("https://cdn.example/upload/%d", f.uploads)})

	case r.Method == http.MethodPost && r.URL.Path == "/transcript":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.submits = append(f.submits, body)
		f.nextJobID++
		id := fmt.Sprintf("remote-%d", f.nextJobID)
		f.order = append(f.order, id)
		f.jobs[id] = map[string]any{
			"id": id, "status": "queued", "audio_url": body["audio_url"],
			"created": t0.Format("2006-01-02T15:04:05.999999"),
		}
		writeJSON(f.jobs[id])

	case r.Method == http.MethodGet && r.URL.Path == "/transcript":
		items := make([]map[string]any, 0, len(f.order))
		for i := len(f.order) - 1; i >= 0; i-- {
			if job, ok := f.jobs[f.order[i]]; ok {
				items = append(items, job)
			}
		}
		writeJSON(map[string]any{"transcripts": items})

	case strings.HasPrefix(r.URL.Path, "/transcript/"):
		id := strings.TrimPrefix(r.URL.Path, "/transcript/")
		job, ok := f.jobs[id]
		if !ok {
			http.Error(w, `{"error":"Transcript lookup error"}`, http.StatusNotFound)
			return
		}
		if r.Method == http.MethodDelete {
			delete(f.jobs, id)
			f.deleted = append(f.deleted, id)
		}
		writeJSON(job)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAssemblyAI) submitted() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.submits...)
}

func (f *fakeAssemblyAI) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

func (f *fakeAssemblyAI) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}
