package transcription

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/transcripts-tracker/constants"
	"github.com/joseph-ayodele/transcripts-tracker/internal/async"
	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/media"
	"github.com/joseph-ayodele/transcripts-tracker/internal/metrics"
	"github.com/joseph-ayodele/transcripts-tracker/internal/repository"
	"github.com/joseph-ayodele/transcripts-tracker/internal/stt/assemblyai"
)

type serviceHarness struct {
	svc     *Service
	fake    *fakeAssemblyAI
	repo    repository.TranscriptRepository
	clock   *clockwork.FakeClock
	tempDir string
	metrics *metrics.Metrics
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()
	fake, srv := newFakeAssemblyAI(t)
	logger := discardLogger()

	cfg := &common.Config{
		Provider:  common.ProviderConfig{APIKey: "test-key", BaseURL: srv.URL},
		Upload:    common.UploadConfig{MaxFileSize: constants.DefaultMaxFileSize, TempDir: t.TempDir()},
		Polling:   common.PollingConfig{Interval: time.Second, MaxRetries: 20, MaxWait: 10 * time.Second},
		Reaper:    common.ReaperConfig{StuckAfter: 10 * time.Minute, PageSize: 10},
		Reconcile: common.ReconcileConfig{PageSize: 100, Concurrency: 4},
	}
	provider := assemblyai.NewClient(assemblyai.Config{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
	}, srv.Client(), logger)

	repo := newTestRepo(t)
	clock := newTestClock(t, time.Second)
	m := metrics.NewMetrics()
	return &serviceHarness{
		svc:     NewService(cfg, provider, repo, clock, m, logger),
		fake:    fake,
		repo:    repo,
		clock:   clock,
		tempDir: cfg.Upload.TempDir,
		metrics: m,
	}
}

func mp3Candidate(body string) media.Candidate {
	return media.Candidate{
		Reader:      bytes.NewReader([]byte(body)),
		Size:        int64(len(body)),
		ContentType: "audio/mpeg",
		Filename:    "meeting.mp3",
	}
}

func (h *serviceHarness) assertTempDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_Transcribe(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	res, err := h.svc.Transcribe(ctx, TranscribeRequest{Owner: "alice", File: mp3Candidate("ID3 fake audio")})
	require.NoError(t, err)
	assert.Equal(t, UploadAccepted, res.Message)
	assert.Equal(t, "remote-1", res.TranscriptID)
	assert.Equal(t, constants.JobStatusQueued, res.Status)

	stored, err := h.repo.Get(ctx, "remote-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Owner)
	assert.Equal(t, constants.JobStatusQueued, stored.Status)
	assert.Equal(t, "https://cdn.example/upload/1", stored.AudioURL)
	require.NotNil(t, stored.LanguageCode)
	assert.Equal(t, constants.LanguageAuto, *stored.LanguageCode)

	submits := h.fake.submitted()
	require.Len(t, submits, 1)
	assert.Equal(t, true, submits[0]["language_detection"])
	assert.Equal(t, true, submits[0]["speaker_labels"])
	h.assertTempDirEmpty(t)
}

func TestService_TranscribeExplicitLanguage(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	res, err := h.svc.Transcribe(ctx, TranscribeRequest{Owner: "alice", File: mp3Candidate("audio"), LanguageCode: "de_DE"})
	require.NoError(t, err)

	stored, err := h.repo.Get(ctx, res.TranscriptID)
	require.NoError(t, err)
	assert.Equal(t, "de", *stored.LanguageCode)
	submits := h.fake.submitted()
	require.Len(t, submits, 1)
	assert.Equal(t, "de", submits[0]["language_code"])
	assert.NotContains(t, submits[0], "speaker_labels")
}

func TestService_TranscribeRejectsInvalidFile(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.svc.Transcribe(context.Background(), TranscribeRequest{
		Owner: "alice",
		File:  media.Candidate{Reader: bytes.NewReader([]byte("x")), Size: 1, Filename: "notes.txt"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, http.StatusBadRequest, common.HTTPStatus(err))
	assert.Zero(t, h.fake.uploadCount())
	h.assertTempDirEmpty(t)
}

func TestService_TranscribeUploadFailure(t *testing.T) {
	h := newServiceHarness(t)
	h.fake.fail("POST /upload", http.StatusInternalServerError)

	_, err := h.svc.Transcribe(context.Background(), TranscribeRequest{Owner: "alice", File: mp3Candidate("audio")})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpload)
	assert.Equal(t, http.StatusBadGateway, common.HTTPStatus(err))
	assert.Empty(t, h.fake.submitted())
	h.assertTempDirEmpty(t)
}

func TestService_TranscribeSubmissionFailure(t *testing.T) {
	h := newServiceHarness(t)
	h.fake.fail("POST /transcript", http.StatusBadRequest)

	_, err := h.svc.Transcribe(context.Background(), TranscribeRequest{Owner: "alice", File: mp3Candidate("audio")})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSubmission)
	assert.Contains(t, common.PublicMessage(err), "forced failure 400")
	h.assertTempDirEmpty(t)
}

func TestService_Retrieve(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	res, err := h.svc.Transcribe(ctx, TranscribeRequest{Owner: "alice", File: mp3Candidate("audio")})
	require.NoError(t, err)

	h.fake.setJob(res.TranscriptID, map[string]any{"status": "completed", "text": "hello world"})
	snap, err := h.svc.Retrieve(ctx, "alice", res.TranscriptID, RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, snap.Status)
	assert.Equal(t, "hello world", snap.Text)

	stored, err := h.repo.Get(ctx, res.TranscriptID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, stored.Status)
	assert.Equal(t, "hello world", stored.TextOrEmpty())
	assert.NotNil(t, stored.CompletedAt)
}

func TestService_RetrieveNotFound(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	res, err := h.svc.Transcribe(ctx, TranscribeRequest{Owner: "alice", File: mp3Candidate("audio")})
	require.NoError(t, err)

	_, err = h.svc.Retrieve(ctx, "bob", res.TranscriptID, RetrieveOptions{})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = h.svc.Retrieve(ctx, "alice", "does-not-exist", RetrieveOptions{})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestService_RetrieveWaitTimeoutKeepsStore(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	res, err := h.svc.Transcribe(ctx, TranscribeRequest{Owner: "alice", File: mp3Candidate("audio")})
	require.NoError(t, err)
	h.fake.setJob(res.TranscriptID, map[string]any{"status": "processing"})

	snap, err := h.svc.Retrieve(ctx, "alice", res.TranscriptID, RetrieveOptions{Wait: true, MaxWait: 3 * time.Second})
	require.NoError(t, err)
	assert.True(t, snap.TimedOut)
	assert.Equal(t, "Transcription timed out after 3s", snap.Message)

	stored, err := h.repo.Get(ctx, res.TranscriptID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusQueued, stored.Status)
}

func TestService_RetrieveProviderUnreachableKeepsStore(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	res, err := h.svc.Transcribe(ctx, TranscribeRequest{Owner: "alice", File: mp3Candidate("audio")})
	require.NoError(t, err)
	h.fake.fail("GET /transcript/", http.StatusBadGateway)

	snap, err := h.svc.Retrieve(ctx, "alice", res.TranscriptID, RetrieveOptions{})
	require.NoError(t, err)
	assert.Error(t, snap.Failure)

	stored, err := h.repo.Get(ctx, res.TranscriptID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusQueued, stored.Status)
	assert.Nil(t, stored.Error)
}

func TestService_List(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	res, err := h.svc.Transcribe(ctx, TranscribeRequest{Owner: "alice", File: mp3Candidate("audio")})
	require.NoError(t, err)
	h.fake.setJob(res.TranscriptID, map[string]any{"status": "completed", "text": "hi"})
	h.fake.setJob("external-1", map[string]any{"status": "processing", "created": t0.Add(time.Minute).Format(time.RFC3339)})

	page, err := h.svc.List(ctx, "alice", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Buckets[constants.JobStatusCompleted], 1)
	assert.Equal(t, res.TranscriptID, page.Buckets[constants.JobStatusCompleted][0].ID)
	require.Len(t, page.Buckets[constants.JobStatusProcessing], 1)
	assert.Equal(t, "external-1", page.Buckets[constants.JobStatusProcessing][0].ID)
}

func TestService_ListServesStaleDataWhenProviderFails(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	_, err := h.svc.Transcribe(ctx, TranscribeRequest{Owner: "alice", File: mp3Candidate("audio")})
	require.NoError(t, err)
	h.fake.fail("GET /transcript", http.StatusServiceUnavailable)

	page, err := h.svc.List(ctx, "alice", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Len(t, page.Buckets[constants.JobStatusQueued], 1)
}

func TestService_ReapAndExport(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	h.fake.setJob("stuck", map[string]any{"status": "processing", "created": t0.Add(-time.Hour).Format(time.RFC3339)})

	assert.Equal(t, 1, h.svc.Reap(ctx))
	assert.Equal(t, []string{"stuck"}, h.fake.deletedIDs())

	_, err := h.svc.Transcribe(ctx, TranscribeRequest{Owner: "alice", File: mp3Candidate("audio")})
	require.NoError(t, err)
	b, err := h.svc.Export(ctx, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, b)
	assert.Contains(t, h.svc.AllowedFormats(), "mp3")
}

type captureQueue struct {
	jobs []async.Job
}

func (q *captureQueue) Enqueue(_ context.Context, job async.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *captureQueue) Shutdown(context.Context) {}

func TestService_TranscribeEnqueuesTracking(t *testing.T) {
	h := newServiceHarness(t)
	q := &captureQueue{}
	h.svc.WithQueue(q)
	ctx := common.WithRequestID(context.Background(), "req-7")

	res, err := h.svc.Transcribe(ctx, TranscribeRequest{Owner: "alice", File: mp3Candidate("audio")})
	require.NoError(t, err)

	require.Len(t, q.jobs, 1)
	assert.Equal(t, res.TranscriptID, q.jobs[0].TranscriptID)
	assert.Equal(t, "alice", q.jobs[0].Owner)
	assert.Equal(t, "req-7", q.jobs[0].TraceID)
	assert.Equal(t, t0, q.jobs[0].SubmittedAt)
}

func TestService_TrackStoresTerminalState(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	res, err := h.svc.Transcribe(ctx, TranscribeRequest{Owner: "alice", File: mp3Candidate("audio")})
	require.NoError(t, err)
	h.fake.setJob(res.TranscriptID, map[string]any{"status": "error", "error": "audio too short"})

	require.NoError(t, h.svc.Track(ctx, res.TranscriptID))

	stored, err := h.repo.Get(ctx, res.TranscriptID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusError, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Equal(t, "audio too short", *stored.Error)
}

func TestService_TrackReportsUnfinishedJob(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	res, err := h.svc.Transcribe(ctx, TranscribeRequest{Owner: "alice", File: mp3Candidate("audio")})
	require.NoError(t, err)
	h.fake.setJob(res.TranscriptID, map[string]any{"status": "processing", "percentage": 40})

	err = h.svc.Track(ctx, res.TranscriptID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	stored, err := h.repo.Get(ctx, res.TranscriptID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusProcessing, stored.Status)
}
