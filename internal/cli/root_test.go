package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves just enough of the provider API for the commands.
type fakeProvider struct {
	mu   sync.Mutex
	jobs map[string]map[string]any
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload":
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"upload_url":"https://cdn.example/upload/1"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/transcript":
		id := fmt.Sprintf("job-%d", len(f.jobs)+1)
		f.jobs[id] = map[string]any{"id": id, "status": "completed", "text": "hello there"}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "status": "queued"})
	case r.Method == http.MethodGet && r.URL.Path == "/transcript":
		items := make([]map[string]any, 0, len(f.jobs))
		for _, j := range f.jobs {
			items = append(items, j)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"transcripts": items})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/transcript/"):
		job, ok := f.jobs[strings.TrimPrefix(r.URL.Path, "/transcript/")]
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(job)
	default:
		http.NotFound(w, r)
	}
}

func setupEnv(t *testing.T) {
	t.Helper()
	srv := httptest.NewServer(&fakeProvider{jobs: map[string]map[string]any{}})
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("TRANSCRIBER_CONFIG", "")
	t.Setenv("DB_URL", "file:"+filepath.Join(dir, "cli.db")+"?_pragma=foreign_keys(1)&_time_format=sqlite")
	t.Setenv("ASSEMBLYAI_API_KEY", "test-key")
	t.Setenv("ASSEMBLYAI_BASE_URL", srv.URL)
	t.Setenv("UPLOAD_TMP_DIR", filepath.Join(dir, "spill"))
	t.Setenv("ALLOW_ANONYMOUS", "true")
	t.Setenv("TRANSCRIPTS_OWNER", "")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDBHealth(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "dbhealth")
	require.NoError(t, err)
	assert.Contains(t, out, "DB health: OK")
}

func TestSubmitThenStatus(t *testing.T) {
	setupEnv(t)
	audio := filepath.Join(t.TempDir(), "memo.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF....WAVE"), 0o600))

	out, err := run(t, "submit", audio, "--owner", "alice", "--language", "en")
	require.NoError(t, err)
	var accepted map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &accepted))
	assert.Equal(t, "job-1", accepted["transcript_id"])
	assert.Equal(t, "queued", accepted["status"])

	out, err = run(t, "status", "job-1", "--owner", "alice")
	require.NoError(t, err)
	var snap map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, "completed", snap["status"])
	assert.Equal(t, "hello there", snap["text"])

	_, err = run(t, "status", "job-1", "--owner", "bob")
	assert.EqualError(t, err, "transcript not found")
}

func TestSubmitRejectsUnsupportedFile(t *testing.T) {
	setupEnv(t)
	doc := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(doc, []byte("text"), 0o600))

	_, err := run(t, "submit", doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported file format")
}

func TestOwnerRequiredWithoutAnonymous(t *testing.T) {
	setupEnv(t)
	t.Setenv("ALLOW_ANONYMOUS", "false")

	_, err := run(t, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account reference is required")
}

func TestExportWritesWorkbook(t *testing.T) {
	setupEnv(t)
	target := filepath.Join(t.TempDir(), "out.xlsx")

	out, err := run(t, "export", "--out", target)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+target)

	b, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), b[:2])
}
