package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/metrics"
	"github.com/joseph-ayodele/transcripts-tracker/internal/stt"
)

// tempSubdir is created under the system temp dir when no upload dir is configured.
const tempSubdir = "transcripts-uploads"

// Uploader moves local files to the provider. Every file it is handed is removed afterwards.
type Uploader struct {
	provider stt.Provider
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewUploader(provider stt.Provider, m *metrics.Metrics, logger *slog.Logger) *Uploader {
	return &Uploader{provider: provider, metrics: m, logger: logger}
}

// Upload streams the file at path to the provider and returns its content handle.
// The file is removed on every exit path.
func (u *Uploader) Upload(ctx context.Context, path string) (string, error) {
	defer u.remove(path)
	start := time.Now()

	info, err := os.Stat(path)
	if err != nil {
		u.logger.Error("transcribe.upload.stat_error", "path", path, "error", err)
		u.metrics.RecordUpload("error", time.Since(start))
		return "", common.NewUploadError("Upload failed: file is missing", err)
	}
	if info.Size() == 0 {
		u.logger.Error("transcribe.upload.empty_file", "path", path)
		u.metrics.RecordUpload("error", time.Since(start))
		return "", common.NewUploadError("Upload failed: file is empty", nil)
	}

	f, err := os.Open(path)
	if err != nil {
		u.logger.Error("transcribe.upload.open_error", "path", path, "error", err)
		u.metrics.RecordUpload("error", time.Since(start))
		return "", common.NewUploadError("Upload failed: file is unreadable", err)
	}
	defer func() { _ = f.Close() }()

	u.logger.Info("transcribe.upload.start", "path", path, "size", info.Size())
	handle, err := u.provider.Upload(ctx, f, info.Size())
	if err != nil {
		u.logger.Error("transcribe.upload.failed", "path", path, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		u.metrics.RecordUpload("error", time.Since(start))
		return "", common.NewUploadError("Upload failed: "+providerDetail(err), err)
	}

	u.logger.Info("transcribe.upload.done", "path", path, "elapsed_ms", time.Since(start).Milliseconds())
	u.metrics.RecordUpload("ok", time.Since(start))
	return handle, nil
}

func (u *Uploader) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		u.logger.Warn("transcribe.upload.cleanup_error", "path", path, "error", err)
	}
}

// SpillToTemp copies r into a new upload_<uuid><ext> file under dir and returns its path.
// A partially written file is removed before returning an error.
func SpillToTemp(dir, ext string, r io.Reader) (string, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), tempSubdir)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}

	path := filepath.Join(dir, "upload_"+uuid.New().String()+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return path, nil
}

// providerDetail renders err for callers, keeping the provider's status and body.
func providerDetail(err error) string {
	var pe *stt.ProviderError
	if errors.As(err, &pe) {
		return fmt.Sprintf("provider returned %d: %s", pe.Status, pe.Body)
	}
	return err.Error()
}
