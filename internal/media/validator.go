// Package media checks uploaded audio/video files before anything leaves the process.
package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/transcripts-tracker/constants"
	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/metrics"
)

// sniffLen is how much of the file is read to prove it is readable.
const sniffLen = 1024

// Candidate is an uploaded file awaiting validation.
type Candidate struct {
	Reader      io.ReadSeeker
	Size        int64
	ContentType string
	Filename    string
}

type Validator struct {
	maxSize int64
	allowed map[string]string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewValidator builds a validator; a non-positive maxSize or empty allow-list selects the defaults.
func NewValidator(maxSize int64, allowed map[string]string, logger *slog.Logger) *Validator {
	if maxSize <= 0 {
		maxSize = constants.DefaultMaxFileSize
	}
	if len(allowed) == 0 {
		allowed = constants.AllowedFormats
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{maxSize: maxSize, allowed: allowed, logger: logger}
}

// WithMetrics records rejections on m.
func (v *Validator) WithMetrics(m *metrics.Metrics) *Validator {
	v.metrics = m
	return v
}

// Validate returns nil when c may be uploaded, otherwise a validation AppError.
// On success the reader is positioned back at offset 0.
func (v *Validator) Validate(c Candidate) error {
	if c.Size > v.maxSize {
		v.reject("too_large", "filename", c.Filename, "size", c.Size)
		return common.NewValidationError(fmt.Sprintf("File too large. Maximum size is %s", formatSize(v.maxSize)))
	}

	if _, ok := v.ResolveExt(c); !ok {
		v.reject("unsupported_format", "filename", c.Filename, "content_type", c.ContentType)
		return common.NewValidationError("Unsupported file format. Allowed formats: " +
			strings.Join(constants.SortedExts(v.allowed), ", "))
	}

	if err := checkReadable(c.Reader); err != nil {
		v.reject("unreadable", "filename", c.Filename, "error", err)
		return common.NewValidationError("File is empty or unreadable")
	}
	return nil
}

func (v *Validator) reject(reason string, args ...any) {
	v.metrics.RecordRejectedUpload(reason)
	v.logger.Info("media.validate.rejected", append([]any{"reason", reason}, args...)...)
}

// ResolveExt returns the allowed extension c will be stored under.
// The filename extension wins; the content type is used when the name has none.
// A declared, non-generic content type must also be on the allow-list.
func (v *Validator) ResolveExt(c Candidate) (string, bool) {
	ct := constants.NormalizeContentType(c.ContentType)
	declared := !constants.IsGenericContentType(ct)

	var ctExt string
	if declared {
		var ok bool
		if ctExt, ok = constants.ExtForContentType(v.allowed, ct); !ok {
			return "", false
		}
	}

	ext := constants.NormalizeExt(filepath.Ext(c.Filename))
	if ext == "" {
		return ctExt, ctExt != ""
	}
	if _, ok := v.allowed[ext]; !ok {
		return "", false
	}
	return ext, true
}

// AllowedExts lists the accepted extensions.
func (v *Validator) AllowedExts() []string {
	return constants.SortedExts(v.allowed)
}

func checkReadable(r io.ReadSeeker) error {
	if r == nil {
		return errors.New("no file content")
	}
	buf := make([]byte, sniffLen)
	if _, err := io.ReadAtLeast(r, buf, 1); err != nil {
		return err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}
	return nil
}

func formatSize(n int64) string {
	const mb = 1024 * 1024
	if n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
