// Package ingest submits every supported media file found under a directory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/transcripts-tracker/constants"
	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/media"
	"github.com/joseph-ayodele/transcripts-tracker/internal/transcription"
)

// Transcriber is the part of transcription.Service the walker needs.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcription.TranscribeRequest) (*transcription.TranscribeResult, error)
	AllowedFormats() []string
}

type FileResult struct {
	Path         string `json:"path"`
	TranscriptID string `json:"transcript_id,omitempty"`
	Err          string `json:"error,omitempty"`
}

type DirStats struct {
	Scanned   uint32 `json:"scanned"`
	Matched   uint32 `json:"matched"`
	Succeeded uint32 `json:"succeeded"`
	Failed    uint32 `json:"failed"`
}

// Options for SubmitDirectory. Empty IncludeExts means every allowed format.
type Options struct {
	Owner        string
	LanguageCode string
	AutoDetect   bool
	IncludeExts  []string
	SkipHidden   bool
}

type DirectorySubmitter struct {
	svc    Transcriber
	logger *slog.Logger
}

func NewDirectorySubmitter(svc Transcriber, logger *slog.Logger) *DirectorySubmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectorySubmitter{svc: svc, logger: logger}
}

// SubmitDirectory walks root and submits each matching file one at a time.
// A failing file is recorded and the walk continues; only a missing root or a cancelled ctx stops it.
func (d *DirectorySubmitter) SubmitDirectory(ctx context.Context, root string, opts Options) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.NewValidationError("directory is required")
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, DirStats{}, common.NewValidationError(fmt.Sprintf("%s is not a directory", root))
	}

	exts := map[string]struct{}{}
	include := opts.IncludeExts
	if len(include) == 0 {
		include = d.svc.AllowedFormats()
	}
	for _, e := range include {
		if e = constants.NormalizeExt(e); e != "" {
			exts[e] = struct{}{}
		}
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, de fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if opts.SkipHidden && path != root && isHidden(path) {
			if de.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if de.IsDir() {
			return nil
		}
		if _, ok := exts[constants.NormalizeExt(filepath.Ext(path))]; !ok {
			return nil
		}
		stats.Matched++

		id, err := d.submitFile(ctx, path, opts)
		if err != nil {
			d.logger.Warn("ingest.file.failed", "path", path, "error", err)
			results = append(results, FileResult{Path: path, Err: common.PublicMessage(err)})
			stats.Failed++
			return nil
		}
		d.logger.Info("ingest.file.submitted", "path", path, "job_id", id)
		results = append(results, FileResult{Path: path, TranscriptID: id})
		stats.Succeeded++
		return nil
	})
	switch {
	case err == nil:
		return results, stats, nil
	case errors.Is(err, ctx.Err()):
		return results, stats, err
	default:
		return results, stats, fmt.Errorf("walk: %w", err)
	}
}

func (d *DirectorySubmitter) submitFile(ctx context.Context, path string, opts Options) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", common.NewValidationError("File is empty or unreadable")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", common.NewValidationError("File is empty or unreadable")
	}

	res, err := d.svc.Transcribe(ctx, transcription.TranscribeRequest{
		Owner: opts.Owner,
		File: media.Candidate{
			Reader:   f,
			Size:     info.Size(),
			Filename: filepath.Base(path),
		},
		LanguageCode: opts.LanguageCode,
		AutoDetect:   opts.AutoDetect,
	})
	if err != nil {
		return "", err
	}
	return res.TranscriptID, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
