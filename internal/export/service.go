package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/transcripts-tracker/internal/repository"
)

// Service produces XLSX workbooks of an owner's transcripts.
type Service struct {
	repo   repository.TranscriptRepository
	logger *slog.Logger
}

func NewService(repo repository.TranscriptRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

const sheet = "Transcripts"

var headers = []string{
	"Transcript ID",
	"Status",
	"Language",
	"Created At",
	"Completed At",
	"Audio URL",
	"Error",
	"Text",
}

// ExportTranscriptsXLSX returns a workbook (as bytes) with one row per transcript, newest first.
func (s *Service) ExportTranscriptsXLSX(ctx context.Context, owner string) ([]byte, error) {
	start := time.Now()

	items, err := s.repo.ListAll(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, t := range items {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, t.ID)
		write(2, string(t.Status))
		if t.LanguageCode != nil {
			write(3, *t.LanguageCode)
		}
		write(4, t.CreatedAt.UTC().Format(time.RFC3339))
		if t.CompletedAt != nil {
			write(5, t.CompletedAt.UTC().Format(time.RFC3339))
		}
		write(6, t.AudioURL)
		if t.Error != nil {
			write(7, *t.Error)
		}
		write(8, truncate(t.TextOrEmpty(), 32767)) // Excel's per-cell limit

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // id
	_ = f.SetColWidth(sheet, "B", "C", 12) // status, language
	_ = f.SetColWidth(sheet, "D", "E", 22) // timestamps
	_ = f.SetColWidth(sheet, "F", "F", 48) // audio url
	_ = f.SetColWidth(sheet, "G", "G", 32) // error
	_ = f.SetColWidth(sheet, "H", "H", 80) // text

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.done", "owner", owner, "rows", len(items),
		"bytes", buf.Len(), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
