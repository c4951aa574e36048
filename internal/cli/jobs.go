package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/ingest"
	"github.com/joseph-ayodele/transcripts-tracker/internal/media"
	"github.com/joseph-ayodele/transcripts-tracker/internal/transcription"
)

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		language   string
		autoDetect bool
		wait       bool
		maxWait    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Upload an audio or video file and start a transcription job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat %s: %w", args[0], err)
			}

			res, err := a.service.Transcribe(ctx, transcription.TranscribeRequest{
				Owner: a.owner,
				File: media.Candidate{
					Reader:   f,
					Size:     info.Size(),
					Filename: filepath.Base(args[0]),
				},
				LanguageCode: language,
				AutoDetect:   autoDetect,
			})
			if err != nil {
				return errors.New(common.PublicMessage(err))
			}
			if !wait {
				return printJSON(cmd.OutOrStdout(), res)
			}

			snap, err := a.service.Retrieve(ctx, a.owner, res.TranscriptID, transcription.RetrieveOptions{
				Wait:    true,
				MaxWait: maxWait,
			})
			if err != nil {
				return errors.New(common.PublicMessage(err))
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language code, e.g. en or es")
	cmd.Flags().BoolVar(&autoDetect, "auto-detect", false, "Let the provider detect the language")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 0, "Upper bound on --wait (capped by POLL_MAX_WAIT)")
	return cmd
}

func newSubmitDirCmd(opts *rootOptions) *cobra.Command {
	var (
		language   string
		autoDetect bool
		exts       []string
		withHidden bool
	)
	cmd := &cobra.Command{
		Use:   "submit-dir <directory>",
		Short: "Submit every supported media file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			results, stats, err := ingest.NewDirectorySubmitter(a.service, a.logger).SubmitDirectory(ctx, args[0], ingest.Options{
				Owner:        a.owner,
				LanguageCode: language,
				AutoDetect:   autoDetect,
				IncludeExts:  exts,
				SkipHidden:   !withHidden,
			})
			if err != nil {
				return errors.New(common.PublicMessage(err))
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"stats": stats, "results": results})
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language code applied to every file")
	cmd.Flags().BoolVar(&autoDetect, "auto-detect", false, "Let the provider detect the language")
	cmd.Flags().StringSliceVar(&exts, "ext", nil, "Only submit these extensions (default: all allowed formats)")
	cmd.Flags().BoolVar(&withHidden, "hidden", false, "Include hidden files and directories")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		wait    bool
		maxWait time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status <transcript-id>",
		Short: "Show the current state of a transcription job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.service.Retrieve(ctx, a.owner, args[0], transcription.RetrieveOptions{
				Wait:    wait,
				MaxWait: maxWait,
			})
			if err != nil {
				return errors.New(common.PublicMessage(err))
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 0, "Upper bound on --wait (capped by POLL_MAX_WAIT)")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs grouped by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if pageSize <= 0 {
				pageSize = a.cfg.Server.ListPageSize
			}
			out, err := a.service.List(ctx, a.owner, page, pageSize)
			if err != nil {
				return errors.New(common.PublicMessage(err))
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Page size (defaults to LIST_PAGE_SIZE)")
	return cmd
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Sync stored jobs with the provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.service.Reconcile(ctx, a.owner)
			if err != nil && !errors.Is(err, common.ErrReconciliation) {
				return errors.New(common.PublicMessage(err))
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", common.PublicMessage(err))
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func newReapCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Delete provider jobs stuck in processing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d stuck job(s)\n", a.service.Reap(ctx))
			return nil
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the owner's transcripts to an XLSX workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.service.Export(ctx, a.owner)
			if err != nil {
				return errors.New(common.PublicMessage(err))
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "transcripts.xlsx", "Output file")
	return cmd
}
