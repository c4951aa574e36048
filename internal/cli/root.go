// Package cli implements transcriptsctl, an operator tool that drives the transcription
// service in-process against the configured database and provider.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/metrics"
	repo "github.com/joseph-ayodele/transcripts-tracker/internal/repository"
	"github.com/joseph-ayodele/transcripts-tracker/internal/server"
	"github.com/joseph-ayodele/transcripts-tracker/internal/stt/assemblyai"
	"github.com/joseph-ayodele/transcripts-tracker/internal/transcription"
)

type rootOptions struct {
	owner   string
	verbose bool
}

// Execute runs the root command with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "transcriptsctl",
		Short:         "Transcription job operator tool",
		Long:          "Submit audio, inspect and reconcile transcription jobs against the configured provider and database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.owner, "owner", "o", os.Getenv("TRANSCRIPTS_OWNER"),
		"Account reference the jobs belong to")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")

	cmd.AddCommand(newSubmitCmd(opts))
	cmd.AddCommand(newSubmitDirCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newReconcileCmd(opts))
	cmd.AddCommand(newReapCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newDBHealthCmd(opts))
	return cmd
}

// app is the service graph a command runs against.
type app struct {
	cfg     *common.Config
	db      *repo.DB
	service *transcription.Service
	owner   string
	logger  *slog.Logger
}

func (a *app) Close() {
	repo.Close(a.db, a.logger)
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (*common.Config, *slog.Logger, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	var w io.Writer = io.Discard
	if opts.verbose {
		w = cmd.ErrOrStderr()
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	return cfg, slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// openApp wires the repository, provider client and service for one command run.
func openApp(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, logger, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	owner, err := common.ResolveOwner(strings.TrimSpace(opts.owner), cfg.Accounts)
	if err != nil {
		return nil, err
	}

	db, err := server.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	provider := assemblyai.NewClient(assemblyai.Config{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Timeout: cfg.Provider.Timeout,
	}, nil, logger)
	transcripts := repo.NewTranscriptRepository(db, logger)

	return &app{
		cfg:     cfg,
		db:      db,
		service: transcription.NewService(cfg, provider, transcripts, nil, metrics.NewMetrics(), logger),
		owner:   owner,
		logger:  logger,
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
