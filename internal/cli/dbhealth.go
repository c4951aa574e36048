package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	repo "github.com/joseph-ayodele/transcripts-tracker/internal/repository"
	"github.com/joseph-ayodele/transcripts-tracker/internal/server"
)

func newDBHealthCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dbhealth",
		Short: "Check the database is reachable and migrated",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			db, err := server.ConnectDB(ctx, cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("DB health: FAIL (%w)", err)
			}
			defer repo.Close(db, logger)

			if err := server.PingDB(ctx, db, logger, timeout); err != nil {
				return fmt.Errorf("DB health: FAIL (%w)", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "DB health: OK (%s)\n", db.Dialect)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "Ping timeout")
	return cmd
}
