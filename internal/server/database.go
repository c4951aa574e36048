package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	repo "github.com/joseph-ayodele/transcripts-tracker/internal/repository"
)

// ConnectDB opens the configured database, applies the schema and checks it answers.
func ConnectDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repo.DB, error) {
	db, err := repo.Open(ctx, repo.Config{
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
		DialTimeout:     cfg.DialTimeout,
	}, logger)
	if err != nil {
		return nil, common.NewDatabaseError("failed to connect to database", err)
	}

	if err := PingDB(ctx, db, logger, 5*time.Second); err != nil {
		repo.Close(db, logger)
		return nil, common.NewDatabaseError("database is not reachable", err)
	}
	if err := repo.Migrate(ctx, db, logger); err != nil {
		repo.Close(db, logger)
		return nil, common.NewDatabaseError("failed to migrate database", err)
	}
	return db, nil
}

// PingDB pings the database to ensure it's responsive
func PingDB(ctx context.Context, db *repo.DB, logger *slog.Logger, timeout time.Duration) error {
	return repo.HealthCheck(ctx, db, timeout, logger)
}

// DBHealth adapts PingDB to a HealthFunc.
func DBHealth(db *repo.DB, logger *slog.Logger) HealthFunc {
	return func(ctx context.Context) error {
		return PingDB(ctx, db, logger, time.Second)
	}
}
