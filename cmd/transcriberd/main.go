package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joseph-ayodele/transcripts-tracker/internal/async"
	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/metrics"
	repo "github.com/joseph-ayodele/transcripts-tracker/internal/repository"
	svc "github.com/joseph-ayodele/transcripts-tracker/internal/server"
	"github.com/joseph-ayodele/transcripts-tracker/internal/stt/assemblyai"
	"github.com/joseph-ayodele/transcripts-tracker/internal/transcription"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repo.Close(db, logger)

	m := metrics.NewMetrics()
	provider := assemblyai.NewClient(assemblyai.Config{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Timeout: cfg.Provider.Timeout,
	}, nil, logger)

	transcripts := repo.NewTranscriptRepository(db, logger)
	service := transcription.NewService(cfg, provider, transcripts, nil, m, logger)

	var queue *async.TrackerQueue
	if cfg.Tracking.Workers > 0 {
		queue = async.NewTrackerQueue(service, logger,
			async.WithWorkers(cfg.Tracking.Workers),
			async.WithQueueSize(cfg.Tracking.QueueSize),
			async.WithTrackTimeout(cfg.Tracking.Timeout),
		)
		service.WithQueue(queue)
	}

	httpServer := svc.NewHTTPServer(cfg, service, m, svc.DBHealth(db, logger), logger)
	if err := httpServer.Start(); err != nil {
		logger.Error("failed to start http server", "error", err)
		os.Exit(1)
	}

	var grpcStop func()
	if addr := cfg.Server.GRPCAddr; addr != "" {
		if !strings.Contains(addr, ":") {
			addr = ":" + addr
		}
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", addr, "error", err)
			os.Exit(1)
		}
		grpcServer, health := svc.NewGRPCServer(svc.NewTranscriptionsService(service, cfg, logger))
		logger.Info("grpc.server.start", "addr", addr)
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc serve error", "error", err)
				stop()
			}
		}()
		grpcStop = func() {
			health.Shutdown()
			grpcServer.GracefulStop()
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http shutdown failed", "error", err)
	}
	if grpcStop != nil {
		grpcStop()
	}
	if queue != nil {
		queue.Shutdown(shutdownCtx)
	}
}

func newLogger(cfg common.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
