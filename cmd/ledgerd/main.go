package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/internal/async"
	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/export"
	"github.com/joseph-ayodele/statements-ledger/internal/ingest"
	"github.com/joseph-ayodele/statements-ledger/internal/normalize"
	"github.com/joseph-ayodele/statements-ledger/internal/pipeline"
	repo "github.com/joseph-ayodele/statements-ledger/internal/repository"
	"github.com/joseph-ayodele/statements-ledger/internal/scheduler"
	"github.com/joseph-ayodele/statements-ledger/internal/server"
	"github.com/joseph-ayodele/statements-ledger/internal/storage"
)

// app owns the database handle. The queue's lifecycle hooks open it before
// any worker runs and close it after the last one drains.
type app struct {
	cfg    *common.Config
	store  storage.BlobStore
	logger *slog.Logger

	db        *repo.DB
	processor *pipeline.Processor
}

func (a *app) open(ctx context.Context) error {
	db, err := repo.OpenFromConfig(ctx, a.cfg.Database, a.logger)
	if err != nil {
		return err
	}
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		db.Close()
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return err
	}
	p, err := pipeline.Build(a.cfg.Ingest, pipeline.Config{FinalizeTimeout: a.cfg.Worker.FinalizeTimeout}, db, a.store, a.logger)
	if err != nil {
		db.Close()
		return err
	}
	a.db = db
	a.processor = p
	return nil
}

func (a *app) close(context.Context) error {
	a.db.Close()
	return nil
}

func (a *app) ProcessFile(ctx context.Context, fileID uuid.UUID) (pipeline.Result, error) {
	return a.processor.ProcessFile(ctx, fileID)
}

func main() {
	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	clock, err := normalize.NewClock(cfg.Ingest.Timezone)
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewLocalStore(cfg.Storage.LocalPath, logger)
	if err != nil {
		logger.Error("failed to prepare storage", "path", cfg.Storage.LocalPath, "error", err)
		os.Exit(1)
	}
	a := &app{cfg: cfg, store: store, logger: logger}

	queue := async.NewProcessorQueue(a, logger,
		async.WithWorkers(cfg.Worker.Workers),
		async.WithQueueSize(cfg.Worker.QueueSize),
		async.WithProcessTimeout(cfg.Worker.ProcessTimeout),
		async.WithMaxAttempts(cfg.Worker.MaxAttempts),
		async.WithRetryBackoff(cfg.Worker.RetryBackoff),
		async.WithDeadLetter(func(_ context.Context, job async.Job, err error) {
			logger.Error("ingestion job dead-lettered", "file_id", job.FileID, "attempts", job.Attempt, "error", err)
		}),
		async.WithLifecycle(async.Hooks{OnStart: a.open, OnStop: a.close}),
	)
	if err := queue.Start(ctx); err != nil {
		logger.Error("failed to start ingestion queue", "error", err)
		os.Exit(1)
	}

	accounts := repo.NewAccountRepository(a.db, logger)
	files := repo.NewStatementFileRepository(a.db, logger)
	ingestSvc := ingest.NewService(accounts, files, store, queue, logger)
	exportSvc := export.NewService(repo.NewTransactionRepository(a.db, logger), clock.Location(), logger)

	api := server.NewAPI(ingestSvc, exportSvc, a.db, logger)
	api.MaxUploadBytes = cfg.Server.MaxUploadBytes
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := server.NewGRPC(a.db, cfg.Server.HealthInterval, logger)

	var sweeper *scheduler.Sweeper
	if cfg.Sweeper.Enabled {
		sweeper = scheduler.NewSweeper(files, queue, scheduler.Config{
			Schedule:     cfg.Sweeper.Schedule,
			PendingAfter: cfg.Sweeper.PendingAfter,
			StaleAfter:   cfg.Sweeper.StaleAfter,
			Location:     clock.Location(),
		}, logger)
		if err := sweeper.Start(ctx); err != nil {
			logger.Error("failed to start sweeper", "error", err)
			os.Exit(1)
		}
	}

	var wg sync.WaitGroup
	bgCtx, cancelBG := context.WithCancel(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		grpcServer.Monitor(bgCtx)
	}()

	if cfg.Ingest.InboxDir != "" {
		inbox := ingest.NewInbox(cfg.Ingest.InboxDir, ingest.NewFSIngestor(ingestSvc, logger), logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := inbox.Run(bgCtx); err != nil {
				logger.Error("inbox watcher failed", "error", err)
			}
		}()
	}

	go func() {
		if err := grpcServer.Serve(cfg.Server.GRPCAddr); err != nil {
			logger.Error("grpc serve failed", "error", err)
			stop()
		}
	}()
	go func() {
		logger.Info("HTTP serving", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	grpcServer.Stop()
	if sweeper != nil {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			logger.Warn("sweeper shutdown", "error", err)
		}
	}
	cancelBG()
	wg.Wait()

	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Error("queue shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
