// Package scheduler runs periodic maintenance over ingestion records.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/internal/async"
	"github.com/joseph-ayodele/statements-ledger/internal/repository"
)

// AbandonedMessage is recorded on PROCESSING files the sweeper gives up on.
const AbandonedMessage = "processing abandoned"

const (
	DefaultSchedule  = "*/5 * * * *"
	DefaultBatchSize = 100
)

// Enqueuer re-submits files to the job broker.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}

// Config holds sweeper configuration.
type Config struct {
	Schedule string
	// PendingAfter re-enqueues PENDING files uploaded longer ago than this.
	PendingAfter time.Duration
	// StaleAfter fails PROCESSING files started longer ago than this.
	StaleAfter time.Duration
	BatchSize  int
	Location   *time.Location
}

// SweepStats is the outcome of one sweep.
type SweepStats struct {
	Requeued  int
	Abandoned int
}

// Sweeper recovers files stranded by a restart: queued jobs live in memory,
// so a PENDING record may have no job left, and a PROCESSING record may have
// lost its worker.
type Sweeper struct {
	files  repository.StatementFileRepository
	queue  Enqueuer
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewSweeper(files repository.StatementFileRepository, queue Enqueuer, cfg Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Sweeper{
		files:  files,
		queue:  queue,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start schedules RunOnce on the configured cron spec. Overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	cl := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	runCtx := context.WithoutCancel(ctx)
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunOnce(runCtx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}
	}); err != nil {
		s.logger.Error("invalid sweep schedule", "schedule", s.cfg.Schedule, "error", err)
		return err
	}
	c.Start()
	s.cron = c
	s.logger.Info("sweeper started", "schedule", s.cfg.Schedule,
		"pending_after", s.cfg.PendingAfter, "stale_after", s.cfg.StaleAfter)
	return nil
}

// Stop halts scheduling and waits for a running sweep, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		s.logger.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one sweep. Transitions lost to a concurrent worker are
// not errors.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := s.now().UTC()
	var errs []error

	if s.cfg.StaleAfter > 0 {
		stale, err := s.files.ListByStatus(ctx, constants.FileStatusProcessing, now.Add(-s.cfg.StaleAfter), s.cfg.BatchSize)
		if err != nil {
			errs = append(errs, err)
		}
		for _, f := range stale {
			err := s.files.MarkFailed(ctx, f.ID, AbandonedMessage, now)
			switch {
			case err == nil:
				stats.Abandoned++
				s.logger.Warn("sweeper.abandoned", "file_id", f.ID, "started_at", f.StartedAt)
			case errors.Is(err, repository.ErrLostTransition):
			default:
				errs = append(errs, err)
			}
		}
	}

	if s.cfg.PendingAfter > 0 && s.queue != nil {
		pending, err := s.files.ListByStatus(ctx, constants.FileStatusPending, now.Add(-s.cfg.PendingAfter), s.cfg.BatchSize)
		if err != nil {
			errs = append(errs, err)
		}
		for _, f := range pending {
			if err := s.queue.Enqueue(ctx, async.Job{FileID: f.ID}); err != nil {
				errs = append(errs, err)
				if errors.Is(err, async.ErrQueueClosed) {
					break
				}
				continue
			}
			stats.Requeued++
		}
	}

	if stats.Requeued > 0 || stats.Abandoned > 0 {
		s.logger.Info("sweeper.done", "requeued", stats.Requeued, "abandoned", stats.Abandoned)
	}
	return stats, errors.Join(errs...)
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
