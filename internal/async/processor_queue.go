package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/statements-ledger/internal/common"
)

// ProcessorQueue is an in-process worker pool. Jobs whose processing returns
// an error are retried with linear backoff up to MaxAttempts, then handed to
// the dead-letter callback.
type ProcessorQueue struct {
	proc        FileProcessor
	logger      *slog.Logger
	workers     int
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	deadLetter  DeadLetterFunc
	hooks       []Hooks

	ch      chan Job
	stop    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool

	mu     sync.Mutex
	closed bool

	processed atomic.Int64
	failed    atomic.Int64
	dead      atomic.Int64
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func WithRetryBackoff(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d >= 0 {
			q.backoff = d
		}
	}
}

func WithDeadLetter(fn DeadLetterFunc) Option {
	return func(q *ProcessorQueue) {
		q.deadLetter = fn
	}
}

// WithLifecycle registers start/stop callbacks. It may be given more than once.
func WithLifecycle(h Hooks) Option {
	return func(q *ProcessorQueue) {
		q.hooks = append(q.hooks, h)
	}
}

func NewProcessorQueue(proc FileProcessor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:        proc,
		logger:      logger,
		workers:     4,
		timeout:     3 * time.Minute,
		maxAttempts: 1,
		backoff:     2 * time.Second,
		ch:          make(chan Job, 256),
		stop:        make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Start runs the OnStart hooks in registration order and then launches the
// workers. A failing hook aborts the start and no worker runs.
func (q *ProcessorQueue) Start(ctx context.Context) error {
	if !q.started.CompareAndSwap(false, true) {
		return nil
	}
	for i, h := range q.hooks {
		if h.OnStart == nil {
			continue
		}
		if err := h.OnStart(ctx); err != nil {
			q.started.Store(false)
			q.logger.Error("start hook failed", "hook", i, "error", err)
			return fmt.Errorf("start hook %d: %w", i, err)
		}
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(i + 1)
	}
	q.logger.Info("queue started", "workers", q.workers, "capacity", cap(q.ch), "max_attempts", q.maxAttempts)
	return nil
}

func (q *ProcessorQueue) work(workerID int) {
	defer q.wg.Done()
	q.logger.Info("worker started", "worker_id", workerID)
	for job := range q.ch {
		q.handle(workerID, job)
	}
	q.logger.Info("worker stopped", "worker_id", workerID)
}

// handle delivers job until it succeeds, attempts run out, or the queue stops.
func (q *ProcessorQueue) handle(workerID int, job Job) {
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	logger := q.logger.With("worker_id", workerID, "file_id", job.FileID)
	for {
		err := q.deliver(logger, job)
		if err == nil {
			q.processed.Add(1)
			return
		}
		q.failed.Add(1)
		logger.Error("processing failed", "attempt", job.Attempt, "error", err)

		if job.Attempt >= q.maxAttempts {
			q.bury(logger, job, err)
			return
		}
		wait := q.backoff * time.Duration(job.Attempt)
		select {
		case <-q.stop:
			logger.Warn("queue stopping, retry abandoned", "attempt", job.Attempt)
			q.bury(logger, job, err)
			return
		case <-time.After(wait):
		}
		job.Attempt++
	}
}

func (q *ProcessorQueue) deliver(logger *slog.Logger, job Job) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	ctx = common.WithLogger(ctx, logger)
	if job.TraceID != "" {
		ctx = common.WithTraceID(ctx, job.TraceID)
	}
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("processor panic: %v", v)
		}
	}()

	res, err := q.proc.ProcessFile(ctx, job.FileID)
	if err != nil {
		return err
	}
	switch {
	case res.Error != "":
		logger.Warn("job dropped", "reason", res.Error)
	case res.Skipped:
		logger.Info("job skipped", "status", res.Status)
	default:
		logger.Info("processed file successfully", "status", res.Status, "processed_rows", res.ProcessedRows, "attempt", job.Attempt)
	}
	return nil
}

func (q *ProcessorQueue) bury(logger *slog.Logger, job Job, err error) {
	q.dead.Add(1)
	logger.Error("job dead-lettered", "attempts", job.Attempt, "error", err)
	if q.deadLetter != nil {
		q.deadLetter(context.Background(), job, err)
	}
}

// Enqueue hands job to the workers, blocking while the buffer is full until
// ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "file_id", job.FileID)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	if job.TraceID == "" {
		job.TraceID = common.TraceIDFromContext(ctx)
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued file for processing", "file_id", job.FileID)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "file_id", job.FileID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake, waits for in-flight jobs (retries included) and then
// runs the OnStop hooks in reverse order. Hooks run even when ctx ends before
// the drain does.
func (q *ProcessorQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	var errs []error
	if q.started.Load() {
		done := make(chan struct{})
		go func() { defer close(done); q.wg.Wait() }()

		select {
		case <-ctx.Done():
			// Pending retries give up once the drain deadline passes.
			close(q.stop)
			q.logger.Warn("shutdown interrupted by context")
			errs = append(errs, ctx.Err())
		case <-done:
			q.logger.Info("queue drained, shutdown complete")
		}
	}

	for i := len(q.hooks) - 1; i >= 0; i-- {
		if stop := q.hooks[i].OnStop; stop != nil {
			if err := stop(ctx); err != nil {
				q.logger.Error("stop hook failed", "hook", i, "error", err)
				errs = append(errs, fmt.Errorf("stop hook %d: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Stats reports lifetime counters.
type Stats struct {
	Processed    int64 `json:"processed"`
	Failed       int64 `json:"failed_attempts"`
	DeadLettered int64 `json:"dead_lettered"`
	Pending      int   `json:"pending"`
}

func (q *ProcessorQueue) Stats() Stats {
	return Stats{
		Processed:    q.processed.Load(),
		Failed:       q.failed.Load(),
		DeadLettered: q.dead.Load(),
		Pending:      len(q.ch),
	}
}
