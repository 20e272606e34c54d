// Package pipeline drives one statement file through reading, normalization,
// counterparty resolution and persistence, and owns the file's status
// transitions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
	"github.com/joseph-ayodele/statements-ledger/internal/repository"
)

// FileNotFoundMessage is reported in Result.Error when the record is gone.
const FileNotFoundMessage = "statement file not found"

const (
	defaultFinalizeTimeout = 10 * time.Second
	finalizeAttempts       = 2
)

// Result is what a caller learns about one ProcessFile call.
type Result struct {
	FileID         uuid.UUID            `json:"file_id"`
	Status         constants.FileStatus `json:"status,omitempty"`
	ProcessedRows  int                  `json:"processed_rows"`
	DroppedRows    int                  `json:"dropped_rows"`
	InsertedRows   int                  `json:"inserted_rows"`
	SkippedRows    int                  `json:"skipped_rows"`
	Counterparties int                  `json:"counterparties"`
	Warnings       []string             `json:"warnings,omitempty"`
	// Skipped is set when the file was not PENDING and nothing ran.
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Config struct {
	// FinalizeTimeout bounds the status write after the job's own context
	// has ended.
	FinalizeTimeout time.Duration
}

// Processor runs ReadStage then PersistStage for one file id.
type Processor struct {
	logger  *slog.Logger
	cfg     Config
	files   repository.StatementFileRepository
	read    *ReadStage
	persist *PersistStage
	now     func() time.Time
}

func NewProcessor(
	logger *slog.Logger,
	cfg Config,
	files repository.StatementFileRepository,
	read *ReadStage,
	persist *PersistStage,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = defaultFinalizeTimeout
	}
	return &Processor{
		logger:  logger,
		cfg:     cfg,
		files:   files,
		read:    read,
		persist: persist,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ProcessFile ingests one statement file. It is safe to call again for the
// same id: only a PENDING file is claimed, and a repeated call is a no-op.
//
// A missing record yields a Result carrying FileNotFoundMessage and a nil error.
// Any pipeline failure marks the file FAILED and is returned so the queue's
// retry policy can apply.
func (p *Processor) ProcessFile(ctx context.Context, fileID uuid.UUID) (res Result, err error) {
	res = Result{FileID: fileID}
	logger := common.LoggerFromContext(ctx, p.logger).With("file_id", fileID)
	ctx = common.WithLogger(ctx, logger)

	file, err := p.files.GetByID(ctx, fileID)
	if errors.Is(err, common.ErrNotFound) {
		logger.Warn("processor.file.missing")
		res.Error = FileNotFoundMessage
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("get statement file: %w", err)
	}

	claimed, err := p.files.MarkProcessing(ctx, fileID, p.now())
	if err != nil {
		return res, err
	}
	if !claimed {
		res.Skipped = true
		res.Status = file.Status
		if cur, gerr := p.files.GetByID(ctx, fileID); gerr == nil {
			res.Status = cur.Status
		}
		logger.Info("processor.skip.not_pending", "status", res.Status)
		return res, nil
	}
	res.Status = constants.FileStatusProcessing
	logger.Info("processor.start", "account_id", file.AccountID, "filename", file.Filename)
	started := time.Now()

	outcome, err := p.run(ctx, file, &res)
	if err != nil {
		return p.fail(ctx, logger, res, err)
	}

	if err := p.markSuccess(ctx, logger, fileID, outcome); err != nil {
		// The ledger rows are already committed; only the status write is missing.
		logger.Error("processor.finalize.failed", "err", err, "batch_committed", true, "inserted", res.InsertedRows)
		return res, fmt.Errorf("mark success after committed batch: %w", err)
	}
	res.Status = constants.FileStatusSuccess
	logger.Info("processor.ok",
		"processed", res.ProcessedRows,
		"dropped", res.DroppedRows,
		"inserted", res.InsertedRows,
		"skipped", res.SkippedRows,
		"counterparties", res.Counterparties,
		"warnings", len(res.Warnings),
		"elapsed", time.Since(started),
	)
	return res, nil
}

func (p *Processor) run(ctx context.Context, file *entity.StatementFile, res *Result) (out entity.FileOutcome, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic during ingestion: %v", v)
		}
	}()

	rep, err := p.read.Run(ctx, file)
	if err != nil {
		return out, err
	}
	res.ProcessedRows = rep.Processed()
	res.DroppedRows = len(rep.Dropped)
	res.Warnings = rep.Warnings

	persisted, err := p.persist.Run(ctx, file, rep)
	if err != nil {
		return out, err
	}
	res.InsertedRows = persisted.Inserted
	res.SkippedRows = persisted.Skipped
	res.Counterparties = persisted.Counterparties
	if res.SkippedRows > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d transactions already in the ledger were skipped", res.SkippedRows))
	}

	return entity.FileOutcome{
		ProcessedRows: res.ProcessedRows,
		DroppedRows:   res.DroppedRows,
		InsertedRows:  res.InsertedRows,
		Warnings:      res.Warnings,
	}, nil
}

// markSuccess writes the SUCCESS transition, retrying once unless the record
// has already left PROCESSING.
func (p *Processor) markSuccess(ctx context.Context, logger *slog.Logger, fileID uuid.UUID, outcome entity.FileOutcome) error {
	var err error
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		fctx, cancel := p.finalizeContext(ctx)
		err = p.files.MarkSuccess(fctx, fileID, outcome, p.now())
		cancel()
		if err == nil || errors.Is(err, repository.ErrLostTransition) {
			return err
		}
		logger.Warn("processor.finalize.retry", "attempt", attempt, "err", err)
	}
	return err
}

// fail records the error on the file and hands it back to the caller.
func (p *Processor) fail(ctx context.Context, logger *slog.Logger, res Result, cause error) (Result, error) {
	logger.Error("processor.failed", "err", cause)
	res.Status = constants.FileStatusFailed
	res.Error = cause.Error()

	fctx, cancel := p.finalizeContext(ctx)
	defer cancel()
	if err := p.files.MarkFailed(fctx, res.FileID, cause.Error(), p.now()); err != nil {
		logger.Error("processor.mark_failed.failed", "err", err)
		return res, errors.Join(cause, fmt.Errorf("mark failed: %w", err))
	}
	return res, cause
}

// finalizeContext outlives a cancelled or expired job context so the final
// status still lands.
func (p *Processor) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FinalizeTimeout)
}
