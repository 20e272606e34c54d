package repository

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/db/schema"
	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
)

type StatementFileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.StatementFile, error)
	GetByHash(ctx context.Context, contentHash string) (*entity.StatementFile, error)
	Create(ctx context.Context, f *entity.StatementFile) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*entity.StatementFile, error)
	ListByStatus(ctx context.Context, status constants.FileStatus, olderThan time.Time, limit int) ([]*entity.StatementFile, error)

	// MarkProcessing moves a PENDING record to PROCESSING. It reports false
	// when the record was not PENDING.
	MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkSuccess(ctx context.Context, id uuid.UUID, outcome entity.FileOutcome, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error
}

type statementFileRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewStatementFileRepository(db *DB, logger *slog.Logger) StatementFileRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &statementFileRepo{
		db:     db,
		logger: logger,
	}
}

var fileColumns = []string{
	"id", "account_id", "filename", "file_ext", "media_type", "file_size", "content_hash",
	"storage_path", "status", "error_message", "processed_rows", "dropped_rows", "inserted_rows",
	"warnings", "uploaded_at", "started_at", "finished_at",
}

func scanFile(rows *entsql.Rows) (*entity.StatementFile, error) {
	var (
		f                           entity.StatementFile
		status                      string
		errMsg, warnings            stdsql.NullString
		processed, dropped, inserts stdsql.NullInt64
		started, finished           stdsql.NullTime
	)
	if err := rows.Scan(
		&f.ID, &f.AccountID, &f.Filename, &f.FileExt, &f.MediaType, &f.FileSize, &f.ContentHash,
		&f.StoragePath, &status, &errMsg, &processed, &dropped, &inserts,
		&warnings, &f.UploadedAt, &started, &finished,
	); err != nil {
		return nil, err
	}
	f.Status = constants.FileStatus(status)
	f.ErrorMessage = stringPtr(errMsg)
	if processed.Valid {
		out := &entity.FileOutcome{
			ProcessedRows: int(processed.Int64),
			DroppedRows:   int(dropped.Int64),
			InsertedRows:  int(inserts.Int64),
			Warnings:      []string{},
		}
		if warnings.Valid && warnings.String != "" {
			if err := json.Unmarshal([]byte(warnings.String), &out.Warnings); err != nil {
				return nil, fmt.Errorf("decode warnings: %w", err)
			}
		}
		f.Outcome = out
	}
	if started.Valid {
		t := started.Time.UTC()
		f.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time.UTC()
		f.FinishedAt = &t
	}
	f.UploadedAt = f.UploadedAt.UTC()
	return &f, nil
}

func (r *statementFileRepo) getOne(ctx context.Context, p *entsql.Predicate) (*entity.StatementFile, error) {
	b := r.db.builder()
	query, args := b.Select(fileColumns...).
		From(b.Table(schema.StatementFilesTable)).
		Where(p).
		Limit(1).
		Query()

	var out *entity.StatementFile
	err := queryEach(ctx, r.db.drv, query, args, func(rows *entsql.Rows) error {
		f, err := scanFile(rows)
		out = f
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, common.ErrNotFound
	}
	return out, nil
}

func (r *statementFileRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.StatementFile, error) {
	f, err := r.getOne(ctx, entsql.EQ("id", id))
	if err != nil && err != common.ErrNotFound {
		r.logger.Error("failed to get statement file", "file_id", id, "error", err)
	}
	return f, err
}

func (r *statementFileRepo) GetByHash(ctx context.Context, contentHash string) (*entity.StatementFile, error) {
	f, err := r.getOne(ctx, entsql.EQ("content_hash", contentHash))
	if err != nil && err != common.ErrNotFound {
		r.logger.Error("failed to get statement file by hash", "content_hash", contentHash, "error", err)
	}
	return f, err
}

// Create inserts a PENDING record. A content-hash collision is reported as a
// *common.DuplicateContentError carrying the existing file id when it can be read.
func (r *statementFileRepo) Create(ctx context.Context, f *entity.StatementFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	f.Status = constants.FileStatusPending

	query, args := r.db.builder().Insert(schema.StatementFilesTable).
		Columns("id", "account_id", "filename", "file_ext", "media_type", "file_size", "content_hash", "storage_path", "status", "uploaded_at").
		Values(f.ID, f.AccountID, f.Filename, f.FileExt, f.MediaType, f.FileSize, f.ContentHash, f.StoragePath, string(f.Status), f.UploadedAt).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		if isUniqueViolation(err) {
			dup := &common.DuplicateContentError{ContentHash: f.ContentHash}
			if existing, gerr := r.GetByHash(ctx, f.ContentHash); gerr == nil {
				dup.ExistingFileID = existing.ID
			}
			r.logger.Warn("statement content already stored", "content_hash", f.ContentHash, "existing_file_id", dup.ExistingFileID)
			return dup
		}
		r.logger.Error("failed to create statement file", "account_id", f.AccountID, "filename", f.Filename, "error", err)
		return fmt.Errorf("insert statement file: %w", err)
	}
	return nil
}

func (r *statementFileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	query, args := r.db.builder().Delete(schema.StatementFilesTable).Where(entsql.EQ("id", id)).Query()
	n, err := execAffected(ctx, r.db.drv, query, args)
	if err != nil {
		r.logger.Error("failed to delete statement file", "file_id", id, "error", err)
		return fmt.Errorf("delete statement file: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *statementFileRepo) list(ctx context.Context, p *entsql.Predicate, limit int) ([]*entity.StatementFile, error) {
	b := r.db.builder()
	sel := b.Select(fileColumns...).
		From(b.Table(schema.StatementFilesTable)).
		Where(p).
		OrderBy(entsql.Asc("uploaded_at"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()

	var out []*entity.StatementFile
	err := queryEach(ctx, r.db.drv, query, args, func(rows *entsql.Rows) error {
		f, err := scanFile(rows)
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

func (r *statementFileRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*entity.StatementFile, error) {
	out, err := r.list(ctx, entsql.EQ("account_id", accountID), 0)
	if err != nil {
		r.logger.Error("failed to list statement files", "account_id", accountID, "error", err)
	}
	return out, err
}

func (r *statementFileRepo) ListByStatus(ctx context.Context, status constants.FileStatus, olderThan time.Time, limit int) ([]*entity.StatementFile, error) {
	ts := "uploaded_at"
	if status == constants.FileStatusProcessing {
		ts = "started_at"
	}
	out, err := r.list(ctx, entsql.And(
		entsql.EQ("status", string(status)),
		entsql.LT(ts, olderThan.UTC()),
	), limit)
	if err != nil {
		r.logger.Error("failed to list statement files by status", "status", status, "error", err)
	}
	return out, err
}

func (r *statementFileRepo) MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query, args := r.db.builder().Update(schema.StatementFilesTable).
		Set("status", string(constants.FileStatusProcessing)).
		Set("started_at", at.UTC()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(constants.FileStatusPending)),
		)).
		Query()
	n, err := execAffected(ctx, r.db.drv, query, args)
	if err != nil {
		r.logger.Error("failed to claim statement file", "file_id", id, "error", err)
		return false, fmt.Errorf("claim statement file: %w", err)
	}
	return n == 1, nil
}

func (r *statementFileRepo) MarkSuccess(ctx context.Context, id uuid.UUID, outcome entity.FileOutcome, at time.Time) error {
	warnings := outcome.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	encoded, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	query, args := r.db.builder().Update(schema.StatementFilesTable).
		Set("status", string(constants.FileStatusSuccess)).
		Set("processed_rows", outcome.ProcessedRows).
		Set("dropped_rows", outcome.DroppedRows).
		Set("inserted_rows", outcome.InsertedRows).
		Set("warnings", string(encoded)).
		Set("finished_at", at.UTC()).
		SetNull("error_message").
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(constants.FileStatusProcessing)),
		)).
		Query()
	return r.finish(ctx, id, constants.FileStatusSuccess, query, args)
}

func (r *statementFileRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	if len(message) > constants.MaxErrorMessageLength {
		message = strings.ToValidUTF8(message[:constants.MaxErrorMessageLength], "")
	}
	query, args := r.db.builder().Update(schema.StatementFilesTable).
		Set("status", string(constants.FileStatusFailed)).
		Set("error_message", message).
		Set("finished_at", at.UTC()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(constants.FileStatusProcessing)),
		)).
		Query()
	return r.finish(ctx, id, constants.FileStatusFailed, query, args)
}

func (r *statementFileRepo) finish(ctx context.Context, id uuid.UUID, to constants.FileStatus, query string, args []any) error {
	n, err := execAffected(ctx, r.db.drv, query, args)
	if err != nil {
		r.logger.Error("failed to finalize statement file", "file_id", id, "status", to, "error", err)
		return fmt.Errorf("finalize statement file: %w", err)
	}
	if n == 0 {
		r.logger.Warn("statement file was not processing; status unchanged", "file_id", id, "status", to)
		return ErrLostTransition
	}
	return nil
}
