package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/internal/async"
	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
	"github.com/joseph-ayodele/statements-ledger/internal/repository"
	"github.com/joseph-ayodele/statements-ledger/internal/storage"
)

// Service is the upload handler: it dedups by content, stores bytes, records
// a PENDING ingestion and hands the file id to the broker.
type Service struct {
	Accounts repository.AccountRepository
	Files    repository.StatementFileRepository
	Store    storage.BlobStore
	Queue    Enqueuer
	logger   *slog.Logger
}

func NewService(
	accounts repository.AccountRepository,
	files repository.StatementFileRepository,
	store storage.BlobStore,
	queue Enqueuer,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Accounts: accounts,
		Files:    files,
		Store:    store,
		Queue:    queue,
		logger:   logger,
	}
}

// Upload stores a statement and queues it. A failed enqueue leaves the record
// PENDING with Enqueued=false; the sweeper picks it up later.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	var out UploadResult
	logger := common.LoggerFromContext(ctx, s.logger)

	ext := constants.NormalizeExt(filepath.Ext(req.Filename))
	if !constants.IsAllowedExt(ext) {
		logger.Warn("rejected upload with unsupported extension", "filename", req.Filename, "ext", ext)
		return out, common.UnsupportedFormatError(ext)
	}

	v := common.NewValidator().
		Field("account_id", req.AccountID, common.Required).
		Field("filename", req.Filename, common.Required, common.MaxLength(constants.MaxFilenameLength)).
		Field("content", req.Content, common.Required)
	if err := v.Error(); err != nil {
		return out, err
	}

	exists, err := s.Accounts.Exists(ctx, req.AccountID)
	if err != nil {
		return out, common.NewAppError("DATABASE_ERROR", "check account", errors.Join(common.ErrDatabase, err))
	}
	if !exists {
		return out, common.NewAppError("ACCOUNT_NOT_FOUND", fmt.Sprintf("account %s does not exist", req.AccountID), common.ErrNotFound)
	}

	sum := sha256.Sum256(req.Content)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.Files.GetByHash(ctx, hash)
	switch {
	case err == nil:
		logger.Info("duplicate statement upload", "content_hash", hash, "existing_file_id", existing.ID)
		return out, &common.DuplicateContentError{ExistingFileID: existing.ID, ContentHash: hash}
	case !errors.Is(err, common.ErrNotFound):
		return out, common.NewAppError("DATABASE_ERROR", "look up content hash", errors.Join(common.ErrDatabase, err))
	}

	path, created, err := s.Store.Put(ctx, hash+"."+ext, req.Content)
	if err != nil {
		logger.Error("failed to store statement bytes", "content_hash", hash, "error", err)
		return out, common.WrapError(err, "store statement")
	}

	mediaType := strings.TrimSpace(req.MediaType)
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = constants.MediaTypes[ext]
	}
	rec := &entity.StatementFile{
		AccountID:   req.AccountID,
		Filename:    filepath.Base(req.Filename),
		FileExt:     ext,
		MediaType:   mediaType,
		FileSize:    int64(len(req.Content)),
		ContentHash: hash,
		StoragePath: path,
	}
	if err := s.Files.Create(ctx, rec); err != nil {
		// Bytes already present belong to whoever wrote them first.
		if created {
			if derr := s.Store.Delete(context.WithoutCancel(ctx), path); derr != nil {
				logger.Warn("failed to remove orphaned statement bytes", "path", path, "error", derr)
			}
		}
		var dup *common.DuplicateContentError
		if errors.As(err, &dup) {
			return out, dup
		}
		return out, common.NewAppError("DATABASE_ERROR", "create statement file", errors.Join(common.ErrDatabase, err))
	}

	out = UploadResult{
		FileID:      rec.ID,
		ContentHash: hash,
		FileExt:     ext,
		UploadedAt:  rec.UploadedAt,
	}
	logger.Info("statement uploaded", "file_id", rec.ID, "account_id", rec.AccountID, "filename", rec.Filename, "size", rec.FileSize)

	if s.Queue == nil {
		return out, nil
	}
	job := async.Job{FileID: rec.ID, TraceID: common.TraceIDFromContext(ctx)}
	if err := s.Queue.Enqueue(ctx, job); err != nil {
		logger.Warn("failed to enqueue statement; left pending", "file_id", rec.ID, "error", err)
		return out, nil
	}
	out.Enqueued = true
	return out, nil
}

// Get returns the ingestion record, including its result once finished.
func (s *Service) Get(ctx context.Context, fileID uuid.UUID) (*entity.StatementFile, error) {
	f, err := s.Files.GetByID(ctx, fileID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewAppError("FILE_NOT_FOUND", fmt.Sprintf("statement file %s not found", fileID), common.ErrNotFound)
	}
	return f, err
}

func (s *Service) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*entity.StatementFile, error) {
	return s.Files.ListByAccount(ctx, accountID)
}

// Delete removes the record and then its stored bytes. Files being processed
// cannot be deleted; ledger transactions already written are kept.
func (s *Service) Delete(ctx context.Context, fileID uuid.UUID) error {
	logger := common.LoggerFromContext(ctx, s.logger)

	f, err := s.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if f.Status == constants.FileStatusProcessing {
		return common.NewAppError("FILE_BUSY", fmt.Sprintf("statement file %s is being processed", fileID), common.ErrConflict)
	}
	if err := s.Files.Delete(ctx, fileID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewAppError("FILE_NOT_FOUND", fmt.Sprintf("statement file %s not found", fileID), common.ErrNotFound)
		}
		return err
	}
	if err := s.Store.Delete(ctx, f.StoragePath); err != nil {
		logger.Warn("statement record deleted but bytes remain", "file_id", fileID, "path", f.StoragePath, "error", err)
	}
	logger.Info("statement file deleted", "file_id", fileID, "status", f.Status)
	return nil
}
