package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/internal/common"
)

// FSIngestor uploads statements read from the local filesystem through the
// same Service the HTTP API uses.
type FSIngestor struct {
	Service *Service
	// MaxBytes skips files larger than this; zero means no limit.
	MaxBytes int64
	logger   *slog.Logger
}

func NewFSIngestor(svc *Service, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{
		Service: svc,
		logger:  logger,
	}
}

// IngestPath uploads one file. A duplicate is not an error: the result points
// at the existing record with Deduplicated set.
func (i *FSIngestor) IngestPath(ctx context.Context, accountID uuid.UUID, path string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		i.logger.Error("abs path error", "path", path, "error", err)
		return out, err
	}
	out.SourcePath = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if !AllowedExt(ext) {
		i.logger.Warn("unsupported or missing extension", "path", abs, "ext", ext)
		return out, common.UnsupportedFormatError(ext)
	}
	out.FileExt = ext

	st, err := os.Stat(abs)
	if err != nil {
		return out, err
	}
	if i.MaxBytes > 0 && st.Size() > i.MaxBytes {
		return out, common.NewAppError("FILE_TOO_LARGE", fmt.Sprintf("%s is %d bytes; limit is %d", abs, st.Size(), i.MaxBytes), common.ErrInvalidInput)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		i.logger.Error("read error", "path", abs, "error", err)
		return out, err
	}

	res, err := i.Service.Upload(ctx, UploadRequest{
		AccountID: accountID,
		Filename:  filepath.Base(abs),
		Content:   data,
	})
	var dup *common.DuplicateContentError
	switch {
	case errors.As(err, &dup):
		out.FileID = dup.ExistingFileID
		out.HashHex = dup.ContentHash
		out.Deduplicated = true
		return out, nil
	case err != nil:
		return out, err
	}

	out.FileID = res.FileID
	out.HashHex = res.ContentHash
	out.UploadedAt = res.UploadedAt
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested, and uploads
// every statement-looking file. Per-file failures are collected, not returned.
func (i *FSIngestor) IngestDirectory(
	ctx context.Context,
	accountID uuid.UUID,
	root string,
	skipHidden bool,
) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.NewAppError("VALIDATION_ERROR", "root path is required", common.ErrValidation)
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, accountID, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}

	i.logger.Info("directory ingested", "root", root, "account_id", accountID,
		"matched", stats.Matched, "succeeded", stats.Succeeded, "deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return results, stats, nil
}
