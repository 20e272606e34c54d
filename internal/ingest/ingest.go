// Package ingest accepts raw statement files, deduplicates them by content,
// stores their bytes and queues them for processing.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/internal/async"
)

// UploadRequest is one statement file handed to the service.
type UploadRequest struct {
	AccountID uuid.UUID
	Filename  string
	MediaType string // optional; derived from the extension when empty
	Content   []byte
}

// UploadResult describes the stored ingestion record.
type UploadResult struct {
	FileID      uuid.UUID `json:"file_id"`
	ContentHash string    `json:"content_hash"`
	FileExt     string    `json:"file_ext"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Enqueued    bool      `json:"enqueued"`
}

// IngestionResult is the per-file outcome of a filesystem ingest.
type IngestionResult struct {
	SourcePath   string    `json:"source_path"`
	FileID       uuid.UUID `json:"file_id,omitempty"`
	Deduplicated bool      `json:"deduplicated"`
	HashHex      string    `json:"hash,omitempty"`
	FileExt      string    `json:"file_ext,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at,omitempty"`
	Err          string    `json:"error,omitempty"`
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32 `json:"scanned"`
	Matched      uint32 `json:"matched"`
	Succeeded    uint32 `json:"succeeded"`
	Deduplicated uint32 `json:"deduplicated"`
	Failed       uint32 `json:"failed"`
}

// Ingestor uploads statements found on the local filesystem.
type Ingestor interface {
	IngestPath(ctx context.Context, accountID uuid.UUID, path string) (IngestionResult, error)
	IngestDirectory(ctx context.Context, accountID uuid.UUID, root string, skipHidden bool) ([]IngestionResult, DirStats, error)
}

// Enqueuer is the part of the job broker the upload path needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}
