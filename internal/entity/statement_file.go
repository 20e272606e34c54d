package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/constants"
)

// StatementFile is the ingestion record of one uploaded statement.
type StatementFile struct {
	ID           uuid.UUID            `json:"id"`
	AccountID    uuid.UUID            `json:"account_id"`
	Filename     string               `json:"filename"`
	FileExt      string               `json:"file_ext"`
	MediaType    string               `json:"media_type"`
	FileSize     int64                `json:"file_size"`
	ContentHash  string               `json:"content_hash"`
	StoragePath  string               `json:"-"`
	Status       constants.FileStatus `json:"status"`
	ErrorMessage *string              `json:"error_message,omitempty"`
	Outcome      *FileOutcome         `json:"result,omitempty"`
	UploadedAt   time.Time            `json:"uploaded_at"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
}

// FileOutcome is the result persisted on a SUCCESS record.
type FileOutcome struct {
	ProcessedRows int      `json:"processed_rows"`
	DroppedRows   int      `json:"dropped_rows"`
	InsertedRows  int      `json:"inserted_rows"`
	Warnings      []string `json:"warnings"`
}
