package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has begun.
var ErrQueueClosed = errors.New("queue is shut down")

// Job asks for one statement file to be ingested.
type Job struct {
	FileID      uuid.UUID
	Attempt     int // 1-based delivery count
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context) error
}

// FileProcessor is the work a queue delivers jobs to.
type FileProcessor interface {
	ProcessFile(ctx context.Context, fileID uuid.UUID) (pipeline.Result, error)
}

// Hooks are lifecycle callbacks composed onto a queue. OnStart runs before
// workers launch; OnStop runs after they have drained.
type Hooks struct {
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// DeadLetterFunc receives jobs that failed on every attempt.
type DeadLetterFunc func(ctx context.Context, job Job, err error)
