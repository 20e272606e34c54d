package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
	"github.com/joseph-ayodele/statements-ledger/internal/normalize"
	"github.com/joseph-ayodele/statements-ledger/internal/storage"
	"github.com/joseph-ayodele/statements-ledger/internal/tabular"
)

// ReadStage loads a stored statement and normalizes it into canonical rows.
type ReadStage struct {
	Store      storage.BlobStore
	Normalizer *normalize.Normalizer
	Logger     *slog.Logger
}

func NewReadStage(store storage.BlobStore, n *normalize.Normalizer, logger *slog.Logger) *ReadStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadStage{Store: store, Normalizer: n, Logger: logger}
}

// Run reads the file's bytes, decodes the table and normalizes it. Rows
// without a bank-issued id get a deterministic synthetic one.
func (s *ReadStage) Run(ctx context.Context, file *entity.StatementFile) (*normalize.Report, error) {
	logger := common.LoggerFromContext(ctx, s.Logger)

	rc, err := s.Store.Open(ctx, file.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open statement: %w", err)
	}
	defer rc.Close()

	tbl, err := tabular.Read(rc, file.FileExt, tabular.WithHeaderRow(s.Normalizer.Layout().LooksLikeHeader))
	if err != nil {
		return nil, fmt.Errorf("read statement: %w", err)
	}
	logger.Debug("read.stage.loaded", "ext", file.FileExt, "columns", len(tbl.Header), "rows", tbl.Len())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := s.Normalizer.Normalize(ctx, tbl)
	if n := normalize.AssignSyntheticIDs(file.AccountID, rep.Rows); n > 0 {
		rep.Warnf("%d rows had no bank transaction id; synthetic ids assigned", n)
	}
	return rep, nil
}
