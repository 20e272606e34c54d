package pipeline

import (
	"log/slog"

	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/counterparty"
	"github.com/joseph-ayodele/statements-ledger/internal/normalize"
	"github.com/joseph-ayodele/statements-ledger/internal/repository"
	"github.com/joseph-ayodele/statements-ledger/internal/storage"
)

// Build wires a Processor from ingest configuration: the optional layout
// override file, the counterparty classifier, and both stages.
func Build(cfg common.IngestConfig, pcfg Config, db *repository.DB, store storage.BlobStore, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	layout := normalize.DefaultLayout()
	if cfg.LayoutsFile != "" {
		l, err := normalize.LoadLayoutFile(cfg.LayoutsFile)
		if err != nil {
			return nil, common.NewAppError("CONFIG_ERROR", "load layouts file "+cfg.LayoutsFile, err)
		}
		layout = l
		logger.Info("loaded column layout overrides", "path", cfg.LayoutsFile)
	}

	n, err := normalize.New(normalize.Options{
		Layout:          layout,
		Timezone:        cfg.Timezone,
		DefaultCurrency: cfg.DefaultCurrency,
	}, logger)
	if err != nil {
		return nil, err
	}

	classifier, err := counterparty.ClassifierByName(cfg.Classifier)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", err.Error(), common.ErrInvalidInput)
	}

	files := repository.NewStatementFileRepository(db, logger)
	resolver := counterparty.NewResolver(repository.NewCounterpartyRepository(db, logger), classifier, logger)
	read := NewReadStage(store, n, logger)
	persist := NewPersistStage(resolver, repository.NewTransactionRepository(db, logger), cfg.ChunkSize, logger)
	return NewProcessor(logger, pcfg, files, read, persist), nil
}
