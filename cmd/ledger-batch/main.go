package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
	"github.com/joseph-ayodele/statements-ledger/internal/export"
	"github.com/joseph-ayodele/statements-ledger/internal/ingest"
	"github.com/joseph-ayodele/statements-ledger/internal/normalize"
	"github.com/joseph-ayodele/statements-ledger/internal/pipeline"
	repo "github.com/joseph-ayodele/statements-ledger/internal/repository"
	"github.com/joseph-ayodele/statements-ledger/internal/storage"
)

const batchAccountNumber = "local-batch"

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func parseDate(flagName, v string) *time.Time {
	if v == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", v)
	if err != nil {
		printError("Error: invalid --%s date format, use YYYY-MM-DD: %v\n", flagName, err)
		os.Exit(1)
	}
	return &parsed
}

func main() {
	// Parse CLI flags
	var (
		inmem      = flag.Bool("inmem", false, "use in-memory SQLite database")
		dir        = flag.String("dir", "", "directory to ingest statements from (required)")
		accountStr = flag.String("account", "", "account id to ingest into (default: a local batch account)")
		out        = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		fromStr    = flag.String("from", "", "from date YYYY-MM-DD")
		toStr      = flag.String("to", "", "to date YYYY-MM-DD")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "transactions.xlsx")
	}
	from := parseDate("from", *fromStr)
	to := parseDate("to", *toStr)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := common.LoadConfig()

	var (
		db  *repo.DB
		err error
	)
	if *inmem {
		db, err = repo.OpenSQLite(ctx, ":memory:", logger)
	} else {
		db, err = repo.OpenFromConfig(ctx, cfg.Database, logger)
	}
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	storeDir := cfg.Storage.LocalPath
	if *inmem {
		if storeDir, err = os.MkdirTemp("", "ledger-batch-*"); err != nil {
			logger.Error("failed to create temp storage", "error", err)
			os.Exit(1)
		}
		defer os.RemoveAll(storeDir)
	}
	store, err := storage.NewLocalStore(storeDir, logger)
	if err != nil {
		logger.Error("failed to prepare storage", "error", err)
		os.Exit(1)
	}

	accounts := repo.NewAccountRepository(db, logger)
	accountID, err := resolveAccount(ctx, accounts, *accountStr)
	if err != nil {
		logger.Error("failed to resolve account", "error", err)
		os.Exit(1)
	}
	logger.Info("using account", "id", accountID)

	processor, err := pipeline.Build(cfg.Ingest, pipeline.Config{FinalizeTimeout: cfg.Worker.FinalizeTimeout}, db, store, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	// No queue: files are processed inline below.
	files := repo.NewStatementFileRepository(db, logger)
	ingestor := ingest.NewFSIngestor(ingest.NewService(accounts, files, store, nil, logger), logger)

	logger.Info("starting ingestion", "dir", *dir, "account", accountID)
	results, stats, err := ingestor.IngestDirectory(ctx, accountID, *dir, true)
	if err != nil {
		logger.Error("failed to ingest directory", "error", err)
		os.Exit(1)
	}
	logger.Info("ingestion complete",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"deduplicated", stats.Deduplicated)

	processed, failures, skipped := 0, 0, 0
	for _, r := range results {
		if r.Err != "" || r.FileID == uuid.Nil {
			continue
		}
		res, err := processor.ProcessFile(ctx, r.FileID)
		switch {
		case err != nil:
			logger.Error("failed to process file", "file_id", r.FileID, "path", r.SourcePath, "error", err)
			failures++
		case res.Skipped:
			skipped++
		default:
			processed++
			for _, w := range res.Warnings {
				logger.Warn("statement warning", "file_id", r.FileID, "path", r.SourcePath, "warning", w)
			}
		}
	}

	loc := time.UTC
	if clock, err := normalize.NewClock(cfg.Ingest.Timezone); err == nil {
		loc = clock.Location()
	}
	exportSvc := export.NewService(repo.NewTransactionRepository(db, logger), loc, logger)
	logger.Info("exporting to XLSX", "output", *out)
	xlsxBytes, err := exportSvc.TransactionsXLSX(ctx, accountID, from, to)
	if err != nil {
		logger.Error("failed to export transactions", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		"files_processed", processed,
		"files_skipped", skipped,
		"failures", failures,
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files matched: %d\n", stats.Matched)
	fmt.Printf("- Files processed: %d\n", processed)
	fmt.Printf("- Already processed: %d\n", skipped)
	fmt.Printf("- Failures: %d\n", failures+int(stats.Failed))
	fmt.Printf("- Output: %s\n", *out)
}

// resolveAccount parses an explicit id, or gets-or-creates the local batch account.
func resolveAccount(ctx context.Context, accounts repo.AccountRepository, raw string) (uuid.UUID, error) {
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("--account must be a UUID: %w", err)
		}
		return id, nil
	}
	acct, err := accounts.GetByNumber(ctx, batchAccountNumber)
	if err == nil {
		return acct.ID, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return uuid.Nil, err
	}
	owner := &entity.Person{FullName: "Local Batch"}
	if err := accounts.CreatePerson(ctx, owner); err != nil {
		return uuid.Nil, err
	}
	acct = &entity.Account{OwnerID: owner.ID, AccountName: "Local Batch", AccountNumber: batchAccountNumber}
	if err := accounts.CreateAccount(ctx, acct); err != nil {
		return uuid.Nil, err
	}
	return acct.ID, nil
}
