package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/counterparty"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
	"github.com/joseph-ayodele/statements-ledger/internal/normalize"
	"github.com/joseph-ayodele/statements-ledger/internal/repository"
)

// PersistOutcome summarizes what one file wrote to the ledger.
type PersistOutcome struct {
	repository.BulkResult
	Counterparties int
}

// PersistStage resolves counterparties and bulk-inserts transactions.
type PersistStage struct {
	Resolver     *counterparty.Resolver
	Transactions repository.TransactionRepository
	ChunkSize    int
	Logger       *slog.Logger
}

func NewPersistStage(resolver *counterparty.Resolver, txns repository.TransactionRepository, chunkSize int, logger *slog.Logger) *PersistStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStage{Resolver: resolver, Transactions: txns, ChunkSize: chunkSize, Logger: logger}
}

// Run attaches a counterparty to every row, then writes the batch in one
// database transaction. Transactions already in the ledger are skipped.
func (s *PersistStage) Run(ctx context.Context, file *entity.StatementFile, rep *normalize.Report) (PersistOutcome, error) {
	logger := common.LoggerFromContext(ctx, s.Logger)
	memo := counterparty.NewMemo(s.Resolver)

	txns := make([]entity.Transaction, 0, len(rep.Rows))
	for _, row := range rep.Rows {
		if err := ctx.Err(); err != nil {
			return PersistOutcome{}, err
		}
		name := ""
		if row.CounterpartyName != nil {
			name = *row.CounterpartyName
		}
		cp, err := memo.Resolve(ctx, name, row.CounterpartyAccount)
		if err != nil {
			return PersistOutcome{}, fmt.Errorf("line %d: resolve counterparty: %w", row.Line, err)
		}
		txns = append(txns, entity.Transaction{
			AccountID:         file.AccountID,
			CounterpartyID:    cp.ID,
			TransactionDate:   row.Timestamp,
			Amount:            row.Amount,
			Currency:          row.Currency,
			Type:              row.Type,
			Description:       row.Description,
			TransactionMethod: row.Method,
			BalanceAfterTxn:   row.Balance,
			BankTransactionID: *row.BankTransactionID,
			IsCash:            row.IsCash,
			Location:          row.Location,
			BranchName:        row.Branch,
		})
	}
	logger.Debug("persist.stage.resolved", "rows", len(txns), "counterparties", memo.Len())

	res, err := s.Transactions.BulkInsert(ctx, txns, s.ChunkSize)
	if err != nil {
		return PersistOutcome{}, fmt.Errorf("persist transactions: %w", err)
	}
	logger.Info("persist.stage.ok", "inserted", res.Inserted, "skipped", res.Skipped, "chunks", res.Chunks)
	return PersistOutcome{BulkResult: res, Counterparties: memo.Len()}, nil
}
