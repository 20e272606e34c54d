package repository

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/db/schema"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
)

// BulkResult summarizes one BulkInsert call.
type BulkResult struct {
	Inserted int
	Skipped  int
	Chunks   int
}

type TransactionRepository interface {
	// BulkInsert writes txns in chunks inside a single database transaction.
	// Rows whose bank_transaction_id already exists are skipped. Any chunk
	// failure rolls the whole batch back.
	BulkInsert(ctx context.Context, txns []entity.Transaction, chunkSize int) (BulkResult, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, from, to *time.Time) ([]*entity.LedgerEntry, error)
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int, error)
}

type transactionRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewTransactionRepository(db *DB, logger *slog.Logger) TransactionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

var transactionColumns = []string{
	"id", "transaction_date", "amount", "currency", "transaction_type", "description",
	"transaction_method", "balance_after_txn", "bank_transaction_id", "is_cash", "location",
	"branch_name", "category", "created_at", "account_id", "counterparty_id",
}

func (r *transactionRepository) BulkInsert(ctx context.Context, txns []entity.Transaction, chunkSize int) (BulkResult, error) {
	var res BulkResult
	if len(txns) == 0 {
		return res, nil
	}
	if chunkSize <= 0 {
		chunkSize = constants.DefaultChunkSize
	}
	now := time.Now().UTC()

	err := r.db.WithTx(ctx, func(tx dialect.Tx) error {
		for start := 0; start < len(txns); start += chunkSize {
			end := min(start+chunkSize, len(txns))
			ins := r.db.builder().Insert(schema.TransactionsTable).Columns(transactionColumns...)
			for i := start; i < end; i++ {
				t := &txns[i]
				if t.ID == uuid.Nil {
					t.ID = uuid.New()
				}
				if t.CreatedAt.IsZero() {
					t.CreatedAt = now
				}
				var balance any
				if t.BalanceAfterTxn != nil {
					balance = *t.BalanceAfterTxn
				}
				ins.Values(
					t.ID, t.TransactionDate.UTC(), t.Amount, t.Currency, string(t.Type), t.Description,
					nullString(t.TransactionMethod), balance, t.BankTransactionID, t.IsCash, nullString(t.Location),
					nullString(t.BranchName), nullString(t.Category), t.CreatedAt, t.AccountID, t.CounterpartyID,
				)
			}
			query, args := ins.OnConflict(
				entsql.ConflictColumns("bank_transaction_id"),
				entsql.DoNothing(),
			).Query()

			n, err := execAffected(ctx, tx, query, args)
			if err != nil {
				r.logger.Error("bulk insert chunk failed", "chunk", res.Chunks, "rows", end-start, "error", err)
				return fmt.Errorf("insert chunk %d: %w", res.Chunks, err)
			}
			res.Inserted += int(n)
			res.Chunks++
		}
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}
	res.Skipped = len(txns) - res.Inserted
	r.logger.Debug("bulk insert committed", "rows", len(txns), "inserted", res.Inserted, "skipped", res.Skipped, "chunks", res.Chunks)
	return res, nil
}

func (r *transactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, from, to *time.Time) ([]*entity.LedgerEntry, error) {
	b := r.db.builder()
	t := b.Table(schema.TransactionsTable).As("t")
	c := b.Table(schema.CounterpartiesTable).As("c")

	cols := make([]string, 0, len(transactionColumns)+2)
	for _, col := range transactionColumns {
		cols = append(cols, t.C(col))
	}
	cols = append(cols, c.C("name"), c.C("counterparty_type"))

	preds := []*entsql.Predicate{entsql.EQ(t.C("account_id"), accountID)}
	if from != nil {
		preds = append(preds, entsql.GTE(t.C("transaction_date"), from.UTC()))
	}
	if to != nil {
		preds = append(preds, entsql.LT(t.C("transaction_date"), to.UTC()))
	}
	query, args := b.Select(cols...).
		From(t).
		Join(c).On(t.C("counterparty_id"), c.C("id")).
		Where(entsql.And(preds...)).
		OrderBy(t.C("transaction_date"), t.C("bank_transaction_id")).
		Query()

	var out []*entity.LedgerEntry
	err := queryEach(ctx, r.db.drv, query, args, func(rows *entsql.Rows) error {
		var (
			e                                  entity.LedgerEntry
			kind, cpKind                       string
			method, location, branch, category stdsql.NullString
			balance                            decimal.NullDecimal
		)
		if err := rows.Scan(
			&e.ID, &e.TransactionDate, &e.Amount, &e.Currency, &kind, &e.Description,
			&method, &balance, &e.BankTransactionID, &e.IsCash, &location,
			&branch, &category, &e.CreatedAt, &e.AccountID, &e.CounterpartyID,
			&e.CounterpartyName, &cpKind,
		); err != nil {
			return err
		}
		e.TransactionDate = e.TransactionDate.UTC()
		e.Type = constants.TransactionType(kind)
		e.CounterpartyType = constants.CounterpartyType(cpKind)
		e.TransactionMethod = stringPtr(method)
		e.Location = stringPtr(location)
		e.BranchName = stringPtr(branch)
		e.Category = stringPtr(category)
		if balance.Valid {
			v := balance.Decimal
			e.BalanceAfterTxn = &v
		}
		out = append(out, &e)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list transactions", "account_id", accountID, "error", err)
		return nil, err
	}
	return out, nil
}

func (r *transactionRepository) CountByAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	return countRows(ctx, r.db, schema.TransactionsTable, entsql.EQ("account_id", accountID))
}
