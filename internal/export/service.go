// Package export renders ledger transactions as spreadsheets.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/statements-ledger/internal/entity"
	"github.com/joseph-ayodele/statements-ledger/internal/repository"
)

const sheet = "Transactions"

var headers = []string{
	"Transaction Time",
	"Type",
	"Amount",
	"Currency",
	"Balance",
	"Counterparty",
	"Counterparty Type",
	"Description",
	"Method",
	"Cash",
	"Bank Transaction ID",
}

// Service produces XLSX bytes for an account's ledger.
type Service struct {
	txns   repository.TransactionRepository
	loc    *time.Location
	logger *slog.Logger
}

// NewService renders timestamps in loc (UTC when nil).
func NewService(txns repository.TransactionRepository, loc *time.Location, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{txns: txns, loc: loc, logger: logger}
}

// Window turns inclusive calendar dates into the half-open instant range the
// repository expects, in the service's reference zone.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> everything.
func (s *Service) Window(from, to *time.Time) (*time.Time, *time.Time) {
	var start, end *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, s.loc)
		start = &f
	}
	if to != nil {
		e := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
		end = &e
	}
	if start != nil && end == nil {
		today := time.Now().In(s.loc)
		e := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
		end = &e
	}
	return start, end
}

// Transactions lists ledger entries for the inclusive date window.
func (s *Service) Transactions(ctx context.Context, accountID uuid.UUID, from, to *time.Time) ([]*entity.LedgerEntry, error) {
	start, end := s.Window(from, to)
	entries, err := s.txns.ListByAccount(ctx, accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return entries, nil
}

// TransactionsXLSX returns an XLSX workbook (as bytes) for the account and date window.
func (s *Service) TransactionsXLSX(ctx context.Context, accountID uuid.UUID, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	entries, err := s.Transactions(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close workbook", "error", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, e := range entries {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &[]any{
			e.TransactionDate.In(s.loc).Format("2006-01-02 15:04:05"),
			string(e.Type),
			e.Amount.InexactFloat64(),
			e.Currency,
			balance(e),
			e.CounterpartyName,
			string(e.CounterpartyType),
			truncate(e.Description, 140),
			deref(e.TransactionMethod),
			e.IsCash,
			e.BankTransactionID,
		}); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 20) // time
	_ = f.SetColWidth(sheet, "C", "E", 14) // money
	_ = f.SetColWidth(sheet, "F", "F", 28)
	_ = f.SetColWidth(sheet, "H", "H", 48) // description
	_ = f.SetColWidth(sheet, "K", "K", 36)
	if len(entries) > 0 {
		if err := f.AutoFilter(sheet, fmt.Sprintf("A1:K%d", len(entries)+1), nil); err != nil {
			s.logger.Warn("failed to set autofilter", "error", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"account_id", accountID.String(),
		"rows", len(entries),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func balance(e *entity.LedgerEntry) any {
	if e.BalanceAfterTxn == nil {
		return ""
	}
	return e.BalanceAfterTxn.InexactFloat64()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
