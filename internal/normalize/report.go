package normalize

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-ledger/constants"
)

// Row is one canonical statement line. Optional fields are nil when the
// source did not carry them.
type Row struct {
	Line                int // 1-based position among the table's data rows
	Timestamp           time.Time
	Amount              decimal.Decimal
	Type                constants.TransactionType
	Currency            string
	Balance             *decimal.Decimal
	Description         string
	BankTransactionID   *string
	CounterpartyName    *string
	CounterpartyAccount *string
	Method              *string
	IsCash              bool
	Location            *string
	Branch              *string
}

// Dropped records a source row that did not survive normalization.
type Dropped struct {
	Line   int
	Reason string
}

// Report is the per-file outcome of normalization.
type Report struct {
	Mapping    Mapping
	AmountMode AmountMode
	Total      int
	Rows       []Row
	Dropped    []Dropped
	Warnings   []string
}

// Processed is the number of rows that survived.
func (r *Report) Processed() int { return len(r.Rows) }

func (r *Report) drop(line int, format string, args ...any) {
	r.Dropped = append(r.Dropped, Dropped{Line: line, Reason: fmt.Sprintf(format, args...)})
}

// Warnf records a data-quality warning once.
func (r *Report) Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !slices.Contains(r.Warnings, msg) {
		r.Warnings = append(r.Warnings, msg)
	}
}
