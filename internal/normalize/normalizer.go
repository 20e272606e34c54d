// Package normalize turns a raw statement table into canonical ledger rows.
// It maps bank headers onto canonical fields, rebuilds timestamps, reconciles
// amounts and sanitizes each row, collecting drops and data-quality warnings
// in a per-file Report.
package normalize

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/tabular"
)

type Options struct {
	Layout          *Layout
	Timezone        string
	DefaultCurrency string
}

// Normalizer is safe for concurrent use; it holds no per-file state.
type Normalizer struct {
	layout    *Layout
	clock     *Clock
	sanitizer *Sanitizer
	logger    *slog.Logger
}

func New(opts Options, logger *slog.Logger) (*Normalizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Layout == nil {
		opts.Layout = DefaultLayout()
	}
	if opts.Timezone == "" {
		opts.Timezone = constants.DefaultTimezone
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = constants.DefaultCurrency
	}
	clock, err := NewClock(opts.Timezone)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", err.Error(), common.ErrInvalidInput)
	}
	return &Normalizer{
		layout:    opts.Layout,
		clock:     clock,
		sanitizer: NewSanitizer(opts.DefaultCurrency),
		logger:    logger,
	}, nil
}

// Layout returns the alias table in use, e.g. for header detection.
func (n *Normalizer) Layout() *Layout { return n.layout }

// rawRow holds the cleaned cells of one source row, indexed by field.
type rawRow struct {
	line  int
	cells map[Field]*string
}

func (r rawRow) get(f Field) *string { return r.cells[f] }

// Normalize runs mapping, timestamp reconstruction, amount reconciliation and
// sanitization over t. It never fails: problems become drops or warnings.
func (n *Normalizer) Normalize(ctx context.Context, t *tabular.Table) *Report {
	logger := common.LoggerFromContext(ctx, n.logger)
	m := n.layout.Map(t)
	rep := &Report{Mapping: m, Total: t.Len()}

	logger.Debug("columns mapped",
		"date_mode", m.DateMode.String(),
		"sources", m.Sources,
		"missing", m.Missing(),
	)

	raws := make([]rawRow, 0, t.Len())
	for i := range t.Rows {
		r := rawRow{line: i + 1, cells: make(map[Field]*string, len(m.Columns))}
		for f, col := range m.Columns {
			r.cells[f] = clean(t.Cell(i, col))
		}
		raws = append(raws, r)
	}

	// Timestamps first: rows without one never reach the amount stage.
	type stamped struct {
		raw rawRow
		ts  time.Time
	}
	kept := make([]stamped, 0, len(raws))
	for _, r := range raws {
		ts, ok := n.timestamp(m.DateMode, r)
		if !ok {
			rep.drop(r.line, "unparseable timestamp %q", describeTimestamp(m.DateMode, r))
			continue
		}
		kept = append(kept, stamped{raw: r, ts: ts})
	}
	switch {
	case m.DateMode == DateModeNone && t.Len() > 0:
		rep.Warnf("no timestamp column recognized; all %d rows dropped", t.Len())
	case len(rep.Dropped) > 0:
		rep.Warnf("dropped %d of %d rows with unparseable timestamps", len(rep.Dropped), t.Len())
	}

	amounts := make([]amountColumns, len(kept))
	for i, k := range kept {
		amounts[i] = amountColumns{
			in:     ParseAmount(deref(k.raw.get(FieldAmountIn))),
			out:    ParseAmount(deref(k.raw.get(FieldAmountOut))),
			single: ParseAmount(deref(k.raw.get(FieldAmountSingle))),
			flag:   k.raw.get(FieldTypeFlag),
		}
	}
	rep.AmountMode = DetectAmountMode(m, amounts)
	if rep.AmountMode == AmountModeUnknown && len(kept) > 0 {
		rep.Warnf("amount layout not recognized; %d rows recorded with zero amount and type %s", len(kept), constants.TransactionUnknown)
	}

	rep.Rows = make([]Row, 0, len(kept))
	for i, k := range kept {
		amount, kind := Reconcile(rep.AmountMode, amounts[i])
		rep.Rows = append(rep.Rows, n.sanitize(logger, rep, k.raw, k.ts, amount, kind))
	}

	logger.Info("statement normalized",
		"rows", rep.Total,
		"processed", rep.Processed(),
		"dropped", len(rep.Dropped),
		"amount_mode", rep.AmountMode.String(),
		"date_mode", m.DateMode.String(),
	)
	return rep
}

func (n *Normalizer) timestamp(mode DateMode, r rawRow) (time.Time, bool) {
	switch mode {
	case DateModeSplit:
		date, clock := r.get(FieldDate), r.get(FieldTime)
		if date == nil || clock == nil {
			return time.Time{}, false
		}
		return n.clock.Split(*date, *clock)
	case DateModeCombined:
		v := r.get(FieldDate)
		if v == nil {
			return time.Time{}, false
		}
		return n.clock.Combined(*v)
	default:
		return time.Time{}, false
	}
}

func (n *Normalizer) sanitize(logger *slog.Logger, rep *Report, r rawRow, ts time.Time, amount decimal.Decimal, kind constants.TransactionType) Row {
	row := Row{
		Line:                r.line,
		Timestamp:           ts,
		Amount:              amount,
		Type:                kind,
		Description:         constants.NoDescription,
		BankTransactionID:   r.get(FieldBankTransactionID),
		CounterpartyName:    r.get(FieldCounterpartyName),
		CounterpartyAccount: r.get(FieldCounterpartyAccount),
		Method:              r.get(FieldMethod),
		Location:            r.get(FieldLocation),
		Branch:              r.get(FieldBranch),
	}
	if d := r.get(FieldDescription); d != nil {
		row.Description = *d
	}
	if row.CounterpartyName == nil {
		row.CounterpartyName = r.get(FieldMerchantName)
	}

	code, ok := n.sanitizer.Currency(r.get(FieldCurrency))
	if !ok {
		rep.Warnf("unrecognized currency %q recorded as %s", *r.get(FieldCurrency), code)
	}
	row.Currency = code

	if b := r.get(FieldBalance); b != nil {
		if v, ok := parseDecimal(*b); ok {
			row.Balance = &v
		}
	}
	row.IsCash = n.sanitizer.IsCash(logger, r.line, r.get(FieldCashFlag), r.get(FieldDescription), row.Method)
	return row
}

func describeTimestamp(mode DateMode, r rawRow) string {
	switch mode {
	case DateModeSplit:
		return deref(r.get(FieldDate)) + " " + deref(r.get(FieldTime))
	case DateModeCombined:
		return deref(r.get(FieldDate))
	default:
		return ""
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
