package normalize

import (
	"slices"
	"strings"

	"github.com/joseph-ayodele/statements-ledger/internal/tabular"
)

// headerMatchThreshold is how many known aliases a row must contain before it
// is treated as the header row.
const headerMatchThreshold = 2

// Layout maps bank-specific header text onto canonical fields. Aliases are
// tried in order and the first header present in a file wins.
type Layout struct {
	aliases map[Field][]string
	// splitDate names date-only columns. A file carrying one of these next
	// to a time column stores the timestamp in two halves.
	splitDate []string
}

// DefaultLayout returns the alias table covering the supported bank exports.
func DefaultLayout() *Layout {
	return &Layout{
		aliases: map[Field][]string{
			FieldDate:                {"交易时间", "交易日期", "记账日期"},
			FieldTime:                {"交易时间"},
			FieldAmountIn:            {"收入金额", "收入金额(元)", "贷方发生额"},
			FieldAmountOut:           {"支出金额", "支出金额(元)", "借方发生额"},
			FieldAmountSingle:        {"交易金额"},
			FieldTypeFlag:            {"借贷标志", "借贷"},
			FieldCurrency:            {"币种"},
			FieldBalance:             {"交易余额", "账户余额"},
			FieldDescription:         {"交易摘要", "摘要", "交易说明", "交易附言"},
			FieldBankTransactionID:   {"交易流水号", "凭证号"},
			FieldCounterpartyName:    {"交易对方名称", "对方户名", "对方名称", "对方账户名称"},
			FieldCounterpartyAccount: {"交易对方账号", "对方账号", "对方账户账号"},
			FieldMerchantName:        {"商户名称"},
			FieldMethod:              {"交易类型", "交易渠道", "交易方式"},
			FieldCashFlag:            {"现金标志"},
			FieldLocation:            {"交易发生地"},
			FieldBranch:              {"交易网点名称", "交易机构"},
		},
		splitDate: []string{"交易日期", "记账日期"},
	}
}

// Aliases returns the header aliases for f in priority order.
func (l *Layout) Aliases(f Field) []string {
	return slices.Clone(l.aliases[f])
}

// Extend appends aliases for the given fields, skipping ones already known.
// Appended aliases rank after the built-in ones.
func (l *Layout) Extend(extra map[Field][]string, splitDate []string) {
	for f, names := range extra {
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n != "" && !slices.Contains(l.aliases[f], n) {
				l.aliases[f] = append(l.aliases[f], n)
			}
		}
	}
	for _, n := range splitDate {
		n = strings.TrimSpace(n)
		if n != "" && !slices.Contains(l.splitDate, n) {
			l.splitDate = append(l.splitDate, n)
		}
	}
}

// LooksLikeHeader reports whether row contains enough known aliases to be the
// header row of a statement. Banks often prepend title and account rows.
func (l *Layout) LooksLikeHeader(row []string) bool {
	seen := make(map[string]struct{})
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		for _, names := range l.aliases {
			if slices.Contains(names, cell) {
				seen[cell] = struct{}{}
				break
			}
		}
	}
	return len(seen) >= headerMatchThreshold
}

// DateMode tells the temporal stage how timestamps are laid out.
type DateMode int

const (
	// DateModeNone means no date column was found; every row will drop.
	DateModeNone DateMode = iota
	// DateModeCombined means a single column carries date and time.
	DateModeCombined
	// DateModeSplit means date and time live in separate columns.
	DateModeSplit
)

func (m DateMode) String() string {
	switch m {
	case DateModeCombined:
		return "combined"
	case DateModeSplit:
		return "split"
	default:
		return "none"
	}
}

// Mapping is the result of matching one table against a Layout.
type Mapping struct {
	// Columns maps each resolved field to its column index in the table.
	Columns map[Field]int
	// Sources records the header text each field was taken from.
	Sources  map[Field]string
	DateMode DateMode
}

// Has reports whether f resolved to a column.
func (m Mapping) Has(f Field) bool {
	_, ok := m.Columns[f]
	return ok
}

// Missing lists the canonical fields that did not resolve.
func (m Mapping) Missing() []Field {
	var out []Field
	for _, f := range Fields {
		if !m.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Map resolves every field against the table header. Unmatched columns are
// ignored and unmatched fields stay absent.
func (l *Layout) Map(t *tabular.Table) Mapping {
	m := Mapping{
		Columns: make(map[Field]int),
		Sources: make(map[Field]string),
	}
	for _, f := range Fields {
		for _, name := range l.aliases[f] {
			if idx := t.Index(name); idx >= 0 {
				m.Columns[f] = idx
				m.Sources[f] = name
				break
			}
		}
	}

	// Split layout: a date-only column plus a distinct, populated time column.
	timeIdx, hasTime := m.Columns[FieldTime]
	if hasTime && columnPopulated(t, timeIdx) {
		for _, name := range l.splitDate {
			if idx := t.Index(name); idx >= 0 && idx != timeIdx {
				m.Columns[FieldDate] = idx
				m.Sources[FieldDate] = name
				m.DateMode = DateModeSplit
				return m
			}
		}
	}

	// Combined layout: the time column, if any, is the date column itself.
	delete(m.Columns, FieldTime)
	delete(m.Sources, FieldTime)
	if !m.Has(FieldDate) {
		return m
	}
	m.DateMode = DateModeCombined
	// Prefer a populated date alias over an empty one that ranks higher.
	if !columnPopulated(t, m.Columns[FieldDate]) {
		for _, name := range l.aliases[FieldDate] {
			if idx := t.Index(name); idx >= 0 && columnPopulated(t, idx) {
				m.Columns[FieldDate] = idx
				m.Sources[FieldDate] = name
				break
			}
		}
	}
	return m
}

func columnPopulated(t *tabular.Table, col int) bool {
	for i := range t.Rows {
		if !isAbsent(t.Cell(i, col)) {
			return true
		}
	}
	return false
}
