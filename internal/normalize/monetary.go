package normalize

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-ledger/constants"
)

// AmountMode is how a statement expresses money movement.
type AmountMode int

const (
	// AmountModeUnknown means neither layout was recognized; amounts are
	// zero and types UNKNOWN.
	AmountModeUnknown AmountMode = iota
	// AmountModeSeparate uses an inflow column and an outflow column.
	AmountModeSeparate
	// AmountModeSingle uses one amount column plus a credit/debit flag.
	AmountModeSingle
)

func (m AmountMode) String() string {
	switch m {
	case AmountModeSeparate:
		return "separate"
	case AmountModeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// CreditTokens are the flag values that mark a credit in single-column mode.
// Matching is exact and case-sensitive.
var CreditTokens = []string{"进", "贷", "Credit"}

var amountStrip = strings.NewReplacer(
	",", "",
	"，", "",
	"¥", "",
	"￥", "",
	"$", "",
	"元", "",
	" ", "",
	" ", "",
)

// ParseAmount reads a money cell. Absent or unparseable values read as zero.
// Thousands separators, currency symbols and accounting parentheses are
// accepted.
func ParseAmount(raw string) decimal.Decimal {
	d, ok := parseDecimal(raw)
	if !ok {
		return decimal.Zero
	}
	return d
}

func parseDecimal(raw string) (decimal.Decimal, bool) {
	if isAbsent(raw) {
		return decimal.Zero, false
	}
	s := amountStrip.Replace(strings.TrimSpace(raw))
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "+")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if neg {
		d = d.Neg()
	}
	return d, true
}

// amountColumns carries the coerced money cells of one row.
type amountColumns struct {
	in, out, single decimal.Decimal
	flag            *string
}

// DetectAmountMode picks the amount layout for a whole file. Separate mode
// wins when any row has a non-zero inflow or outflow. Otherwise single mode
// applies when any row has a non-zero single amount and any row carries a
// credit/debit flag; a file with no flag values at all is unknown.
func DetectAmountMode(m Mapping, rows []amountColumns) AmountMode {
	if m.Has(FieldAmountIn) || m.Has(FieldAmountOut) {
		for _, r := range rows {
			if !r.in.IsZero() || !r.out.IsZero() {
				return AmountModeSeparate
			}
		}
	}
	if m.Has(FieldAmountSingle) && m.Has(FieldTypeFlag) {
		var amount, flag bool
		for _, r := range rows {
			amount = amount || !r.single.IsZero()
			flag = flag || r.flag != nil
		}
		if amount && flag {
			return AmountModeSingle
		}
	}
	return AmountModeUnknown
}

// Reconcile returns the signed amount and side for one row. Credits are
// positive and debits negative.
func Reconcile(mode AmountMode, r amountColumns) (decimal.Decimal, constants.TransactionType) {
	switch mode {
	case AmountModeSeparate:
		amount := r.in.Sub(r.out)
		if !amount.IsNegative() {
			return amount, constants.TransactionCredit
		}
		return amount, constants.TransactionDebit
	case AmountModeSingle:
		abs := r.single.Abs()
		if r.flag != nil && isCreditToken(*r.flag) {
			return abs, constants.TransactionCredit
		}
		return abs.Neg(), constants.TransactionDebit
	default:
		return decimal.Zero, constants.TransactionUnknown
	}
}

func isCreditToken(flag string) bool {
	flag = strings.TrimSpace(flag)
	for _, tok := range CreditTokens {
		if flag == tok {
			return true
		}
	}
	return false
}
