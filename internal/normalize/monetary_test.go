package normalize

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-ledger/constants"
)

func strp(s string) *string { return &s }

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "120", want: "120"},
		{raw: "1,234.50", want: "1234.5"},
		{raw: "¥-12.00", want: "-12"},
		{raw: "￥ 8,000.00", want: "8000"},
		{raw: "(3.50)", want: "-3.5"},
		{raw: "+42.10", want: "42.1"},
		{raw: "100.00元", want: "100"},
		{raw: "nan", want: "0"},
		{raw: "", want: "0"},
		{raw: "abc", want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseAmount(tt.raw)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestReconcile(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name     string
		mode     AmountMode
		cols     amountColumns
		want     string
		wantType constants.TransactionType
	}{
		{name: "separate credit", mode: AmountModeSeparate, cols: amountColumns{in: d("120"), out: d("0")}, want: "120", wantType: constants.TransactionCredit},
		{name: "separate debit", mode: AmountModeSeparate, cols: amountColumns{in: d("0"), out: d("50.25")}, want: "-50.25", wantType: constants.TransactionDebit},
		{name: "separate zero is credit", mode: AmountModeSeparate, cols: amountColumns{}, want: "0", wantType: constants.TransactionCredit},
		{name: "single credit token", mode: AmountModeSingle, cols: amountColumns{single: d("120"), flag: strp("Credit")}, want: "120", wantType: constants.TransactionCredit},
		{name: "single localized credit", mode: AmountModeSingle, cols: amountColumns{single: d("-80"), flag: strp("贷")}, want: "80", wantType: constants.TransactionCredit},
		{name: "single incoming token", mode: AmountModeSingle, cols: amountColumns{single: d("5"), flag: strp(" 进 ")}, want: "5", wantType: constants.TransactionCredit},
		{name: "single debit forces sign", mode: AmountModeSingle, cols: amountColumns{single: d("80"), flag: strp("借")}, want: "-80", wantType: constants.TransactionDebit},
		{name: "flag is case sensitive", mode: AmountModeSingle, cols: amountColumns{single: d("80"), flag: strp("credit")}, want: "-80", wantType: constants.TransactionDebit},
		{name: "single missing flag", mode: AmountModeSingle, cols: amountColumns{single: d("80")}, want: "-80", wantType: constants.TransactionDebit},
		{name: "unknown mode", mode: AmountModeUnknown, cols: amountColumns{single: d("80")}, want: "0", wantType: constants.TransactionUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, kind := Reconcile(tt.mode, tt.cols)
			if !amount.Equal(d(tt.want)) {
				t.Errorf("amount = %s, want %s", amount, tt.want)
			}
			if kind != tt.wantType {
				t.Errorf("type = %s, want %s", kind, tt.wantType)
			}
		})
	}
}

func TestDetectAmountMode(t *testing.T) {
	d := decimal.RequireFromString
	separate := Mapping{Columns: map[Field]int{FieldAmountIn: 1, FieldAmountOut: 2, FieldAmountSingle: 3}}
	separateWithFlag := Mapping{Columns: map[Field]int{FieldAmountIn: 1, FieldAmountOut: 2, FieldAmountSingle: 3, FieldTypeFlag: 4}}
	single := Mapping{Columns: map[Field]int{FieldAmountSingle: 1, FieldTypeFlag: 2}}
	singleNoFlag := Mapping{Columns: map[Field]int{FieldAmountSingle: 1}}

	tests := []struct {
		name string
		m    Mapping
		rows []amountColumns
		want AmountMode
	}{
		{name: "separate evidence wins", m: separate, rows: []amountColumns{{}, {out: d("3")}, {single: d("3")}}, want: AmountModeSeparate},
		{name: "separate columns all zero fall through to single", m: separateWithFlag, rows: []amountColumns{{single: d("9"), flag: strp("借")}}, want: AmountModeSingle},
		{name: "single", m: single, rows: []amountColumns{{single: d("1")}, {flag: strp("贷")}}, want: AmountModeSingle},
		{name: "single without flag column", m: singleNoFlag, rows: []amountColumns{{single: d("1")}}, want: AmountModeUnknown},
		{name: "single with every flag absent", m: single, rows: []amountColumns{{single: d("1")}, {single: d("2")}}, want: AmountModeUnknown},
		{name: "no evidence", m: single, rows: []amountColumns{{}, {}}, want: AmountModeUnknown},
		{name: "no rows", m: separate, want: AmountModeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectAmountMode(tt.m, tt.rows); got != tt.want {
				t.Errorf("DetectAmountMode() = %s, want %s", got, tt.want)
			}
		})
	}
}
