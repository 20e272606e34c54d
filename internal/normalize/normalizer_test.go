package normalize

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/internal/tabular"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New(Options{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return n
}

func TestNormalize_DualAmountModesAgree(t *testing.T) {
	n := newTestNormalizer(t)
	separate := &tabular.Table{
		Header: []string{"交易时间", "收入金额", "支出金额", "摘要"},
		Rows:   [][]string{{"20240102153000", "120", "0", "工资"}},
	}
	single := &tabular.Table{
		Header: []string{"交易时间", "交易金额", "借贷标志", "摘要"},
		Rows:   [][]string{{"20240102153000", "120", "Credit", "工资"}},
	}

	a := n.Normalize(context.Background(), separate)
	b := n.Normalize(context.Background(), single)
	if a.AmountMode != AmountModeSeparate || b.AmountMode != AmountModeSingle {
		t.Fatalf("modes = %s, %s", a.AmountMode, b.AmountMode)
	}
	if a.Processed() != 1 || b.Processed() != 1 {
		t.Fatalf("processed = %d, %d", a.Processed(), b.Processed())
	}
	ra, rb := a.Rows[0], b.Rows[0]
	want := decimal.NewFromInt(120)
	if !ra.Amount.Equal(want) || !rb.Amount.Equal(want) {
		t.Errorf("amounts = %s, %s; want 120", ra.Amount, rb.Amount)
	}
	if ra.Type != constants.TransactionCredit || rb.Type != constants.TransactionCredit {
		t.Errorf("types = %s, %s; want CREDIT", ra.Type, rb.Type)
	}
	if !ra.Timestamp.Equal(rb.Timestamp) {
		t.Errorf("timestamps differ: %v vs %v", ra.Timestamp, rb.Timestamp)
	}
}

func TestNormalize_SingleAmountNeedsFlag(t *testing.T) {
	n := newTestNormalizer(t)
	tables := map[string]*tabular.Table{
		"no flag column": {
			Header: []string{"交易时间", "交易金额", "摘要"},
			Rows:   [][]string{{"20240102153000", "120", "工资"}},
		},
		"flag column empty": {
			Header: []string{"交易时间", "交易金额", "借贷标志", "摘要"},
			Rows:   [][]string{{"20240102153000", "120", "", "工资"}, {"20240103153000", "80", "nan", "咖啡"}},
		},
	}
	for name, table := range tables {
		t.Run(name, func(t *testing.T) {
			rep := n.Normalize(context.Background(), table)
			if rep.AmountMode != AmountModeUnknown {
				t.Fatalf("AmountMode = %s, want unknown", rep.AmountMode)
			}
			if rep.Processed() != table.Len() {
				t.Fatalf("Processed() = %d, want %d", rep.Processed(), table.Len())
			}
			for _, row := range rep.Rows {
				if row.Type != constants.TransactionUnknown || !row.Amount.IsZero() {
					t.Errorf("row %d = %s %s, want 0 UNKNOWN", row.Line, row.Amount, row.Type)
				}
			}
			if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], "amount layout not recognized") {
				t.Errorf("Warnings = %v", rep.Warnings)
			}
		})
	}
}

func TestNormalize_DropsUnparseableTimestamps(t *testing.T) {
	n := newTestNormalizer(t)
	table := &tabular.Table{Header: []string{"交易时间", "交易金额", "借贷标志", "交易流水号"}}
	for i := 0; i < 100; i++ {
		ts := fmt.Sprintf("2024010%d1200%02d", 1+i%9, i%60)
		if i%20 == 7 {
			ts = "not a date"
		}
		table.Rows = append(table.Rows, []string{ts, "10", "贷", fmt.Sprintf("TX%03d", i)})
	}

	rep := n.Normalize(context.Background(), table)
	if rep.Total != 100 {
		t.Errorf("Total = %d, want 100", rep.Total)
	}
	if rep.Processed() != 95 {
		t.Errorf("Processed() = %d, want 95", rep.Processed())
	}
	if len(rep.Dropped) != 5 {
		t.Fatalf("len(Dropped) = %d, want 5", len(rep.Dropped))
	}
	if rep.Dropped[0].Line != 8 {
		t.Errorf("first dropped line = %d, want 8", rep.Dropped[0].Line)
	}
	if !strings.Contains(rep.Dropped[0].Reason, "not a date") {
		t.Errorf("reason %q does not quote the raw value", rep.Dropped[0].Reason)
	}
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], "dropped 5 of 100") {
		t.Errorf("Warnings = %v", rep.Warnings)
	}
}

func TestNormalize_SplitDatetime(t *testing.T) {
	n := newTestNormalizer(t)
	table := &tabular.Table{
		Header: []string{"交易日期", "交易时间", "收入金额", "支出金额", "交易对方名称", "交易对方账号", "交易余额"},
		Rows: [][]string{
			{"2024-01-02", "09:15:00", "0", "35.50", "张三", "", "1,000.00"},
			{"2024-01-02", "", "10", "0", "李四", "6222", ""},
		},
	}
	rep := n.Normalize(context.Background(), table)
	if rep.Mapping.DateMode != DateModeSplit {
		t.Fatalf("DateMode = %s, want split", rep.Mapping.DateMode)
	}
	if rep.Processed() != 1 || len(rep.Dropped) != 1 {
		t.Fatalf("processed = %d, dropped = %d", rep.Processed(), len(rep.Dropped))
	}
	row := rep.Rows[0]
	if want := time.Date(2024, 1, 2, 1, 15, 0, 0, time.UTC); !row.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", row.Timestamp, want)
	}
	if !row.Amount.Equal(decimal.RequireFromString("-35.5")) || row.Type != constants.TransactionDebit {
		t.Errorf("amount/type = %s/%s", row.Amount, row.Type)
	}
	if row.CounterpartyAccount != nil {
		t.Errorf("blank account should be absent, got %q", *row.CounterpartyAccount)
	}
	if row.Balance == nil || !row.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Balance = %v, want 1000", row.Balance)
	}
}

func TestNormalize_UnknownAmountMode(t *testing.T) {
	n := newTestNormalizer(t)
	table := &tabular.Table{
		Header: []string{"交易时间", "摘要"},
		Rows:   [][]string{{"20240102", "a"}, {"20240103", "b"}},
	}
	rep := n.Normalize(context.Background(), table)
	if rep.AmountMode != AmountModeUnknown {
		t.Fatalf("AmountMode = %s", rep.AmountMode)
	}
	for _, r := range rep.Rows {
		if !r.Amount.IsZero() || r.Type != constants.TransactionUnknown {
			t.Errorf("row %d: amount/type = %s/%s", r.Line, r.Amount, r.Type)
		}
	}
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], "amount layout not recognized") {
		t.Errorf("Warnings = %v", rep.Warnings)
	}
}

func TestNormalize_Sanitize(t *testing.T) {
	n := newTestNormalizer(t)
	table := &tabular.Table{
		Header: []string{"交易时间", "交易金额", "借贷标志", "币种", "摘要", "交易方式", "现金标志", "对方户名", "商户名称"},
		Rows: [][]string{
			{"20240102", "1", "贷", "", "", "", "", "", "美团"},
			{"20240102", "1", "贷", "美元", "ATM现金支取", "", "", "王五", ""},
			{"20240102", "1", "借", "usd", "nan", "柜面现金取款", "", "None", ""},
			{"20240102", "1", "借", "QQQ", "转账", "网银", "现金交易", "", ""},
			{"20240102", "1", "借", "CNY", "转账", "网银", "", "赵六", ""},
		},
	}
	rep := n.Normalize(context.Background(), table)
	if rep.Processed() != 5 {
		t.Fatalf("Processed() = %d", rep.Processed())
	}

	wantCurrency := []string{"CNY", "USD", "USD", "CNY", "CNY"}
	wantCash := []bool{false, true, true, true, false}
	wantDesc := []string{constants.NoDescription, "ATM现金支取", constants.NoDescription, "转账", "转账"}
	wantName := []string{"美团", "王五", "", "", "赵六"}
	for i, r := range rep.Rows {
		if r.Currency != wantCurrency[i] {
			t.Errorf("row %d currency = %s, want %s", i, r.Currency, wantCurrency[i])
		}
		if r.IsCash != wantCash[i] {
			t.Errorf("row %d IsCash = %v, want %v", i, r.IsCash, wantCash[i])
		}
		if r.Description != wantDesc[i] {
			t.Errorf("row %d description = %q, want %q", i, r.Description, wantDesc[i])
		}
		if got := deref(r.CounterpartyName); got != wantName[i] {
			t.Errorf("row %d counterparty = %q, want %q", i, got, wantName[i])
		}
	}
	if !slices.ContainsFunc(rep.Warnings, func(w string) bool { return strings.Contains(w, `"QQQ"`) }) {
		t.Errorf("expected currency warning, got %v", rep.Warnings)
	}
}

func TestSanitizer_Currency(t *testing.T) {
	s := NewSanitizer("CNY")
	tests := []struct {
		raw    *string
		want   string
		wantOK bool
	}{
		{raw: nil, want: "CNY", wantOK: true},
		{raw: strp("人民币"), want: "CNY", wantOK: true},
		{raw: strp("港币"), want: "HKD", wantOK: true},
		{raw: strp(" eur "), want: "EUR", wantOK: true},
		{raw: strp("ZZZ"), want: "CNY", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := s.Currency(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Currency(%v) = %s, %v; want %s, %v", deref(tt.raw), got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAssignSyntheticIDs(t *testing.T) {
	account := uuid.New()
	ts := time.Date(2024, 1, 2, 7, 30, 0, 0, time.UTC)
	mk := func() []Row {
		return []Row{
			{Timestamp: ts, Amount: decimal.NewFromInt(-5), Description: "咖啡"},
			{Timestamp: ts, Amount: decimal.NewFromInt(-5), Description: "咖啡"},
			{Timestamp: ts, Amount: decimal.NewFromInt(-5), Description: "咖啡", BankTransactionID: strp("B1")},
		}
	}

	first := mk()
	if n := AssignSyntheticIDs(account, first); n != 2 {
		t.Fatalf("generated %d ids, want 2", n)
	}
	id0, id1 := *first[0].BankTransactionID, *first[1].BankTransactionID
	if id0 == id1 {
		t.Error("identical lines must get distinct ids")
	}
	if !strings.HasPrefix(id0, constants.SyntheticTxnIDPrefix) {
		t.Errorf("id %q lacks synthetic prefix", id0)
	}
	if *first[2].BankTransactionID != "B1" {
		t.Error("bank-issued id was overwritten")
	}

	again := mk()
	AssignSyntheticIDs(account, again)
	if *again[0].BankTransactionID != id0 || *again[1].BankTransactionID != id1 {
		t.Error("ids are not deterministic across runs")
	}

	other := mk()
	AssignSyntheticIDs(uuid.New(), other)
	if *other[0].BankTransactionID == id0 {
		t.Error("ids must differ across accounts")
	}
}
