package normalize

import (
	"log/slog"
	"strings"

	"github.com/Rhymond/go-money"
)

// Cash evidence. Any one signal marks the row as a cash transaction.
const cashFlagToken = "现金交易"

var (
	cashDescriptionKeywords = []string{"现金存入", "现金支取"}
	cashMethodKeywords      = []string{"现金存款", "现金取款"}
)

// Empty-like markers left behind by spreadsheet tools and upstream exports.
var absentMarkers = map[string]struct{}{
	"nan":  {},
	"NaN":  {},
	"NAN":  {},
	"NaT":  {},
	"None": {},
	"null": {},
	"NULL": {},
	"<NA>": {},
	"N/A":  {},
	"--":   {},
}

var localizedCurrencies = map[string]string{
	"人民币": "CNY",
	"美元":  "USD",
	"港币":  "HKD",
	"港元":  "HKD",
	"欧元":  "EUR",
	"日元":  "JPY",
	"英镑":  "GBP",
}

func isAbsent(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	_, ok := absentMarkers[s]
	return ok
}

// clean trims raw and returns nil for empty-like values.
func clean(raw string) *string {
	if isAbsent(raw) {
		return nil
	}
	s := strings.TrimSpace(raw)
	return &s
}

// Sanitizer fills defaults and derives flags on a single row.
type Sanitizer struct {
	defaultCurrency string
}

// NewSanitizer returns a sanitizer defaulting missing currencies to code.
func NewSanitizer(defaultCurrency string) *Sanitizer {
	return &Sanitizer{defaultCurrency: defaultCurrency}
}

// Currency resolves a currency cell to an ISO 4217 code. ok is false when the
// value was present but not recognized and the default was substituted.
func (s *Sanitizer) Currency(raw *string) (code string, ok bool) {
	if raw == nil {
		return s.defaultCurrency, true
	}
	v := strings.TrimSpace(*raw)
	if iso, found := localizedCurrencies[v]; found {
		return iso, true
	}
	v = strings.ToUpper(v)
	if money.GetCurrency(v) != nil {
		return v, true
	}
	return s.defaultCurrency, false
}

// IsCash evaluates the cash signals in order and stops at the first hit.
func (s *Sanitizer) IsCash(logger *slog.Logger, line int, flag, description, method *string) bool {
	if flag != nil && *flag == cashFlagToken {
		logger.Debug("cash transaction detected", "line", line, "signal", "cash_flag")
		return true
	}
	if description != nil && containsAny(*description, cashDescriptionKeywords) {
		logger.Debug("cash transaction detected", "line", line, "signal", "description")
		return true
	}
	if method != nil && containsAny(*method, cashMethodKeywords) {
		logger.Debug("cash transaction detected", "line", line, "signal", "method")
		return true
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
