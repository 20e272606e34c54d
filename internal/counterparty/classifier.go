// Package counterparty resolves statement counterparties to persisted
// entities and classifies them by name.
package counterparty

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/statements-ledger/constants"
)

// Classifier infers a counterparty's type from what a statement says about it.
type Classifier interface {
	Classify(name string, reference *string) constants.CounterpartyType
}

var (
	paymentKeywords = []string{"支付", "财付通", "支付宝"}
	bankKeywords    = []string{"银行", "银联"}

	// MerchantKeywords mark organizations rather than individuals.
	MerchantKeywords = []string{
		"公司", "机构", "科技", "网络", "支付", "技术", "银行", "物业", "管理",
		"财付通", "支付宝", "银联", "唯品会", "钱袋宝", "微众", "抖音", "电商",
		"商户", "平台", "快递", "服饰", "股份", "商业", "便购", "餐饮",
	}
)

// defaultNameThreshold is the rune length above which an unrecognized name is
// assumed to belong to an organization.
const defaultNameThreshold = 7

// KeywordClassifier matches names against payment, bank and merchant
// vocabularies and falls back to a length heuristic.
type KeywordClassifier struct {
	NameThreshold int
}

func (k KeywordClassifier) Classify(name string, _ *string) constants.CounterpartyType {
	name = strings.TrimSpace(name)
	if name == "" || name == constants.UnknownCounterpartyName {
		return constants.CounterpartyUnknown
	}
	switch {
	case containsAny(name, paymentKeywords):
		return constants.CounterpartyPaymentPlatform
	case containsAny(name, bankKeywords):
		return constants.CounterpartyBank
	case containsAny(name, MerchantKeywords):
		return constants.CounterpartyMerchant
	}
	threshold := k.NameThreshold
	if threshold <= 0 {
		threshold = defaultNameThreshold
	}
	if utf8.RuneCountInString(name) > threshold {
		return constants.CounterpartyMerchant
	}
	return constants.CounterpartyPerson
}

// ReferenceClassifier treats parties with an account reference as merchants
// and everyone else as persons.
type ReferenceClassifier struct{}

func (ReferenceClassifier) Classify(name string, reference *string) constants.CounterpartyType {
	if strings.TrimSpace(name) == constants.UnknownCounterpartyName {
		return constants.CounterpartyUnknown
	}
	if reference != nil && strings.TrimSpace(*reference) != "" {
		return constants.CounterpartyMerchant
	}
	return constants.CounterpartyPerson
}

// ClassifierByName returns the policy configured by name ("keyword" or "reference").
func ClassifierByName(name string) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "keyword":
		return KeywordClassifier{}, nil
	case "reference":
		return ReferenceClassifier{}, nil
	default:
		return nil, fmt.Errorf("unknown counterparty classifier %q", name)
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
