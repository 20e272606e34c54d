package constants

// CounterpartyType is the classification tag stored on counterparties.
type CounterpartyType string

const (
	CounterpartyPerson          CounterpartyType = "PERSON"
	CounterpartyMerchant        CounterpartyType = "MERCHANT"
	CounterpartyPaymentPlatform CounterpartyType = "PAYMENT_PLATFORM"
	CounterpartyBank            CounterpartyType = "BANK"
	CounterpartyUnknown         CounterpartyType = "UNKNOWN"
)

// CounterpartyTypes lists every classification tag.
var CounterpartyTypes = []string{
	string(CounterpartyPerson),
	string(CounterpartyMerchant),
	string(CounterpartyPaymentPlatform),
	string(CounterpartyBank),
	string(CounterpartyUnknown),
}

// UnknownCounterpartyName replaces a blank counterparty display name.
const UnknownCounterpartyName = "unknown counterparty"

// IsValid reports whether t is one of the known tags.
func (t CounterpartyType) IsValid() bool {
	for _, v := range CounterpartyTypes {
		if string(t) == v {
			return true
		}
	}
	return false
}
