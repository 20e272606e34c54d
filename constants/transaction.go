package constants

// TransactionType is the credit/debit side of a ledger transaction.
type TransactionType string

const (
	TransactionCredit  TransactionType = "CREDIT"
	TransactionDebit   TransactionType = "DEBIT"
	TransactionUnknown TransactionType = "UNKNOWN" // amount mode could not be resolved
)

// TransactionTypes lists every transaction type.
var TransactionTypes = []string{
	string(TransactionCredit),
	string(TransactionDebit),
	string(TransactionUnknown),
}

// Ingestion defaults.
const (
	DefaultCurrency       = "CNY"
	DefaultTimezone       = "Asia/Shanghai"
	DefaultChunkSize      = 500
	NoDescription         = "no description"
	SyntheticTxnIDPrefix  = "syn:"
	MaxErrorMessageLength = 2000
)
