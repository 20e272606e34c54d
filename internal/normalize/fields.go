package normalize

// Field is a canonical column the pipeline operates on, independent of any
// bank's header text.
type Field string

const (
	FieldDate                Field = "transaction_date_str"
	FieldTime                Field = "transaction_time_str"
	FieldAmountIn            Field = "amount_in"
	FieldAmountOut           Field = "amount_out"
	FieldAmountSingle        Field = "amount_single"
	FieldTypeFlag            Field = "transaction_type_flag"
	FieldCurrency            Field = "currency"
	FieldBalance             Field = "balance_after_txn"
	FieldDescription         Field = "description"
	FieldBankTransactionID   Field = "bank_transaction_id"
	FieldCounterpartyName    Field = "counterparty_name"
	FieldCounterpartyAccount Field = "counterparty_account_number"
	FieldMerchantName        Field = "merchant_name"
	FieldMethod              Field = "transaction_method"
	FieldCashFlag            Field = "is_cash_flag"
	FieldLocation            Field = "location"
	FieldBranch              Field = "branch_name"
)

// Fields lists every canonical field in mapping order.
var Fields = []Field{
	FieldDate,
	FieldTime,
	FieldAmountIn,
	FieldAmountOut,
	FieldAmountSingle,
	FieldTypeFlag,
	FieldCurrency,
	FieldBalance,
	FieldDescription,
	FieldBankTransactionID,
	FieldCounterpartyName,
	FieldCounterpartyAccount,
	FieldMerchantName,
	FieldMethod,
	FieldCashFlag,
	FieldLocation,
	FieldBranch,
}

func knownField(name string) bool {
	for _, f := range Fields {
		if string(f) == name {
			return true
		}
	}
	return false
}
