package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-ledger/constants"
)

// Transaction is a canonical ledger fact.
type Transaction struct {
	ID                uuid.UUID                 `json:"id"`
	AccountID         uuid.UUID                 `json:"account_id"`
	CounterpartyID    uuid.UUID                 `json:"counterparty_id"`
	TransactionDate   time.Time                 `json:"transaction_date"`
	Amount            decimal.Decimal           `json:"amount"`
	Currency          string                    `json:"currency"`
	Type              constants.TransactionType `json:"transaction_type"`
	Description       string                    `json:"description"`
	TransactionMethod *string                   `json:"transaction_method,omitempty"`
	BalanceAfterTxn   *decimal.Decimal          `json:"balance_after_txn,omitempty"`
	BankTransactionID string                    `json:"bank_transaction_id"`
	IsCash            bool                      `json:"is_cash"`
	Location          *string                   `json:"location,omitempty"`
	BranchName        *string                   `json:"branch_name,omitempty"`
	Category          *string                   `json:"category,omitempty"`
	CreatedAt         time.Time                 `json:"created_at"`
}

// LedgerEntry is a transaction joined with its counterparty for read paths.
type LedgerEntry struct {
	Transaction
	CounterpartyName string                     `json:"counterparty_name"`
	CounterpartyType constants.CounterpartyType `json:"counterparty_type"`
}
