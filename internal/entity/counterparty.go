package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/constants"
)

// Counterparty is the other side of a transaction.
type Counterparty struct {
	ID            uuid.UUID                  `json:"id"`
	Name          string                     `json:"name"`
	AccountNumber *string                    `json:"account_number,omitempty"`
	Type          constants.CounterpartyType `json:"counterparty_type"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}
