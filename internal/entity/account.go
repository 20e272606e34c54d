package entity

import (
	"time"

	"github.com/google/uuid"
)

// Person is an account owner.
type Person struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	IDType    *string   `json:"id_type,omitempty"`
	IDNumber  *string   `json:"id_number,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is a bank account statements are uploaded against.
type Account struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	AccountName   string    `json:"account_name"`
	AccountNumber string    `json:"account_number"`
	AccountType   *string   `json:"account_type,omitempty"`
	Institution   *string   `json:"institution,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
