// Package schema declares the relational tables of the ledger and migrates them
// with ent's dialect-aware migrator. Column and index names here are the ones the
// repository layer queries.
package schema

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/joseph-ayodele/statements-ledger/constants"
)

// Table names.
const (
	PersonsTable        = "persons"
	AccountsTable       = "accounts"
	StatementFilesTable = "statement_files"
	CounterpartiesTable = "counterparties"
	TransactionsTable   = "transactions"
)

var (
	money    = map[string]string{dialect.Postgres: "numeric(14,2)"}
	longText = map[string]string{dialect.Postgres: "text"}
	isoCode  = map[string]string{dialect.Postgres: "char(3)"}
)

var (
	// PersonsColumns holds the columns for the "persons" table.
	PersonsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "full_name", Type: field.TypeString},
		{Name: "id_type", Type: field.TypeString, Nullable: true},
		{Name: "id_number", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	// Persons holds the schema information for the "persons" table.
	Persons = &schema.Table{
		Name:       PersonsTable,
		Columns:    PersonsColumns,
		PrimaryKey: []*schema.Column{PersonsColumns[0]},
	}

	// AccountsColumns holds the columns for the "accounts" table.
	AccountsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "account_name", Type: field.TypeString},
		{Name: "account_number", Type: field.TypeString, Unique: true},
		{Name: "account_type", Type: field.TypeString, Nullable: true},
		{Name: "institution", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "owner_id", Type: field.TypeUUID},
	}
	// Accounts holds the schema information for the "accounts" table.
	Accounts = &schema.Table{
		Name:       AccountsTable,
		Columns:    AccountsColumns,
		PrimaryKey: []*schema.Column{AccountsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "accounts_persons_accounts",
				Columns:    []*schema.Column{AccountsColumns[6]},
				RefColumns: []*schema.Column{PersonsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
	}

	// StatementFilesColumns holds the columns for the "statement_files" table.
	StatementFilesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "filename", Type: field.TypeString},
		{Name: "file_ext", Type: field.TypeString},
		{Name: "media_type", Type: field.TypeString},
		{Name: "file_size", Type: field.TypeInt64},
		{Name: "content_hash", Type: field.TypeString, Unique: true},
		{Name: "storage_path", Type: field.TypeString, SchemaType: longText},
		{Name: "status", Type: field.TypeEnum, Enums: constants.FileStatuses, Default: string(constants.FileStatusPending)},
		{Name: "error_message", Type: field.TypeString, Nullable: true, SchemaType: longText},
		{Name: "processed_rows", Type: field.TypeInt, Nullable: true},
		{Name: "dropped_rows", Type: field.TypeInt, Nullable: true},
		{Name: "inserted_rows", Type: field.TypeInt, Nullable: true},
		{Name: "warnings", Type: field.TypeString, Nullable: true, SchemaType: longText},
		{Name: "uploaded_at", Type: field.TypeTime},
		{Name: "started_at", Type: field.TypeTime, Nullable: true},
		{Name: "finished_at", Type: field.TypeTime, Nullable: true},
		{Name: "account_id", Type: field.TypeUUID},
	}
	// StatementFiles holds the schema information for the "statement_files" table.
	StatementFiles = &schema.Table{
		Name:       StatementFilesTable,
		Columns:    StatementFilesColumns,
		PrimaryKey: []*schema.Column{StatementFilesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "statement_files_accounts_files",
				Columns:    []*schema.Column{StatementFilesColumns[16]},
				RefColumns: []*schema.Column{AccountsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "statementfile_status_uploaded_at",
				Unique:  false,
				Columns: []*schema.Column{StatementFilesColumns[7], StatementFilesColumns[13]},
			},
		},
	}

	// CounterpartiesColumns holds the columns for the "counterparties" table.
	CounterpartiesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "name", Type: field.TypeString, SchemaType: longText},
		{Name: "account_number", Type: field.TypeString, Nullable: true},
		{Name: "counterparty_type", Type: field.TypeEnum, Enums: constants.CounterpartyTypes, Default: string(constants.CounterpartyUnknown)},
		{Name: "identity_key", Type: field.TypeString, Unique: true, SchemaType: longText},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// Counterparties holds the schema information for the "counterparties" table.
	Counterparties = &schema.Table{
		Name:       CounterpartiesTable,
		Columns:    CounterpartiesColumns,
		PrimaryKey: []*schema.Column{CounterpartiesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "counterparty_name",
				Unique:  false,
				Columns: []*schema.Column{CounterpartiesColumns[1]},
			},
		},
	}

	// TransactionsColumns holds the columns for the "transactions" table.
	TransactionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "transaction_date", Type: field.TypeTime},
		{Name: "amount", Type: field.TypeFloat64, SchemaType: money},
		{Name: "currency", Type: field.TypeString, Size: 3, SchemaType: isoCode},
		{Name: "transaction_type", Type: field.TypeEnum, Enums: constants.TransactionTypes},
		{Name: "description", Type: field.TypeString, SchemaType: longText},
		{Name: "transaction_method", Type: field.TypeString, Nullable: true},
		{Name: "balance_after_txn", Type: field.TypeFloat64, Nullable: true, SchemaType: money},
		{Name: "bank_transaction_id", Type: field.TypeString, Unique: true},
		{Name: "is_cash", Type: field.TypeBool, Default: false},
		{Name: "location", Type: field.TypeString, Nullable: true},
		{Name: "branch_name", Type: field.TypeString, Nullable: true},
		{Name: "category", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "account_id", Type: field.TypeUUID},
		{Name: "counterparty_id", Type: field.TypeUUID},
	}
	// Transactions holds the schema information for the "transactions" table.
	Transactions = &schema.Table{
		Name:       TransactionsTable,
		Columns:    TransactionsColumns,
		PrimaryKey: []*schema.Column{TransactionsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "transactions_accounts_transactions",
				Columns:    []*schema.Column{TransactionsColumns[14]},
				RefColumns: []*schema.Column{AccountsColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "transactions_counterparties_transactions",
				Columns:    []*schema.Column{TransactionsColumns[15]},
				RefColumns: []*schema.Column{CounterpartiesColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "transaction_account_id_transaction_date",
				Unique:  false,
				Columns: []*schema.Column{TransactionsColumns[14], TransactionsColumns[1]},
			},
		},
	}

	// Tables holds all the tables in the schema, parents first.
	Tables = []*schema.Table{
		Persons,
		Accounts,
		StatementFiles,
		Counterparties,
		Transactions,
	}
)

func init() {
	Accounts.ForeignKeys[0].RefTable = Persons
	StatementFiles.ForeignKeys[0].RefTable = Accounts
	Transactions.ForeignKeys[0].RefTable = Accounts
	Transactions.ForeignKeys[1].RefTable = Counterparties
}

// Migrate creates or updates every table on drv.
func Migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv, schema.WithForeignKeys(true))
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
