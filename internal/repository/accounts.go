package repository

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/db/schema"
	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
)

type AccountRepository interface {
	CreatePerson(ctx context.Context, p *entity.Person) error
	CreateAccount(ctx context.Context, a *entity.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Account, error)
	GetByNumber(ctx context.Context, accountNumber string) (*entity.Account, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type accountRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewAccountRepository(db *DB, logger *slog.Logger) AccountRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) CreatePerson(ctx context.Context, p *entity.Person) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	query, args := r.db.builder().Insert(schema.PersonsTable).
		Columns("id", "full_name", "id_type", "id_number", "created_at").
		Values(p.ID, p.FullName, nullString(p.IDType), nullString(p.IDNumber), p.CreatedAt).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to create person", "full_name", p.FullName, "error", err)
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (r *accountRepository) CreateAccount(ctx context.Context, a *entity.Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query, args := r.db.builder().Insert(schema.AccountsTable).
		Columns("id", "account_name", "account_number", "account_type", "institution", "created_at", "owner_id").
		Values(a.ID, a.AccountName, a.AccountNumber, nullString(a.AccountType), nullString(a.Institution), a.CreatedAt, a.OwnerID).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		if isUniqueViolation(err) {
			return common.NewAppError("ACCOUNT_EXISTS", fmt.Sprintf("account number %s already registered", a.AccountNumber), common.ErrInvalidInput)
		}
		r.logger.Error("failed to create account", "account_number", a.AccountNumber, "error", err)
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *accountRepository) get(ctx context.Context, p *entsql.Predicate) (*entity.Account, error) {
	b := r.db.builder()
	query, args := b.Select("id", "account_name", "account_number", "account_type", "institution", "created_at", "owner_id").
		From(b.Table(schema.AccountsTable)).
		Where(p).
		Limit(1).
		Query()

	var out *entity.Account
	err := queryEach(ctx, r.db.drv, query, args, func(rows *entsql.Rows) error {
		var (
			a                 entity.Account
			kind, institution stdsql.NullString
		)
		if err := rows.Scan(&a.ID, &a.AccountName, &a.AccountNumber, &kind, &institution, &a.CreatedAt, &a.OwnerID); err != nil {
			return err
		}
		a.AccountType = stringPtr(kind)
		a.Institution = stringPtr(institution)
		out = &a
		return nil
	})
	if err != nil {
		r.logger.Error("failed to get account", "error", err)
		return nil, err
	}
	if out == nil {
		return nil, common.ErrNotFound
	}
	return out, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Account, error) {
	return r.get(ctx, entsql.EQ("id", id))
}

func (r *accountRepository) GetByNumber(ctx context.Context, accountNumber string) (*entity.Account, error) {
	return r.get(ctx, entsql.EQ("account_number", accountNumber))
}

func (r *accountRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := r.GetByID(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case err == common.ErrNotFound:
		return false, nil
	default:
		r.logger.Error("failed to check account existence", "account_id", id, "error", err)
		return false, err
	}
}
