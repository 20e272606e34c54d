package repository

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/db/schema"
	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
)

// ErrCounterpartyExists is returned by Create when the identity key is taken.
var ErrCounterpartyExists = fmt.Errorf("counterparty identity already exists")

// IdentityKey is the unique lookup key of a counterparty: the reference number
// when one is present, otherwise the display name of an unreferenced party.
func IdentityKey(name string, accountNumber *string) string {
	if accountNumber != nil && *accountNumber != "" {
		return "ref:" + *accountNumber
	}
	return "name:" + name
}

type CounterpartyRepository interface {
	FindByIdentity(ctx context.Context, name string, accountNumber *string) (*entity.Counterparty, error)
	Create(ctx context.Context, c *entity.Counterparty) error
	UpdateType(ctx context.Context, id uuid.UUID, t constants.CounterpartyType) error
	Count(ctx context.Context) (int, error)
}

type counterpartyRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewCounterpartyRepository(db *DB, logger *slog.Logger) CounterpartyRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &counterpartyRepository{
		db:     db,
		logger: logger,
	}
}

func (r *counterpartyRepository) FindByIdentity(ctx context.Context, name string, accountNumber *string) (*entity.Counterparty, error) {
	b := r.db.builder()
	query, args := b.Select("id", "name", "account_number", "counterparty_type", "created_at", "updated_at").
		From(b.Table(schema.CounterpartiesTable)).
		Where(entsql.EQ("identity_key", IdentityKey(name, accountNumber))).
		Limit(1).
		Query()

	var out *entity.Counterparty
	err := queryEach(ctx, r.db.drv, query, args, func(rows *entsql.Rows) error {
		var (
			c    entity.Counterparty
			ref  stdsql.NullString
			kind string
		)
		if err := rows.Scan(&c.ID, &c.Name, &ref, &kind, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return err
		}
		c.AccountNumber = stringPtr(ref)
		c.Type = constants.CounterpartyType(kind)
		out = &c
		return nil
	})
	if err != nil {
		r.logger.Error("failed to look up counterparty", "name", name, "error", err)
		return nil, err
	}
	if out == nil {
		return nil, common.ErrNotFound
	}
	return out, nil
}

// Create inserts c. It returns ErrCounterpartyExists when another writer already
// holds the identity key.
func (r *counterpartyRepository) Create(ctx context.Context, c *entity.Counterparty) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	query, args := r.db.builder().Insert(schema.CounterpartiesTable).
		Columns("id", "name", "account_number", "counterparty_type", "identity_key", "created_at", "updated_at").
		Values(c.ID, c.Name, nullString(c.AccountNumber), string(c.Type), IdentityKey(c.Name, c.AccountNumber), c.CreatedAt, c.UpdatedAt).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		if isUniqueViolation(err) {
			return ErrCounterpartyExists
		}
		r.logger.Error("failed to create counterparty", "name", c.Name, "error", err)
		return fmt.Errorf("insert counterparty: %w", err)
	}
	return nil
}

func (r *counterpartyRepository) UpdateType(ctx context.Context, id uuid.UUID, t constants.CounterpartyType) error {
	query, args := r.db.builder().Update(schema.CounterpartiesTable).
		Set("counterparty_type", string(t)).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id)).
		Query()
	n, err := execAffected(ctx, r.db.drv, query, args)
	if err != nil {
		r.logger.Error("failed to update counterparty type", "counterparty_id", id, "type", t, "error", err)
		return fmt.Errorf("update counterparty: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *counterpartyRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, schema.CounterpartiesTable, nil)
}

// countRows counts rows in table, optionally filtered by p.
func countRows(ctx context.Context, db *DB, table string, p *entsql.Predicate) (int, error) {
	b := db.builder()
	sel := b.Select(entsql.Count("*")).From(b.Table(table))
	if p != nil {
		sel = sel.Where(p)
	}
	query, args := sel.Query()
	var n int
	err := queryEach(ctx, db.drv, query, args, func(rows *entsql.Rows) error {
		return rows.Scan(&n)
	})
	return n, err
}
