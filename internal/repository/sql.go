package repository

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrLostTransition is returned when a status update matched no row because the
// record was no longer in the expected source state.
var ErrLostTransition = errors.New("status transition lost")

// querier is the subset of the ent driver (or an open transaction) the repositories need.
type querier = dialect.ExecQuerier

func (db *DB) builder() *entsql.DialectBuilder {
	return entsql.Dialect(db.Dialect())
}

func execAffected(ctx context.Context, q querier, query string, args []any) (int64, error) {
	var res stdsql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// queryEach runs query and calls scan once per row.
func queryEach(ctx context.Context, q querier, query string, args []any, scan func(*entsql.Rows) error) error {
	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
	}
	return rows.Err()
}

// isUniqueViolation reports unique-constraint failures from either backend.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return sqlgraph.IsUniqueConstraintError(err)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns stdsql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
