// Package dbx holds the small database abstractions shared by repositories:
// the DBTX interface satisfied by both *sql.DB and *sql.Tx, a transaction
// helper, and the conditional-update row check used for status claims.
package dbx

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/google/uuid"
)

// DBTX is the subset of database/sql used by the repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// ExactlyOne checks the result of a conditional UPDATE/DELETE. Zero affected
// rows means the guard in the WHERE clause did not hold and is reported as
// common.ErrStatusConflict.
func ExactlyOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrStatusConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// CheckID rejects ids that cannot name a row in a uuid column, so callers get
// common.ErrorNotFound instead of a driver cast error.
func CheckID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.ErrorNotFound
	}
	return nil
}
