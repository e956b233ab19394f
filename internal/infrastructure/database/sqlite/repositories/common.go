// Package repositories implements the domain repository ports on the SQLite
// store.
package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/turtacn/edefter-tracker/internal/infrastructure/database/sqlite"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// queryExecutor abstracts sqlx.DB and sqlx.Tx.
type queryExecutor interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

type baseRepo struct {
	conn *sqlite.Connection
	log  logging.Logger
}

func newBaseRepo(conn *sqlite.Connection, log logging.Logger) baseRepo {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return baseRepo{conn: conn, log: log}
}

func (r *baseRepo) executor() queryExecutor {
	return r.conn.DB()
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func dbError(err error, message string) error {
	return errors.Wrap(err, errors.CodeDatabaseError, message)
}
