package sqlstore

import (
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// dialect captures the few places SQLite and PostgreSQL differ.
type dialect struct {
	name        string
	placeholder sq.PlaceholderFormat
	goose       goose.Dialect
	migrations  string // directory under migrations/

	// lockSuffix is appended to product reads inside WithTx.
	lockSuffix string
}

var (
	sqliteDialect = dialect{
		name:        "sqlite",
		placeholder: sq.Question,
		goose:       goose.DialectSQLite3,
		migrations:  "migrations/sqlite",
	}
	postgresDialect = dialect{
		name:        "postgres",
		placeholder: sq.Dollar,
		goose:       goose.DialectPostgres,
		migrations:  "migrations/postgres",
		lockSuffix:  "FOR UPDATE OF p",
	}
)

// Dialect reports which database the store runs on.
func (s *Store) Dialect() string {
	return s.dialect.name
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return false
}
