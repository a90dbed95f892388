package database

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pqUniqueViolation = "23505"

// UniqueViolation reports whether err is a unique-constraint violation from
// either supported driver. target identifies what was violated: the
// constraint name for postgres, the driver message (which lists the
// table.column pairs) for sqlite.
func UniqueViolation(err error) (target string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == pqUniqueViolation {
			return pqErr.Constraint, true
		}
		return "", false
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch code := liteErr.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return liteErr.Error(), true
		case code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE constraint failed"):
			// connection without extended result codes
			return liteErr.Error(), true
		}
	}
	return "", false
}
