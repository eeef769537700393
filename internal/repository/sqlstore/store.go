// Package sqlstore implements the repository interfaces over database/sql.
// Queries are written with postgres-style $n placeholders and rebound for
// sqlite, which replaces the per-call dialect branching the service grew out
// of.
package sqlstore

import (
	"fmt"
	"strings"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// rebind converts $1..$n placeholders to sqlite's numbered ?NNN form.
// Keeping the ordinal matters: queries like the withdrawal debit reuse $1,
// and a bare ? would demand one argument per occurrence. Postgres queries
// pass through untouched.
func (d Dialect) rebind(query string) string {
	if d == DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '1' && query[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// supportsReturning reports whether INSERT ... RETURNING can be used.
// sqlite inserts fall back to LastInsertId.
func (d Dialect) supportsReturning() bool {
	return d == DialectPostgres
}

func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return DialectPostgres, nil
	case "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}
