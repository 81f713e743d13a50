// Package dialect rewrites stored query text between the SQL dialects the
// engine meets: T-SQL (the P21 server), Jet (the POR Access file), SQLite
// (the embedded test dataset) and PostgreSQL (a P21 replica).
//
// Translation is textual and covers a documented subset: the functions and
// literals the dashboard's stored queries use. Anything else passes through
// unchanged and fails, if at all, in the target engine.
package dialect

import (
	"fmt"
	"strings"
)

// Dialect names a SQL dialect.
type Dialect string

const (
	TSQL     Dialect = "tsql"
	Jet      Dialect = "jet"
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Parse maps a dialect or driver name onto a Dialect.
func Parse(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tsql", "mssql", "sqlserver":
		return TSQL, nil
	case "jet", "access":
		return Jet, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unknown dialect: %s", s)
	}
}

// Translator rewrites SQL from one dialect into another.
type Translator struct {
	from, to Dialect
}

// NewTranslator creates a translator from one dialect into another.
func NewTranslator(from, to Dialect) *Translator {
	return &Translator{from: from, to: to}
}

// Translate rewrites sql. Same-dialect translation is the identity.
func (t *Translator) Translate(sql string) string {
	if t.from == t.to {
		return sql
	}
	switch {
	case t.from == TSQL && t.to == SQLite:
		return tsqlToSQLite(sql)
	case t.from == TSQL && t.to == Postgres:
		return tsqlToPostgres(sql)
	case t.from == Jet && t.to == SQLite:
		return jetToSQLite(sql)
	default:
		return sql
	}
}

// Translate is a convenience wrapper around NewTranslator(from, to).Translate.
func Translate(sql string, from, to Dialect) string {
	return NewTranslator(from, to).Translate(sql)
}
