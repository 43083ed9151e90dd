package data

import (
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour of a connection.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// Rebind rewrites '?' placeholders into the dialect's bind syntax.
// Queries are written with '?' and never contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// IsDuplicateKey reports whether err looks like a unique constraint violation.
func (d Dialect) IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch d {
	case DialectPostgres:
		return strings.Contains(msg, "sqlstate 23505") || strings.Contains(msg, "duplicate key")
	case DialectMySQL:
		return strings.Contains(msg, "error 1062") || strings.Contains(msg, "duplicate entry")
	default:
		return strings.Contains(msg, "unique constraint failed")
	}
}
