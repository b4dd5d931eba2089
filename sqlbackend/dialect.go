package sqlbackend

import "strings"

// binder renders bind-variable placeholders and quotes identifiers for one
// SQL dialect — the concept the teacher's stray, non-compiling binder.go/
// dialect.go sketched but never settled on; this is a from-scratch,
// self-consistent rendering of that idea.
type binder interface {
	Placeholder(n int) string
	Quote(ident string) string
}

func binderFor(d Dialect) binder {
	switch d {
	case DialectPostgres:
		return postgresDialect{}
	case DialectMySQL:
		return mysqlDialect{}
	case DialectSQLite:
		return sqliteDialect{}
	default:
		return mysqlDialect{}
	}
}

// buildSetClause renders "col1 = ?, col2 = $2" (per dialect) in the
// iteration order of cols, starting bind numbering at startAt.
func buildSetClause(b binder, cols []string, startAt int) (string, int) {
	parts := make([]string, len(cols))
	n := startAt
	for i, col := range cols {
		parts[i] = b.Quote(col) + " = " + b.Placeholder(n)
		n++
	}
	return strings.Join(parts, ", "), n
}

// buildInClause renders "col IN ($1, $2, ...)" starting bind numbering at
// startAt, returning the next free bind number.
func buildInClause(b binder, col string, count, startAt int) (string, int) {
	parts := make([]string, count)
	n := startAt
	for i := range parts {
		parts[i] = b.Placeholder(n)
		n++
	}
	return b.Quote(col) + " IN (" + strings.Join(parts, ", ") + ")", n
}
