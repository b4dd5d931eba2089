package sqlbackend

import (
	_ "github.com/mattn/go-sqlite3"
)

// sqliteDialect renders `?` bind placeholders and double-quoted
// identifiers — SQLite accepts either quoting style, but double quotes
// keep it consistent with the Postgres dialect for readability.
type sqliteDialect struct{}

func (sqliteDialect) Placeholder(int) string   { return "?" }
func (sqliteDialect) Quote(ident string) string { return `"` + ident + `"` }
