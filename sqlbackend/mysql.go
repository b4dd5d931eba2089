package sqlbackend

import (
	_ "github.com/go-sql-driver/mysql"
)

// mysqlDialect renders `?` bind placeholders and backtick-quoted
// identifiers.
type mysqlDialect struct{}

func (mysqlDialect) Placeholder(int) string   { return "?" }
func (mysqlDialect) Quote(ident string) string { return "`" + ident + "`" }
