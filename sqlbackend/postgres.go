package sqlbackend

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// postgresDialect renders `$1, $2, ...` bind placeholders and double-quoted
// identifiers, matching the teacher's own Postgres assumptions in
// postgres.go/schema.go.
type postgresDialect struct{}

func (postgresDialect) Placeholder(n int) string  { return fmt.Sprintf("$%d", n) }
func (postgresDialect) Quote(ident string) string { return `"` + ident + `"` }
