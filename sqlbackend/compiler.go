package sqlbackend

import (
	"context"
	"fmt"
	"sort"

	"github.com/TobeTek/cascade"
)

// RowSource is the extra capability a cascade.Instance must expose for this
// package to compile an UPDATE statement from it: its table name, its
// primary key column, and its current column values. cascade.Instance
// itself deliberately exposes none of this — the planner never needs it —
// so any concrete Instance type wired into this backend must implement
// RowSource too.
type RowSource interface {
	cascade.Instance
	TableName() string
	PKColumn() string
	Values() map[string]any
}

// Compiler is a cascade.QueryCompiler backed by a Registry of real SQL
// connections.
type Compiler struct {
	Registry *Registry
}

// NewCompiler wires a QueryCompiler against the given connection registry.
func NewCompiler(reg *Registry) *Compiler {
	return &Compiler{Registry: reg}
}

// UpdateQuery implements cascade.QueryCompiler.
func (c *Compiler) UpdateQuery(model *cascade.Model) cascade.UpdateQuery {
	return &updateQuery{compiler: c, model: model}
}

type updateQuery struct {
	compiler *Compiler
	model    *cascade.Model
}

// UpdateBatch writes each instance's current column values back to its own
// row, one UPDATE statement per instance.
func (q *updateQuery) UpdateBatch(ctx context.Context, using string, instances []cascade.Instance) (int64, error) {
	if len(instances) == 0 {
		return 0, nil
	}
	db, dialect, err := q.compiler.Registry.db(using)
	if err != nil {
		return 0, err
	}
	b := binderFor(dialect)

	var total int64
	for _, inst := range instances {
		row, ok := inst.(RowSource)
		if !ok {
			return total, fmt.Errorf("sqlbackend: instance of %q does not implement RowSource", q.model.Label)
		}
		values := row.Values()
		cols := sortedKeys(values)

		setClause, next := buildSetClause(b, cols, 1)
		stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			b.Quote(row.TableName()), setClause, b.Quote(row.PKColumn()), b.Placeholder(next))

		args := make([]any, 0, len(cols)+1)
		for _, col := range cols {
			args = append(args, values[col])
		}
		args = append(args, row.PK())

		res, err := db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return total, cascade.WrapExecError(row.TableName(), err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// UpdateFields applies one (field -> value) assignment to every row whose
// primary key is in pks, in a single statement.
func (q *updateQuery) UpdateFields(ctx context.Context, using string, pks []any, values map[*cascade.Field]any) (int64, error) {
	if len(pks) == 0 || len(values) == 0 {
		return 0, nil
	}
	db, dialect, err := q.compiler.Registry.db(using)
	if err != nil {
		return 0, err
	}
	b := binderFor(dialect)

	var fieldNames []string
	assign := map[string]any{}
	for f, v := range values {
		fieldNames = append(fieldNames, f.Name)
		assign[f.Name] = v
	}
	sort.Strings(fieldNames)

	pkColumn := q.model.PKColumn
	if pkColumn == "" {
		pkColumn = "id"
	}
	setClause, next := buildSetClause(b, fieldNames, 1)
	inClause, _ := buildInClause(b, pkColumn, len(pks), next)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		b.Quote(q.model.Table), setClause, inClause)

	args := make([]any, 0, len(fieldNames)+len(pks))
	for _, name := range fieldNames {
		args = append(args, assign[name])
	}
	args = append(args, pks...)

	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, cascade.WrapExecError(q.model.Table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
