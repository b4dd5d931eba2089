package cascade

import "context"

// testRow is a minimal in-memory row used across the test suite: it plays
// both the Instance the planner consumes and the storage cell a fake
// database mutates directly, so assertions can simply read r.fields/r.pk
// back after Update runs instead of standing up a real driver.
type testRow struct {
	model  *Model
	pk     any
	fields map[string]any
	adding bool
}

func newTestRow(model *Model, pk any, fields map[string]any) *testRow {
	if fields == nil {
		fields = map[string]any{}
	}
	return &testRow{model: model, pk: pk, fields: fields}
}

func (r *testRow) Model() *Model   { return r.model }
func (r *testRow) PK() any         { return r.pk }
func (r *testRow) SetPK(v any)     { r.pk = v }
func (r *testRow) IsAdding() bool  { return r.adding }
func (r *testRow) Key() any        { return instanceKey{label: r.model.Label, pk: r.pk} }
func (r *testRow) get(name string) any { return r.fields[name] }

// testDB is a bare in-memory table set, keyed by Model identity.
type testDB struct {
	rows map[*Model][]*testRow
}

func newTestDB() *testDB { return &testDB{rows: map[*Model][]*testRow{}} }

func (db *testDB) add(r *testRow) { db.rows[r.model] = append(db.rows[r.model], r) }

// testQuerySet is a QuerySetLike over a testDB, filtered by at most one
// (field, values) predicate — enough to stand in for the host ORM's real
// query builder across every scenario this suite drives.
type testQuerySet struct {
	model    *Model
	db       *testDB
	field    *Field
	values   []any
	computed bool
	cached   []Instance
}

func newQuerySet(db *testDB, model *Model) *testQuerySet {
	return &testQuerySet{model: model, db: db}
}

func (q *testQuerySet) Model() *Model { return q.model }

func (q *testQuerySet) Filter(field *Field, values []any) QuerySetLike {
	return &testQuerySet{model: q.model, db: q.db, field: field, values: values}
}

func (q *testQuerySet) Only(cols ...string) QuerySetLike { return q }

func (q *testQuerySet) SelectRelated() bool { return false }

func (q *testQuerySet) ResultCacheComputed() bool { return q.computed }

func (q *testQuerySet) Instances() []Instance {
	if q.computed {
		return q.cached
	}
	var out []Instance
	for _, r := range q.db.rows[q.model] {
		if r.adding {
			continue
		}
		if q.field != nil && !anyContains(q.values, r.fields[q.field.Name]) {
			continue
		}
		out = append(out, r)
	}
	q.cached = out
	q.computed = true
	return out
}

func (q *testQuerySet) Update(ctx context.Context, using string, values map[*Field]any) (int64, error) {
	rows := q.Instances()
	for _, inst := range rows {
		r := inst.(*testRow)
		for f, v := range values {
			r.fields[f.Name] = v
		}
	}
	return int64(len(rows)), nil
}

func anyContains(values []any, v any) bool {
	for _, cand := range values {
		if cand == v {
			return true
		}
	}
	return false
}

// testFetcher implements RelatedObjectsFetcher by filtering a testDB on the
// referencing field's column against the batch's primary keys.
type testFetcher struct{ db *testDB }

func (f *testFetcher) RelatedObjects(relatedModel *Model, relatedFields []*Field, batch []Instance, using string) QuerySetLike {
	var pks []any
	for _, inst := range batch {
		pks = append(pks, inst.PK())
	}
	return newQuerySet(f.db, relatedModel).Filter(relatedFields[0], pks)
}

// testConns is a ConnectionRegistry reporting no batch-size ceiling.
type testConns struct{}

func (testConns) BulkBatchSize(using string, fieldNames []string, objs []Instance) int { return 0 }

// testTxMgr/testTx are no-op TransactionManager/Tx implementations — the
// testDB commits its mutations eagerly, so there is nothing to roll back to.
type testTxMgr struct{}

func (testTxMgr) Begin(ctx context.Context, using string) (Tx, error) { return testTx{}, nil }

type testTx struct{}

func (testTx) Commit() error   { return nil }
func (testTx) Rollback() error { return nil }

// testCompiler is a QueryCompiler that writes straight into the testDB the
// rows already live in.
type testCompiler struct{ db *testDB }

func (c *testCompiler) UpdateQuery(model *Model) UpdateQuery {
	return &testUpdateQuery{db: c.db, model: model}
}

type testUpdateQuery struct {
	db    *testDB
	model *Model
}

func (q *testUpdateQuery) UpdateBatch(ctx context.Context, using string, instances []Instance) (int64, error) {
	return int64(len(instances)), nil
}

func (q *testUpdateQuery) UpdateFields(ctx context.Context, using string, pks []any, values map[*Field]any) (int64, error) {
	var n int64
	for _, r := range q.db.rows[q.model] {
		if !anyContains(pks, r.pk) {
			continue
		}
		for f, v := range values {
			r.fields[f.Name] = v
		}
		n++
	}
	return n, nil
}

// newTestCollector wires a Collector against an isolated testDB with every
// consumed capability faked in-memory.
func newTestCollector(db *testDB, using string) *Collector {
	return NewCollector(using, nil, NewSignalBus(), &testCompiler{db: db}, testConns{}, testTxMgr{}, &testFetcher{db: db})
}
