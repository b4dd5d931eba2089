package cascade

import "context"

// QuerySetLike is a deferred bulk handle over rows of one model — the
// planner's view of whatever query-building type the host ORM session
// actually uses. Implementations are expected to memoize Instances() once
// computed, matching Django's QuerySet._result_cache.
type QuerySetLike interface {
	Model() *Model

	// Filter narrows the set to rows whose field's value is in values. It
	// returns a new QuerySetLike; it never mutates the receiver.
	Filter(field *Field, values []any) QuerySetLike

	// Only restricts which columns a later Instances() call needs to
	// fetch. Implementations that cannot defer columns may treat this as a
	// no-op — it is a narrowing hint, never a correctness requirement.
	Only(columns ...string) QuerySetLike

	// SelectRelated reports whether the queryset already eagerly joins
	// related rows, which disables the deferred-column optimization (the
	// join needs every column the join condition touches).
	SelectRelated() bool

	// ResultCacheComputed reports whether Instances() has already been
	// called and its result memoized. The planner uses this to decide
	// whether a field update can be folded into a single set-based
	// UPDATE...WHERE statement or must be merged into the instance-batch
	// path.
	ResultCacheComputed() bool

	// Instances materializes (and memoizes) the rows the queryset
	// currently matches.
	Instances() []Instance

	// Update applies values to every matched row in one statement and
	// returns the number of rows affected.
	Update(ctx context.Context, using string, values map[*Field]any) (int64, error)
}

// Union composes two QuerySetLikes of the same model into one deferred
// handle representing their combined rows, used by the planner to merge
// multiple uncomputed field-update sources into a single statement instead
// of issuing one per source.
func Union(a, b QuerySetLike) QuerySetLike {
	return &unionQuerySet{parts: []QuerySetLike{a, b}}
}

type unionQuerySet struct {
	parts []QuerySetLike
}

func (u *unionQuerySet) Model() *Model {
	if len(u.parts) == 0 {
		return nil
	}
	return u.parts[0].Model()
}

func (u *unionQuerySet) Filter(field *Field, values []any) QuerySetLike {
	parts := make([]QuerySetLike, len(u.parts))
	for i, p := range u.parts {
		parts[i] = p.Filter(field, values)
	}
	return &unionQuerySet{parts: parts}
}

func (u *unionQuerySet) Only(columns ...string) QuerySetLike {
	parts := make([]QuerySetLike, len(u.parts))
	for i, p := range u.parts {
		parts[i] = p.Only(columns...)
	}
	return &unionQuerySet{parts: parts}
}

func (u *unionQuerySet) SelectRelated() bool {
	for _, p := range u.parts {
		if p.SelectRelated() {
			return true
		}
	}
	return false
}

func (u *unionQuerySet) ResultCacheComputed() bool {
	for _, p := range u.parts {
		if !p.ResultCacheComputed() {
			return false
		}
	}
	return true
}

func (u *unionQuerySet) Instances() []Instance {
	seen := map[any]bool{}
	var out []Instance
	for _, p := range u.parts {
		for _, inst := range p.Instances() {
			if !seen[inst.Key()] {
				seen[inst.Key()] = true
				out = append(out, inst)
			}
		}
	}
	return out
}

func (u *unionQuerySet) Update(ctx context.Context, using string, values map[*Field]any) (int64, error) {
	var total int64
	for _, p := range u.parts {
		n, err := p.Update(ctx, using, values)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// RelatedObjectsFetcher resolves the rows of relatedModel that reference
// any of batch through relatedFields — the consumed capability behind
// BaseCollector.related_objects.
type RelatedObjectsFetcher interface {
	RelatedObjects(relatedModel *Model, relatedFields []*Field, batch []Instance, using string) QuerySetLike
}

// ConnectionRegistry is the consumed capability behind
// connections[using].features — today the planner only asks it for batch
// sizing, matching the spec's narrow use of the connection registry.
type ConnectionRegistry interface {
	// BulkBatchSize bounds how many rows a single statement filtering on
	// fieldNames may carry, for the given using alias. A return value < 1
	// means "no limit."
	BulkBatchSize(using string, fieldNames []string, objs []Instance) int
}

// TransactionManager is the consumed capability behind
// transaction.atomic(using=...): one non-nested transaction per Update
// call, with savepoint=false since the planner never needs to nest.
type TransactionManager interface {
	Begin(ctx context.Context, using string) (Tx, error)
}

// Tx is the minimal transaction handle the planner needs.
type Tx interface {
	Commit() error
	Rollback() error
}

// SignalName identifies one of the two lifecycle signals the planner fans
// out around each instance-level write.
type SignalName string

const (
	PreSave  SignalName = "pre_save"
	PostSave SignalName = "post_save"
)

// SignalBus is the consumed capability behind Django's signal dispatcher.
// CanFastUpdate refuses the fast path for any model with a listener on
// either signal, since the fast path never loads or saves individual
// instances for the listener to observe.
type SignalBus interface {
	HasListeners(signal SignalName, model *Model) bool
	Send(ctx context.Context, signal SignalName, model *Model, instance Instance, using string, origin any) error
}

// QueryCompiler is the consumed SQL dialect/compiler capability — entirely
// out of scope to implement here beyond the adapter in ./sqlbackend that
// exists to exercise real drivers in tests.
type QueryCompiler interface {
	UpdateQuery(model *Model) UpdateQuery
}

// UpdateQuery is the narrow slice of the query compiler the planner drives
// directly.
type UpdateQuery interface {
	// UpdateBatch persists the current in-memory field values of each
	// instance (the general row-update pass and the single-row fast-path
	// escape) and returns the number of rows affected.
	UpdateBatch(ctx context.Context, using string, instances []Instance) (int64, error)

	// UpdateFields applies a fixed (field -> value) assignment to every
	// row whose primary key is in pks (the scheduled field-update pass).
	UpdateFields(ctx context.Context, using string, pks []any, values map[*Field]any) (int64, error)
}
