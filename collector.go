package cascade

import "fmt"

// fieldValueKey is the (field, value) pair a scheduled field update is
// keyed by. value must be comparable — the same requirement Python's dict
// hashing places on it implicitly.
type fieldValueKey struct {
	field *Field
	value any
}

// instanceCollection is one contributor to a scheduled field update: either
// a deferred QuerySetLike or an already-materialized instance slice.
type instanceCollection struct {
	queryset  QuerySetLike
	instances []Instance
}

// Collector is the central mutable aggregate a single cascade traversal
// builds up. It is constructed once, driven through zero or more Collect
// calls, and then consumed by exactly one Update call — reusing it past
// that point is a programming error (Update returns ErrAlreadyUpdated).
type Collector struct {
	using  string
	origin any

	data      map[*Model]*instanceSet
	dataOrder []*Model

	fieldUpdates      map[fieldValueKey][]instanceCollection
	fieldUpdatesOrder []fieldValueKey

	restrictedObjects map[*Model]map[*Field]*instanceSet

	dependencies map[*Model]map[*Model]struct{}

	fastModObjs []QuerySetLike

	signals  SignalBus
	compiler QueryCompiler
	conns    ConnectionRegistry
	txMgr    TransactionManager
	fetcher  RelatedObjectsFetcher

	updated bool
}

// NewCollector builds a Collector bound to one logical database alias
// (using) and an opaque origin value (e.g. the originating queryset or
// request) carried through only for signal dispatch.
func NewCollector(using string, origin any, signals SignalBus, compiler QueryCompiler, conns ConnectionRegistry, txMgr TransactionManager, fetcher RelatedObjectsFetcher) *Collector {
	return &Collector{
		using:             using,
		origin:            origin,
		data:              make(map[*Model]*instanceSet),
		fieldUpdates:      make(map[fieldValueKey][]instanceCollection),
		restrictedObjects: make(map[*Model]map[*Field]*instanceSet),
		dependencies:      make(map[*Model]map[*Model]struct{}),
		signals:           signals,
		compiler:          compiler,
		conns:             conns,
		txMgr:             txMgr,
		fetcher:           fetcher,
	}
}

// Using returns the logical database alias this collector plans against.
func (c *Collector) Using() string { return c.using }

// Origin returns the opaque value NewCollector was given.
func (c *Collector) Origin() any { return c.origin }

// add records objs as needing an update, skipping any already present and,
// when ignoreNewRecords is set, any still unsaved. It returns only the
// subset that was newly added — the signal to the caller that it should
// keep walking from them. A non-nil source records a sort dependency from
// the newly-added model onto source (or the reverse, when
// reverseDependency is set), unless nullable is true — a nullable
// relationship never forces sort order since the column can simply be
// written as NULL if needed.
func (c *Collector) add(objs []Instance, source *Model, nullable, reverseDependency, ignoreNewRecords bool) []Instance {
	if len(objs) == 0 {
		return nil
	}
	model := objs[0].Model()
	set, ok := c.data[model]
	if !ok {
		set = newInstanceSet()
		c.data[model] = set
		c.dataOrder = append(c.dataOrder, model)
	}

	var newObjs []Instance
	for _, obj := range objs {
		if set.contains(obj) {
			continue
		}
		if ignoreNewRecords && obj.IsAdding() {
			continue
		}
		newObjs = append(newObjs, obj)
	}
	for _, obj := range newObjs {
		set.add(obj)
	}

	if source != nil && !nullable {
		c.addDependency(source, model, reverseDependency)
	}
	return newObjs
}

// addDependency records that dependency's concrete model must be written
// before model's concrete model (or the reverse, when reverseDependency is
// set), and ensures the dependency side has an (possibly empty) entry in
// data so sort never waits on a model it has never seen added.
func (c *Collector) addDependency(model, dependency *Model, reverseDependency bool) {
	if reverseDependency {
		model, dependency = dependency, model
	}
	cm := model.ConcreteModel()
	dm := dependency.ConcreteModel()
	set, ok := c.dependencies[cm]
	if !ok {
		set = make(map[*Model]struct{})
		c.dependencies[cm] = set
	}
	set[dm] = struct{}{}

	if _, ok := c.data[dependency]; !ok {
		c.data[dependency] = newInstanceSet()
		c.dataOrder = append(c.dataOrder, dependency)
	}
}

// AddFieldUpdate schedules field to be set to value across every row in
// objs (a QuerySetLike or an InstanceList), in addition to — never instead
// of — whatever Collect/add has already scheduled for those rows' own
// column values.
func (c *Collector) AddFieldUpdate(field *Field, value any, objs any) {
	var col instanceCollection
	switch v := objs.(type) {
	case QuerySetLike:
		col = instanceCollection{queryset: v}
	case InstanceList:
		col = instanceCollection{instances: []Instance(v)}
	case []Instance:
		col = instanceCollection{instances: v}
	default:
		panic(fmt.Sprintf("cascade: AddFieldUpdate given unsupported type %T", objs))
	}

	key := fieldValueKey{field: field, value: value}
	if _, ok := c.fieldUpdates[key]; !ok {
		c.fieldUpdatesOrder = append(c.fieldUpdatesOrder, key)
	}
	c.fieldUpdates[key] = append(c.fieldUpdates[key], col)
}

// AddRestrictedObjects records objs as blocked on field pending rescue by
// some other path through the same traversal.
func (c *Collector) AddRestrictedObjects(field *Field, objs []Instance) {
	if len(objs) == 0 {
		return
	}
	model := objs[0].Model()
	byField, ok := c.restrictedObjects[model]
	if !ok {
		byField = make(map[*Field]*instanceSet)
		c.restrictedObjects[model] = byField
	}
	set, ok := byField[field]
	if !ok {
		set = newInstanceSet()
		byField[field] = set
	}
	for _, obj := range objs {
		set.add(obj)
	}
}

// clearRestrictedObjectsFromSet drops every instance of newObjs out of
// every restricted-objects bucket — they were reached through some other,
// unrestricted path, so whatever restriction registered them is rescued.
func (c *Collector) clearRestrictedObjectsFromSet(newObjs *instanceSet) {
	for _, byField := range c.restrictedObjects {
		for _, set := range byField {
			for _, obj := range newObjs.instances() {
				set.remove(obj)
			}
		}
	}
}

// clearRestrictedObjectsFromQuerySet is the fast-path counterpart to
// clearRestrictedObjectsFromSet: a row reached only through a fast-updated
// queryset is just as rescued as one materialized into data.
func (c *Collector) clearRestrictedObjectsFromQuerySet(qs QuerySetLike) {
	c.clearRestrictedObjectsFromSet(instancesAsSet(qs.Instances()))
}

func instancesAsSet(instances []Instance) *instanceSet {
	set := newInstanceSet()
	for _, inst := range instances {
		set.add(inst)
	}
	return set
}

// getObjBatches splits objs into batches no larger than the connection
// registry's BulkBatchSize for fields, preserving order.
func (c *Collector) getObjBatches(objs []Instance, fields []*Field) [][]Instance {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	size := c.conns.BulkBatchSize(c.using, names, objs)
	if size < 1 || size >= len(objs) {
		return [][]Instance{objs}
	}
	var batches [][]Instance
	for i := 0; i < len(objs); i += size {
		end := i + size
		if end > len(objs) {
			end = len(objs)
		}
		batches = append(batches, objs[i:end])
	}
	return batches
}

// hasSignalListeners reports whether model has a pre_save or post_save
// listener registered, the condition CanFastUpdate and the deferred-column
// optimization both gate on.
func (c *Collector) hasSignalListeners(model *Model) bool {
	return c.signals.HasListeners(PreSave, model) || c.signals.HasListeners(PostSave, model)
}

// instancesWithModel iterates every collected instance in insertion order,
// tagged with its model.
func (c *Collector) instancesWithModel() []modelInstance {
	var out []modelInstance
	for _, m := range c.dataOrder {
		for _, inst := range c.data[m].instances() {
			out = append(out, modelInstance{model: m, instance: inst})
		}
	}
	return out
}

type modelInstance struct {
	model    *Model
	instance Instance
}

// sort performs a best-effort Kahn-style topological sort of dataOrder by
// the dependency graph addDependency built up, so that Update can write
// models in an order where nothing is written before what it depends on.
// If the graph contains a cycle, sort gives up and leaves dataOrder
// untouched — a documented limitation, never an error, matching the spec.
func (c *Collector) sort() {
	models := append([]*Model(nil), c.dataOrder...)
	var sorted []*Model
	inSorted := make(map[*Model]bool, len(models))
	concrete := make(map[*Model]struct{}, len(models))

	for len(sorted) < len(models) {
		progressed := false
		for _, m := range models {
			if inSorted[m] {
				continue
			}
			deps := c.dependencies[m.ConcreteModel()]
			ready := true
			for d := range deps {
				if _, ok := concrete[d]; !ok {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			sorted = append(sorted, m)
			inSorted[m] = true
			concrete[m.ConcreteModel()] = struct{}{}
			progressed = true
		}
		if !progressed {
			return // cycle: leave dataOrder as-is
		}
	}
	c.dataOrder = sorted
}
