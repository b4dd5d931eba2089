package cascade

import (
	"context"
	"fmt"
	"strings"
)

// InstanceList is a materialized Collectable input to Collect — the
// counterpart to a QuerySetLike when the caller already holds the rows in
// memory (e.g. the top-level rows whose field is changing).
type InstanceList []Instance

// collectConfig holds the resolved options for one Collect call.
type collectConfig struct {
	source            *Model
	nullable          bool
	collectRelated    bool
	sourceAttr        string
	reverseDependency bool
	keepParents       bool
	failOnRestricted  bool
	value             any
}

// CollectOption configures one Collect call, following the same functional-
// options shape the teacher's resolver configuration uses.
type CollectOption func(*collectConfig)

// WithSource records the model that caused this batch to be collected, used
// to order it in the dependency graph.
func WithSource(m *Model) CollectOption { return func(cc *collectConfig) { cc.source = m } }

// WithNullable marks the relationship that caused this batch as nullable,
// which exempts it from forcing sort order (a NULL write never needs the
// referenced row written first).
func WithNullable(nullable bool) CollectOption {
	return func(cc *collectConfig) { cc.nullable = nullable }
}

// WithoutCollectRelated skips the related-model walk for this call — used
// by the parent-link walk, which only needs to register ancestors, not
// cascade further from them.
func WithoutCollectRelated() CollectOption {
	return func(cc *collectConfig) { cc.collectRelated = false }
}

// WithSourceAttr records the attribute name on source that points at the
// newly collected model, for diagnostics only.
func WithSourceAttr(name string) CollectOption {
	return func(cc *collectConfig) { cc.sourceAttr = name }
}

// WithReverseDependency flips which side of the (model, source) pair must
// be written first.
func WithReverseDependency() CollectOption {
	return func(cc *collectConfig) { cc.reverseDependency = true }
}

// WithKeepParents skips the parent-link walk for this call.
func WithKeepParents() CollectOption { return func(cc *collectConfig) { cc.keepParents = true } }

// WithoutFailOnRestricted defers the restricted-objects check to an
// enclosing Collect call instead of raising immediately.
func WithoutFailOnRestricted() CollectOption {
	return func(cc *collectConfig) { cc.failOnRestricted = false }
}

// WithValue sets the new value a Cascade policy propagates to the rows
// that directly reference this call's objs. The parent-link walk passes it
// on to the parent rows; cascadeHandler and the generic-relation walk
// recurse with a nil value.
func WithValue(v any) CollectOption { return func(cc *collectConfig) { cc.value = v } }

// materialize resolves a Collect input into a concrete instance slice
// without forcing materialization unnecessarily — callers that pass a
// QuerySetLike whose fast-path shortcut applies never reach this at all.
func materialize(objs any) ([]Instance, error) {
	switch v := objs.(type) {
	case InstanceList:
		return []Instance(v), nil
	case []Instance:
		return v, nil
	case QuerySetLike:
		return v.Instances(), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrNotCollectable, objs)
	}
}

// Collect is the recursive traversal at the heart of the planner: it adds
// objs to the collector's working set, walks their multi-table-inheritance
// parents, then walks every candidate relation pointing at their model,
// applying each relation's on-update policy and recursing into whatever
// that policy schedules.
func (c *Collector) Collect(ctx context.Context, objs any, opts ...CollectOption) error {
	cfg := collectConfig{collectRelated: true, failOnRestricted: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if c.CanFastUpdate(objs, nil) {
		qs, ok := objs.(QuerySetLike)
		if !ok {
			return fmt.Errorf("cascade: fast-path eligible input must be queryset-like, got %T", objs)
		}
		c.fastModObjs = append(c.fastModObjs, qs)
		return nil
	}

	instances, err := materialize(objs)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return nil
	}

	newObjs := c.add(instances, cfg.source, cfg.nullable, cfg.reverseDependency, true)
	if len(newObjs) == 0 {
		return nil
	}

	model := newObjs[0].Model()

	if !cfg.keepParents {
		concrete := model.ConcreteModel()
		for _, ptr := range concrete.Parents() {
			var parentObjs []Instance
			for _, obj := range newObjs {
				if p := ptr.Get(obj); p != nil {
					parentObjs = append(parentObjs, p)
				}
			}
			if len(parentObjs) == 0 {
				continue
			}
			if err := c.Collect(ctx, InstanceList(parentObjs),
				WithSource(model), WithSourceAttr(ptr.Field.Name),
				WithoutCollectRelated(), WithReverseDependency(), WithoutFailOnRestricted(),
				WithValue(cfg.value),
			); err != nil {
				return err
			}
		}
	}

	if !cfg.collectRelated {
		return nil
	}

	var keptParents map[*Model]bool
	if cfg.keepParents {
		keptParents = make(map[*Model]bool)
		for _, p := range model.ParentList() {
			keptParents[p] = true
		}
	}

	modelFastUpdates := map[*Model][]*Field{}
	var modelFastUpdatesOrder []*Model
	protectedByRelation := map[string][]Instance{}
	var protectedOrder []string

	for _, rel := range candidateRelations(model) {
		if cfg.keepParents && keptParents[rel.Model] {
			continue
		}
		field := rel.Field
		onUpdate := field.Remote.OnUpdate
		if onUpdate.Kind == PolicyDoNothing {
			continue
		}
		relatedModel := rel.Model

		if c.CanFastUpdate(relatedModel, field) {
			if _, ok := modelFastUpdates[relatedModel]; !ok {
				modelFastUpdatesOrder = append(modelFastUpdatesOrder, relatedModel)
			}
			modelFastUpdates[relatedModel] = append(modelFastUpdates[relatedModel], field)
			continue
		}

		batches := c.getObjBatches(newObjs, []*Field{field})
		for _, batch := range batches {
			subObjs := c.fetcher.RelatedObjects(relatedModel, []*Field{field}, batch, c.using)
			if !subObjs.SelectRelated() && !c.hasSignalListeners(relatedModel) {
				if cols := referencedFieldSet(relatedModel); len(cols) > 0 {
					subObjs = subObjs.Only(cols...)
				}
			}

			if onUpdate.LazySubObjs || len(subObjs.Instances()) > 0 {
				err := onUpdate.Handler(ctx, c, field, subObjs, c.using, cfg.value)
				if perr, ok := AsProtectedError(err); ok {
					key := fmt.Sprintf("%s.%s", field.Model.Label, field.Name)
					if _, seen := protectedByRelation[key]; !seen {
						protectedOrder = append(protectedOrder, key)
					}
					protectedByRelation[key] = append(protectedByRelation[key], perr.Objects...)
				} else if err != nil {
					return err
				}
			}
		}
	}

	if len(protectedByRelation) > 0 {
		var all []Instance
		for _, key := range protectedOrder {
			all = append(all, protectedByRelation[key]...)
		}
		return &ProtectedError{
			Message: fmt.Sprintf(
				"cannot update some instances of model %q because they are referenced through protected relations: %s",
				model.ModelName, strings.Join(protectedOrder, ", "),
			),
			Objects: all,
		}
	}

	// Relations whose related model itself qualifies as fast-updatable skip
	// per-instance collection entirely: rather than walking into `data`,
	// each batch is always registered in fastModObjs — the same touch a
	// plain fast-deletable batch would get — so that the failOnRestricted
	// check below still sees these rows and can rescue any Restrict
	// elsewhere in the graph that independently blocked on them. When
	// cfg.value is non-nil (this hop is the one whose identifying field
	// actually changed), the write itself is additionally folded into the
	// scheduled field-update machinery, which applies a single (field,
	// value) pair across a batch with one statement — the fastModObjs touch
	// and the AddFieldUpdate write share the same queryset, so whichever
	// runs first in Update just warms the other's result cache.
	for _, relatedModel := range modelFastUpdatesOrder {
		fields := modelFastUpdates[relatedModel]
		batches := c.getObjBatches(newObjs, fields)
		for _, batch := range batches {
			for _, field := range fields {
				subObjs := c.fetcher.RelatedObjects(relatedModel, []*Field{field}, batch, c.using)
				c.fastModObjs = append(c.fastModObjs, subObjs)
				if cfg.value != nil {
					c.AddFieldUpdate(field, cfg.value, subObjs)
				}
			}
		}
	}

	for _, pf := range model.PrivateFields() {
		if bf, ok := pf.(BulkRelatedObjectsField); ok {
			subObjs := bf.BulkRelatedObjects(newObjs, c.using)
			if subObjs != nil {
				if err := c.Collect(ctx, subObjs,
					WithSource(model), WithNullable(true), WithoutFailOnRestricted(),
					WithValue(nil),
				); err != nil {
					return err
				}
			}
		}
	}

	if cfg.failOnRestricted {
		for _, m := range c.dataOrder {
			c.clearRestrictedObjectsFromSet(c.data[m])
		}
		for _, qs := range c.fastModObjs {
			c.clearRestrictedObjectsFromQuerySet(qs)
		}

		if len(c.restrictedObjects) > 0 {
			restricted := map[string][]Instance{}
			var order []string
			for relatedModel, byField := range c.restrictedObjects {
				for field, set := range byField {
					if set.len() == 0 {
						continue
					}
					key := fmt.Sprintf("%s.%s", relatedModel.ModelName, field.Name)
					if _, seen := restricted[key]; !seen {
						order = append(order, key)
					}
					restricted[key] = append(restricted[key], set.instances()...)
				}
			}
			if len(restricted) > 0 {
				var all []Instance
				for _, key := range order {
					all = append(all, restricted[key]...)
				}
				return &RestrictedError{
					Message: fmt.Sprintf(
						"cannot update some instances of model %q because they are referenced through restricted relations: %s",
						model.ModelName, strings.Join(order, ", "),
					),
					Objects: all,
				}
			}
		}
	}

	return nil
}

// referencedFieldSet collects the target-field names every candidate
// relation into relatedModel addresses, so the related-model walk can
// narrow its fetch to just those columns when nothing else needs the full
// row (no select_related, no signal listener watching it).
func referencedFieldSet(relatedModel *Model) []string {
	seen := map[string]bool{}
	var out []string
	for _, rel := range candidateRelations(relatedModel) {
		if rel.Field.Remote == nil || rel.Field.Remote.TargetField == "" {
			continue
		}
		col := rel.Field.Remote.TargetField
		if !seen[col] {
			seen[col] = true
			out = append(out, col)
		}
	}
	return out
}
