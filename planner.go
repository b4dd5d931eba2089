package cascade

import "context"

// Update executes the collected plan: it canonicalizes and topologically
// sorts the collected models, takes the single-row fast-path escape when
// possible, and otherwise runs the whole plan inside one transaction —
// pre_save fan-out, fast updates, scheduled field updates, then reversed
// instance-level updates with post_save fan-out. It returns the total
// number of rows affected and a per-model breakdown keyed by Model.Label.
//
// Update may be called at most once per Collector; a second call returns
// ErrAlreadyUpdated without touching the database.
func (c *Collector) Update(ctx context.Context) (int64, map[string]int64, error) {
	if c.updated {
		return 0, nil, ErrAlreadyUpdated
	}
	c.updated = true

	if len(c.dataOrder) == 0 && len(c.fastModObjs) == 0 && len(c.fieldUpdatesOrder) == 0 {
		return 0, map[string]int64{}, nil
	}

	for _, m := range c.dataOrder {
		c.data[m].sortByPK()
	}
	c.sort()

	// Single-row fast-path escape: a lone, fast-updatable instance needs
	// neither a transaction nor the rest of the plan. This check is
	// hoisted to the top of Update, rather than living inside the
	// instance-update loop below, specifically so it can never observe a
	// stale loop variable the way a late-binding closure inside that loop
	// could.
	if len(c.dataOrder) == 1 {
		model := c.dataOrder[0]
		set := c.data[model]
		if set.len() == 1 {
			inst := set.instances()[0]
			if c.CanFastUpdate(inst, nil) {
				uq := c.compiler.UpdateQuery(model)
				n, err := uq.UpdateBatch(ctx, c.using, []Instance{inst})
				if err != nil {
					return 0, nil, err
				}
				inst.SetPK(nil)
				return n, map[string]int64{model.Label: n}, nil
			}
		}
	}

	tx, err := c.txMgr.Begin(ctx, c.using)
	if err != nil {
		return 0, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	counts := map[string]int64{}

	for _, m := range c.dataOrder {
		if m.AutoCreated() {
			continue
		}
		for _, inst := range c.data[m].instances() {
			if err := c.signals.Send(ctx, PreSave, m, inst, c.using, c.origin); err != nil {
				return 0, nil, err
			}
		}
	}

	// fastModObjs only ever holds the top-level Collect() shortcut (the
	// whole input already qualified for the fast path before any
	// traversal happened) or a related batch deferred mid-traversal that
	// needed to be surfaced for restrict-rescue purposes. Any real column
	// assignment for such a batch, if there was one, was separately
	// scheduled through AddFieldUpdate on the very same queryset and will
	// be counted by the field-update pass below — counting rows here too
	// would double-count the same write. When nothing was scheduled for a
	// given queryset, this nil update is the only write attempt those rows
	// ever get — deliberately, since the batch was deferred here purely to
	// stay visible to the restrict-rescue check traversal already ran.
	for _, qs := range c.fastModObjs {
		if _, err := qs.Update(ctx, c.using, nil); err != nil {
			return 0, nil, err
		}
	}

	for _, key := range c.fieldUpdatesOrder {
		cols := c.fieldUpdates[key]

		var uncomputedQuerysets []QuerySetLike
		var instances []Instance
		seen := map[any]bool{}

		addInstances := func(src []Instance) {
			for _, inst := range src {
				if !seen[inst.Key()] {
					seen[inst.Key()] = true
					instances = append(instances, inst)
				}
			}
		}

		for _, col := range cols {
			switch {
			case col.queryset != nil && !col.queryset.ResultCacheComputed():
				uncomputedQuerysets = append(uncomputedQuerysets, col.queryset)
			case col.queryset != nil:
				addInstances(col.queryset.Instances())
			default:
				addInstances(col.instances)
			}
		}

		if len(uncomputedQuerysets) > 0 {
			combined := uncomputedQuerysets[0]
			for _, qs := range uncomputedQuerysets[1:] {
				combined = Union(combined, qs)
			}
			n, err := combined.Update(ctx, c.using, map[*Field]any{key.field: key.value})
			if err != nil {
				return 0, nil, err
			}
			if n != 0 {
				counts[combined.Model().Label] += n
			}
		}

		if len(instances) > 0 {
			model := instances[0].Model()
			pks := make([]any, len(instances))
			for i, inst := range instances {
				pks[i] = inst.PK()
			}
			uq := c.compiler.UpdateQuery(model)
			n, err := uq.UpdateFields(ctx, c.using, pks, map[*Field]any{key.field: key.value})
			if err != nil {
				return 0, nil, err
			}
			if n != 0 {
				counts[model.Label] += n
			}
		}
	}

	for _, m := range c.dataOrder {
		c.data[m].reverse()
	}

	for _, m := range c.dataOrder {
		instances := c.data[m].instances()
		if len(instances) > 0 {
			uq := c.compiler.UpdateQuery(m)
			n, err := uq.UpdateBatch(ctx, c.using, instances)
			if err != nil {
				return 0, nil, err
			}
			if n != 0 {
				counts[m.Label] += n
			}
		}

		if !m.AutoCreated() {
			for _, inst := range instances {
				if err := c.signals.Send(ctx, PostSave, m, inst, c.using, c.origin); err != nil {
					return 0, nil, err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}
	committed = true

	var total int64
	for _, n := range counts {
		total += n
	}
	for _, m := range c.dataOrder {
		for _, inst := range c.data[m].instances() {
			inst.SetPK(nil)
		}
	}

	return total, counts, nil
}
