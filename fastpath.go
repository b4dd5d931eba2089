package cascade

// CanFastUpdate reports whether obj — a *Model, a QuerySetLike, or an
// Instance — can be updated with a single batched statement instead of
// instance-by-instance handling. obj is accepted loosely (mirroring the
// duck-typed original) because the predicate is called in two different
// shapes: against the top-level input to Collect (an Instance or
// QuerySetLike), and against a related model class itself while deciding
// whether a whole relation can be deferred into the fast-update batch.
//
// fromField, when non-nil, is the relation that would cascade into obj —
// the predicate additionally requires that relation to be a Cascade policy,
// since any other policy needs per-row handling (SetNull/SetDefault/
// SetValue write a fixed value a batched UPDATE can't derive per-row
// without being told it, and Protect/Restrict/Custom need to inspect rows).
func (c *Collector) CanFastUpdate(obj any, fromField *Field) bool {
	if fromField != nil {
		if fromField.Remote == nil || fromField.Remote.OnUpdate.Kind != PolicyCascade {
			return false
		}
	}

	model := fastUpdateModelOf(obj)
	if model == nil {
		return false
	}

	if c.hasSignalListeners(model) {
		return false
	}

	concrete := model.ConcreteModel()
	for _, p := range concrete.Parents() {
		if p.Field != fromField {
			return false
		}
	}

	for _, rel := range candidateRelations(model) {
		if rel.Field.Remote == nil || rel.Field.Remote.OnUpdate.Kind != PolicyDoNothing {
			return false
		}
	}

	for _, pf := range model.PrivateFields() {
		if _, ok := pf.(BulkRelatedObjectsField); ok {
			return false
		}
	}

	return true
}

func fastUpdateModelOf(obj any) *Model {
	switch v := obj.(type) {
	case nil:
		return nil
	case *Model:
		return v
	case Instance:
		return v.Model()
	case QuerySetLike:
		return v.Model()
	default:
		return nil
	}
}
