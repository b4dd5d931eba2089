package cascade

import (
	"fmt"
	"sort"
)

// Instance is a single row handle. The planner never dereferences a
// caller's struct directly — it only ever asks an Instance for its model,
// its primary key, and whether it is a brand-new (unsaved) record.
type Instance interface {
	Model() *Model
	PK() any
	SetPK(value any)
	// IsAdding reports whether the row has not yet been persisted — the
	// planner never collects or updates such rows (mirrors Django's
	// `_state.adding`).
	IsAdding() bool
	// Key returns a stable, comparable identity for set membership. Two
	// Instances that represent the same row (same model, same PK) must
	// return equal keys even if they are different Go values.
	Key() any
}

// instanceKey is the default Key() shape for Instances built by this
// package's own Row helper: identity by model label plus primary key.
type instanceKey struct {
	label string
	pk    any
}

// Row is a minimal Instance a caller can use directly instead of
// implementing the interface on its own domain types. It is deliberately
// bare — callers with richer in-memory entities (e.g. generated model
// structs) are expected to satisfy Instance themselves.
type Row struct {
	model  *Model
	pk     any
	adding bool
}

// NewRow builds a Row for an existing (already persisted) record.
func NewRow(model *Model, pk any) *Row {
	return &Row{model: model, pk: pk}
}

// NewAddingRow builds a Row representing an unsaved record; the planner
// ignores it wherever ignoreNewRecords applies, matching IsAdding.
func NewAddingRow(model *Model, pk any) *Row {
	return &Row{model: model, pk: pk, adding: true}
}

func (r *Row) Model() *Model      { return r.model }
func (r *Row) PK() any            { return r.pk }
func (r *Row) SetPK(value any)    { r.pk = value }
func (r *Row) IsAdding() bool     { return r.adding }
func (r *Row) Key() any           { return instanceKey{label: r.model.Label, pk: r.pk} }

// instanceSet is an insertion-ordered set of Instances, deduplicated by
// Key(). The planner relies on its iteration order being exactly the order
// rows were first added — none of its collections are allowed to leak Go's
// randomized map iteration order into SQL statement construction.
type instanceSet struct {
	order []Instance
	index map[any]int
}

func newInstanceSet() *instanceSet {
	return &instanceSet{index: make(map[any]int)}
}

// add inserts obj if not already present and reports whether it was new.
func (s *instanceSet) add(obj Instance) bool {
	if _, ok := s.index[obj.Key()]; ok {
		return false
	}
	s.index[obj.Key()] = len(s.order)
	s.order = append(s.order, obj)
	return true
}

func (s *instanceSet) contains(obj Instance) bool {
	_, ok := s.index[obj.Key()]
	return ok
}

func (s *instanceSet) len() int { return len(s.order) }

func (s *instanceSet) instances() []Instance { return s.order }

// remove drops obj from the set, if present, without disturbing the
// relative order of the remaining entries.
func (s *instanceSet) remove(obj Instance) {
	idx, ok := s.index[obj.Key()]
	if !ok {
		return
	}
	delete(s.index, obj.Key())
	s.order = append(s.order[:idx], s.order[idx+1:]...)
	for key, i := range s.index {
		if i > idx {
			s.index[key] = i - 1
		}
	}
}

// reverse flips the set's iteration order in place, used by the planner's
// final instance-update pass (dependents must be written before the rows
// they depend on, which is the reverse of collection order).
func (s *instanceSet) reverse() {
	for i, j := 0, len(s.order)-1; i < j; i, j = i+1, j-1 {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	}
	for i, obj := range s.order {
		s.index[obj.Key()] = i
	}
}

// sortByPK reorders the set by primary key: int64, int and string keys of
// the same type compare natively, every other pair compares by its
// fmt.Sprint form, and keys whose order is equal keep their existing
// relative order. This backs Update's canonicalization step, which exists only to
// make statement batching deterministic across runs, not for correctness.
func (s *instanceSet) sortByPK() {
	sort.SliceStable(s.order, func(i, j int) bool {
		return pkLess(s.order[i].PK(), s.order[j].PK())
	})
	for i, obj := range s.order {
		s.index[obj.Key()] = i
	}
}

// pkLess orders two primary keys for canonicalization purposes only. Two
// int64s, two ints or two strings compare natively; any other pair
// (including mixed types) compares by fmt.Sprint, and ties preserve the
// stable sort's existing order.
func pkLess(a, b any) bool {
	switch av := a.(type) {
	case int64:
		if bv, ok := b.(int64); ok {
			return av < bv
		}
	case int:
		if bv, ok := b.(int); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
