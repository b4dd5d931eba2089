package cascade

import (
	"context"
	"testing"
)

func TestUnion_DedupsByKey(t *testing.T) {
	reg := NewRegistry()
	model := &Model{Label: "app.Thing", ModelName: "Thing", Table: "things", PKColumn: "id"}
	reg.Register(model)

	db := newTestDB()
	r1 := newTestRow(model, int64(1), map[string]any{"X": int64(1)})
	r2 := newTestRow(model, int64(2), map[string]any{"X": int64(2)})
	db.add(r1)
	db.add(r2)

	field := &Field{Name: "X", Model: model}
	a := newQuerySet(db, model).Filter(field, []any{int64(1), int64(2)})
	b := newQuerySet(db, model).Filter(field, []any{int64(1)}) // overlaps with a on r1

	u := Union(a, b)
	instances := u.Instances()
	if len(instances) != 2 {
		t.Fatalf("Union should dedup overlapping rows by Key(), got %d instances", len(instances))
	}
}

func TestUnion_UpdateSumsAcrossParts(t *testing.T) {
	reg := NewRegistry()
	model := &Model{Label: "app.Thing", ModelName: "Thing", Table: "things", PKColumn: "id"}
	reg.Register(model)

	db := newTestDB()
	r1 := newTestRow(model, int64(1), map[string]any{"ID": int64(1), "X": int64(0)})
	r2 := newTestRow(model, int64(2), map[string]any{"ID": int64(2), "X": int64(0)})
	db.add(r1)
	db.add(r2)

	idField := &Field{Name: "ID", Model: model}
	field := &Field{Name: "X", Model: model}
	a := newQuerySet(db, model).Filter(idField, []any{int64(1)})
	b := newQuerySet(db, model).Filter(idField, []any{int64(2)})

	u := Union(a, b)
	n, err := u.Update(context.Background(), "default", map[*Field]any{field: int64(99)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n != 2 {
		t.Fatalf("Union.Update rows affected = %d, want 2", n)
	}
	if r1.get("X") != int64(99) || r2.get("X") != int64(99) {
		t.Errorf("expected both rows written, got r1=%v r2=%v", r1.get("X"), r2.get("X"))
	}
}

func TestUnion_ResultCacheComputedRequiresAllParts(t *testing.T) {
	reg := NewRegistry()
	model := &Model{Label: "app.Thing", ModelName: "Thing", Table: "things", PKColumn: "id"}
	reg.Register(model)
	db := newTestDB()

	a := newQuerySet(db, model)
	b := newQuerySet(db, model)
	u := Union(a, b)
	if u.ResultCacheComputed() {
		t.Fatalf("expected ResultCacheComputed false before either part is materialized")
	}
	a.Instances()
	if u.ResultCacheComputed() {
		t.Fatalf("expected ResultCacheComputed false while only one part is materialized")
	}
	b.Instances()
	if !u.ResultCacheComputed() {
		t.Fatalf("expected ResultCacheComputed true once every part is materialized")
	}
}
