package cascade

import "testing"

func TestCollector_AddIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	model := &Model{Label: "app.Thing", ModelName: "Thing", Table: "things", PKColumn: "id"}
	reg.Register(model)

	db := newTestDB()
	c := newTestCollector(db, "default")

	r1 := newTestRow(model, int64(1), nil)
	first := c.add([]Instance{r1}, nil, false, false, true)
	if len(first) != 1 {
		t.Fatalf("first add: got %d new objs, want 1", len(first))
	}
	second := c.add([]Instance{r1}, nil, false, false, true)
	if len(second) != 0 {
		t.Fatalf("second add of the same row: got %d new objs, want 0", len(second))
	}
	if c.data[model].len() != 1 {
		t.Fatalf("data[model] has %d rows, want 1", c.data[model].len())
	}
}

func TestCollector_AddIgnoresNewRecords(t *testing.T) {
	reg := NewRegistry()
	model := &Model{Label: "app.Thing", ModelName: "Thing", Table: "things", PKColumn: "id"}
	reg.Register(model)

	db := newTestDB()
	c := newTestCollector(db, "default")

	adding := newTestRow(model, nil, nil)
	adding.adding = true
	newObjs := c.add([]Instance{adding}, nil, false, false, true)
	if len(newObjs) != 0 {
		t.Fatalf("expected an unsaved row to be skipped, got %d new objs", len(newObjs))
	}
}

func TestCollector_DependencyOrdersModels(t *testing.T) {
	reg := NewRegistry()
	parent := &Model{Label: "app.Parent", ModelName: "Parent", Table: "parents", PKColumn: "id"}
	child := &Model{Label: "app.Child", ModelName: "Child", Table: "children", PKColumn: "id"}
	reg.Register(parent)
	reg.Register(child)

	db := newTestDB()
	c := newTestCollector(db, "default")

	c.add([]Instance{newTestRow(parent, int64(1), nil)}, nil, false, false, true)
	c.add([]Instance{newTestRow(child, int64(2), nil)}, parent, false, false, true)

	c.sort()
	pos := map[*Model]int{}
	for i, m := range c.dataOrder {
		pos[m] = i
	}
	if pos[child] >= pos[parent] {
		t.Errorf("expected child before parent in dataOrder, got order %v", c.dataOrder)
	}
}

func TestCollector_SortGivesUpOnCycle(t *testing.T) {
	reg := NewRegistry()
	a := &Model{Label: "app.A", ModelName: "A", Table: "as", PKColumn: "id"}
	b := &Model{Label: "app.B", ModelName: "B", Table: "bs", PKColumn: "id"}
	reg.Register(a)
	reg.Register(b)

	db := newTestDB()
	c := newTestCollector(db, "default")

	c.add([]Instance{newTestRow(a, int64(1), nil)}, nil, false, false, true)
	c.add([]Instance{newTestRow(b, int64(2), nil)}, a, false, false, true) // dependencies[a] += b
	c.addDependency(b, a, false)                                          // dependencies[b] += a -> cycle

	before := append([]*Model(nil), c.dataOrder...)
	c.sort()
	if len(c.dataOrder) != len(before) {
		t.Fatalf("sort dropped models on a cycle: before=%v after=%v", before, c.dataOrder)
	}
}

func TestCollector_NullableSkipsDependency(t *testing.T) {
	reg := NewRegistry()
	parent := &Model{Label: "app.Parent", ModelName: "Parent", Table: "parents", PKColumn: "id"}
	child := &Model{Label: "app.Child", ModelName: "Child", Table: "children", PKColumn: "id"}
	reg.Register(parent)
	reg.Register(child)

	db := newTestDB()
	c := newTestCollector(db, "default")
	c.add([]Instance{newTestRow(child, int64(2), nil)}, parent, true, false, true)

	if _, ok := c.dependencies[parent.ConcreteModel()]; ok {
		t.Errorf("expected no dependency entry for a nullable relationship, got %v", c.dependencies)
	}
}

func TestCollector_RestrictedObjectsRescuedBySet(t *testing.T) {
	reg := NewRegistry()
	model := &Model{Label: "app.Thing", ModelName: "Thing", Table: "things", PKColumn: "id"}
	reg.Register(model)
	field := &Field{Name: "OwnerID", Model: model}

	db := newTestDB()
	c := newTestCollector(db, "default")

	r1 := newTestRow(model, int64(1), nil)
	c.AddRestrictedObjects(field, []Instance{r1})

	rescued := newInstanceSet()
	rescued.add(r1)
	c.clearRestrictedObjectsFromSet(rescued)

	if c.restrictedObjects[model][field].len() != 0 {
		t.Errorf("expected restricted set to be empty after rescue, got %d", c.restrictedObjects[model][field].len())
	}
}
