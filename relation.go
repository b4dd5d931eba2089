package cascade

// Relation is a candidate reverse relation: some other model's forward
// field that targets this one.
type Relation struct {
	Model       *Model // the model owning Field (the referencing side)
	Field       *Field
	AutoCreated bool
	Concrete    bool
	OneToOne    bool
	OneToMany   bool
	Hidden      bool
}

// candidateRelations filters model's reverse relations down to the ones the
// planner must consider: auto-created, non-concrete (i.e. not a hand-
// declared many-to-many through table the caller owns), and either
// one-to-one or one-to-many. Many-to-many relations are never candidates —
// there is no single foreign key on either side for an on-update policy to
// attach to. Hidden relations (back-references with no accessor name) are
// included, matching the spec's relation iterator exactly.
func candidateRelations(model *Model) []*Relation {
	var out []*Relation
	for _, rel := range model.Relations(true) {
		if !rel.AutoCreated || rel.Concrete {
			continue
		}
		if !rel.OneToOne && !rel.OneToMany {
			continue
		}
		out = append(out, rel)
	}
	return out
}
