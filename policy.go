package cascade

import (
	"context"
	"fmt"
)

// PolicyKind enumerates the closed set of built-in on-update policies. The
// zero value is PolicyCascade so an accidentally-unset OnUpdatePolicy fails
// loud (cascading into everything) rather than silently doing nothing.
type PolicyKind int

const (
	PolicyCascade PolicyKind = iota
	PolicyDoNothing
	PolicyProtect
	PolicyRestrict
	PolicySetNull
	PolicySetDefault
	PolicySetValue
	PolicyCustom
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyCascade:
		return "cascade"
	case PolicyDoNothing:
		return "do_nothing"
	case PolicyProtect:
		return "protect"
	case PolicyRestrict:
		return "restrict"
	case PolicySetNull:
		return "set_null"
	case PolicySetDefault:
		return "set_default"
	case PolicySetValue:
		return "set_value"
	case PolicyCustom:
		return "custom"
	default:
		return fmt.Sprintf("policy(%d)", int(k))
	}
}

// PolicyHandler is invoked once per related-model batch during traversal.
// value is the new value being written to the field whose change triggered
// this traversal, threaded down from the call that registered it via
// WithValue — it has no Django equivalent since Go has no hook to intercept
// an in-place attribute mutation on an already-collected Instance.
type PolicyHandler func(ctx context.Context, c *Collector, field *Field, subObjs QuerySetLike, using string, value any) error

// OnUpdatePolicy is the tagged union describing what happens to dependent
// rows when the field they reference changes value. Built-in variants are
// constructed with the functions below; Custom carries caller-supplied
// behavior.
type OnUpdatePolicy struct {
	Kind        PolicyKind
	Value       any // only meaningful for PolicySetValue
	Handler     PolicyHandler
	LazySubObjs bool
}

// Cascade propagates the new field value onto every directly dependent row
// and recurses into them; that recursion carries no value, so rows one hop
// further down are visited but not rewritten (see cascadeHandler).
func Cascade() OnUpdatePolicy {
	return OnUpdatePolicy{Kind: PolicyCascade, Handler: cascadeHandler}
}

// DoNothing leaves dependent rows untouched. It is also the implicit policy
// the fast-path predicate requires of every OTHER relation on a model
// before that model can be fast-updated.
func DoNothing() OnUpdatePolicy {
	return OnUpdatePolicy{Kind: PolicyDoNothing, Handler: doNothingHandler}
}

// Protect refuses the change outright whenever any dependent row exists.
func Protect() OnUpdatePolicy {
	return OnUpdatePolicy{Kind: PolicyProtect, Handler: protectHandler}
}

// Restrict refuses the change unless every dependent row is independently
// rescued by some other path in the same traversal (e.g. a Cascade from a
// different relation reaches the same rows).
func Restrict() OnUpdatePolicy {
	return OnUpdatePolicy{Kind: PolicyRestrict, Handler: restrictHandler}
}

// SetNull writes NULL into the dependent field instead of cascading the
// value. It always invokes its handler, even over an empty candidate set,
// so a single statement nulls the whole relation in one shot.
func SetNull() OnUpdatePolicy {
	return OnUpdatePolicy{Kind: PolicySetNull, Handler: setNullHandler, LazySubObjs: true}
}

// SetDefault writes the field's declared default value. Like SetNull, it
// always fires.
func SetDefault() OnUpdatePolicy {
	return OnUpdatePolicy{Kind: PolicySetDefault, Handler: setDefaultHandler, LazySubObjs: true}
}

// SetValue writes a fixed, caller-chosen value regardless of what changed
// upstream.
func SetValue(v any) OnUpdatePolicy {
	return OnUpdatePolicy{Kind: PolicySetValue, Value: v, Handler: setValueHandler(v), LazySubObjs: true}
}

// Custom wraps caller-supplied traversal behavior — the escape hatch the
// closed sum type above needs for anything the seven built-ins cannot
// express.
func Custom(handler PolicyHandler, lazySubObjs bool) OnUpdatePolicy {
	return OnUpdatePolicy{Kind: PolicyCustom, Handler: handler, LazySubObjs: lazySubObjs}
}

// cascadeHandler writes the propagated value into subObjs' field, then
// visits subObjs for whatever relations point at THEM in turn, always
// resetting value to nil on that recursive call. So value is only ever
// non-nil at the one level whose target field actually changed; one hop
// further down, subObjs' own primary key hasn't moved, so there is nothing
// for THEIR dependents to write, and the traversal continues purely to
// surface protect/restrict relations further down the graph. A Cascade whose
// genuinely intended value is itself nil (e.g. propagating NULL into a
// nullable unique key) cannot be distinguished from "nothing to propagate"
// here — a limitation of not having Go-side access to per-instance field
// reads, accepted rather than threading a sentinel wrapper type through
// every policy handler for one rare case.
func cascadeHandler(ctx context.Context, c *Collector, field *Field, subObjs QuerySetLike, using string, value any) error {
	if value != nil {
		c.AddFieldUpdate(field, value, subObjs)
	}
	// source is the model field points AT (the referenced side), not the
	// model subObjs belongs to — addDependency records that the referencing
	// rows (subObjs' model) must be written after the referenced model, so
	// passing field.Model here instead would record a model as depending on
	// itself and make sort() see a cycle on every single cascade.
	var source *Model
	if field.Remote != nil {
		source = field.Remote.TargetModel
	}
	return c.Collect(ctx, subObjs,
		WithSource(source),
		WithSourceAttr(field.Name),
		WithNullable(field.Null),
		WithoutFailOnRestricted(),
		WithValue(nil),
	)
}

func doNothingHandler(context.Context, *Collector, *Field, QuerySetLike, string, any) error {
	return nil
}

func protectHandler(_ context.Context, _ *Collector, field *Field, subObjs QuerySetLike, _ string, _ any) error {
	instances := subObjs.Instances()
	if len(instances) == 0 {
		return nil
	}
	targetName := "unknown"
	if field.Remote != nil && field.Remote.TargetModel != nil {
		targetName = field.Remote.TargetModel.ModelName
	}
	return &ProtectedError{
		Message: fmt.Sprintf(
			"cannot update %q because %q instances reference it through the protected field %q",
			targetName, field.Model.ModelName, field.Name,
		),
		Objects: instances,
	}
}

func restrictHandler(_ context.Context, c *Collector, field *Field, subObjs QuerySetLike, _ string, _ any) error {
	instances := subObjs.Instances()
	c.AddRestrictedObjects(field, instances)
	if field.Remote != nil {
		c.addDependency(field.Remote.TargetModel, field.Model, false)
	}
	return nil
}

func setNullHandler(_ context.Context, c *Collector, field *Field, subObjs QuerySetLike, _ string, _ any) error {
	c.AddFieldUpdate(field, nil, subObjs)
	return nil
}

func setDefaultHandler(_ context.Context, c *Collector, field *Field, subObjs QuerySetLike, _ string, _ any) error {
	var def any
	if field.Remote != nil {
		def = field.Remote.Default
	}
	c.AddFieldUpdate(field, def, subObjs)
	return nil
}

func setValueHandler(v any) PolicyHandler {
	return func(_ context.Context, c *Collector, field *Field, subObjs QuerySetLike, _ string, _ any) error {
		c.AddFieldUpdate(field, v, subObjs)
		return nil
	}
}
