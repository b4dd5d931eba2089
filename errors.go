package cascade

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the planner's own failure cases, namespaced the way
// the teacher namespaces its sentinel set.
var (
	// ErrUnknownModel names the case of a model reference that cannot be
	// resolved against a Registry. No function in this package returns
	// it: ParseSchema leaves an unresolved `remote=` target as a
	// placeholder model (see lazyModel) and ignores a label without a ".".
	ErrUnknownModel = errors.New("cascade: unknown model")
	// ErrNotCollectable is returned when Collect is given something that
	// is neither a materialized instance list nor a QuerySetLike.
	ErrNotCollectable = errors.New("cascade: objs is neither an instance list nor queryset-like")
	// ErrAlreadyUpdated is returned by Update when called a second time on
	// the same Collector — a Collector is single-use past that point.
	ErrAlreadyUpdated = errors.New("cascade: collector already updated")
)

// ProtectedError reports that one or more dependent rows under a Protect
// policy block the requested change outright.
type ProtectedError struct {
	Message string
	Objects []Instance
}

func (e *ProtectedError) Error() string { return e.Message }

// AsProtectedError unwraps err looking for a *ProtectedError, the way the
// teacher's GetQueryError unwraps a *QueryError.
func AsProtectedError(err error) (*ProtectedError, bool) {
	var pe *ProtectedError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// RestrictedError reports that one or more dependent rows under a Restrict
// policy were never rescued by another path in the same traversal.
type RestrictedError struct {
	Message string
	Objects []Instance
}

func (e *RestrictedError) Error() string { return e.Message }

// AsRestrictedError unwraps err looking for a *RestrictedError.
func AsRestrictedError(err error) (*RestrictedError, bool) {
	var re *RestrictedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ConstraintError classifies a driver-level write failure the way the
// teacher's WrapQueryError/QueryError pair does, without depending on any
// particular SQL driver package.
type ConstraintError struct {
	Kind       ConstraintKind
	Table      string
	Constraint string
	Err        error
}

// ConstraintKind enumerates the driver-constraint categories ConstraintError
// can classify.
type ConstraintKind int

const (
	ConstraintUnknown ConstraintKind = iota
	ConstraintUnique
	ConstraintForeignKey
	ConstraintNotNull
	ConstraintCheck
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintUnique:
		return "unique"
	case ConstraintForeignKey:
		return "foreign_key"
	case ConstraintNotNull:
		return "not_null"
	case ConstraintCheck:
		return "check"
	default:
		return "unknown"
	}
}

func (e *ConstraintError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("cascade: %s constraint %q violated on %q: %v", e.Kind, e.Constraint, e.Table, e.Err)
	}
	return fmt.Sprintf("cascade: %s constraint violated on %q: %v", e.Kind, e.Table, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// WrapExecError classifies a raw driver error from an UpdateQuery
// implementation into a *ConstraintError when it recognizes the message
// shape, mirroring the teacher's WrapQueryError heuristics across
// PostgreSQL and MySQL wording. Errors it does not recognize pass through
// unchanged — this is a best-effort diagnostic aid, not a correctness
// requirement of the planner itself.
func WrapExecError(table string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	ce := &ConstraintError{Table: table, Err: err}
	switch {
	case strings.Contains(msg, "unique"), strings.Contains(msg, "duplicate"):
		ce.Kind = ConstraintUnique
	case strings.Contains(msg, "foreign key"):
		ce.Kind = ConstraintForeignKey
	case strings.Contains(msg, "not null") || strings.Contains(msg, "null value") || strings.Contains(msg, "cannot be null"):
		ce.Kind = ConstraintNotNull
	case strings.Contains(msg, "check constraint"):
		ce.Kind = ConstraintCheck
	default:
		return err
	}
	ce.Constraint = extractConstraintName(err.Error())
	return ce
}

// extractConstraintName pulls a quoted constraint name out of a driver
// error message, trying PostgreSQL's `constraint "name"` and MySQL's
// `CONSTRAINT `name`` wordings in turn.
func extractConstraintName(msg string) string {
	if name, ok := between(msg, "constraint \"", "\""); ok {
		return name
	}
	if name, ok := between(msg, "CONSTRAINT `", "`"); ok {
		return name
	}
	return ""
}

func between(s, start, end string) (string, bool) {
	idx := strings.Index(s, start)
	if idx == -1 {
		return "", false
	}
	rest := s[idx+len(start):]
	endIdx := strings.Index(rest, end)
	if endIdx == -1 {
		return "", false
	}
	return rest[:endIdx], true
}
