package cascade

import (
	"errors"
	"testing"
)

func TestWrapExecError_PostgresUniqueViolation(t *testing.T) {
	raw := errors.New(`ERROR: duplicate key value violates unique constraint "books_isbn_key"`)
	err := WrapExecError("books", raw)
	ce, ok := err.(*ConstraintError)
	if !ok {
		t.Fatalf("expected *ConstraintError, got %T", err)
	}
	if ce.Kind != ConstraintUnique {
		t.Errorf("Kind = %v, want ConstraintUnique", ce.Kind)
	}
	if ce.Constraint != "books_isbn_key" {
		t.Errorf("Constraint = %q, want books_isbn_key", ce.Constraint)
	}
	if !errors.Is(ce, ce) || errors.Unwrap(ce) != raw {
		t.Errorf("expected Unwrap() to return the original error")
	}
}

func TestWrapExecError_PostgresForeignKeyViolation(t *testing.T) {
	raw := errors.New(`ERROR: insert or update on table "books" violates foreign key constraint "books_author_id_fkey"`)
	err := WrapExecError("books", raw)
	ce, ok := err.(*ConstraintError)
	if !ok {
		t.Fatalf("expected *ConstraintError, got %T", err)
	}
	if ce.Kind != ConstraintForeignKey {
		t.Errorf("Kind = %v, want ConstraintForeignKey", ce.Kind)
	}
}

func TestWrapExecError_MySQLNotNullViolation(t *testing.T) {
	raw := errors.New("Column 'author_id' cannot be null")
	err := WrapExecError("books", raw)
	ce, ok := err.(*ConstraintError)
	if !ok {
		t.Fatalf("expected *ConstraintError, got %T", err)
	}
	if ce.Kind != ConstraintNotNull {
		t.Errorf("Kind = %v, want ConstraintNotNull", ce.Kind)
	}
}

func TestWrapExecError_UnrecognizedPassesThrough(t *testing.T) {
	raw := errors.New("connection reset by peer")
	err := WrapExecError("books", raw)
	if err != raw {
		t.Fatalf("expected the unrecognized error to pass through unchanged, got %v", err)
	}
}

func TestWrapExecError_Nil(t *testing.T) {
	if WrapExecError("books", nil) != nil {
		t.Fatalf("expected nil in, nil out")
	}
}

func TestAsProtectedError_IgnoresStringWrappedError(t *testing.T) {
	pe := &ProtectedError{Message: "blocked"}
	wrapped := errors.New("context: " + pe.Error())
	if _, ok := AsProtectedError(wrapped); ok {
		t.Fatalf("a plain string-wrapped error must not be mistaken for a *ProtectedError")
	}
	if got, ok := AsProtectedError(pe); !ok || got != pe {
		t.Fatalf("AsProtectedError should find the error directly")
	}
}

func TestAsRestrictedError_UnwrapsDirectly(t *testing.T) {
	re := &RestrictedError{Message: "blocked"}
	if got, ok := AsRestrictedError(re); !ok || got != re {
		t.Fatalf("AsRestrictedError should find the error directly")
	}
	if _, ok := AsRestrictedError(errors.New("unrelated")); ok {
		t.Fatalf("an unrelated error must not match")
	}
}
