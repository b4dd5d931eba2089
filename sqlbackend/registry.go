package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/TobeTek/cascade"
)

// Registry is a cascade.ConnectionRegistry and cascade.TransactionManager
// over a set of named database/sql connections — one per `using` alias.
// It is adapted from the teacher's resolver.go DBResolver, which routed
// reads across a primary/replica set by a load-balancing strategy; here the
// same "named pool of connections" shape routes by logical alias instead,
// which is exactly what the planner's `using` string needs.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*sql.DB
	dialect map[string]Dialect

	// BatchSize bounds how many primary keys a single IN (...) clause may
	// carry; dialects cap bound-parameter counts differently (SQLite caps
	// at 999 by default, for instance), so this defaults per-dialect when
	// zero.
	BatchSize int
}

// NewRegistry returns an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*sql.DB), dialect: make(map[string]Dialect)}
}

// Add registers using as a name for db, speaking dialect d.
func (r *Registry) Add(using string, db *sql.DB, d Dialect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[using] = db
	r.dialect[using] = d
}

func (r *Registry) db(using string) (*sql.DB, Dialect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, ok := r.conns[using]
	if !ok {
		return nil, 0, fmt.Errorf("sqlbackend: no connection registered for using=%q", using)
	}
	return db, r.dialect[using], nil
}

// BulkBatchSize implements cascade.ConnectionRegistry. It ignores
// fieldNames and objs — every dialect this package supports has one global
// bound-parameter ceiling regardless of which columns are involved.
func (r *Registry) BulkBatchSize(using string, fieldNames []string, objs []cascade.Instance) int {
	if r.BatchSize > 0 {
		return r.BatchSize
	}
	_, d, err := r.db(using)
	if err != nil {
		return 0
	}
	switch d {
	case DialectSQLite:
		return 900
	default:
		return 0
	}
}

// Begin implements cascade.TransactionManager.
func (r *Registry) Begin(ctx context.Context, using string) (cascade.Tx, error) {
	db, _, err := r.db(using)
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: begin tx on %q: %w", using, err)
	}
	return sqlTx{tx}, nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t sqlTx) Commit() error   { return t.tx.Commit() }
func (t sqlTx) Rollback() error { return t.tx.Rollback() }
