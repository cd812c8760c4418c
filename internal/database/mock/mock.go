// Package mock provides in-memory stand-ins for the pgx types used by the
// schema catalog and the query guard.
//
// [Rows] serves a fixed result set. [Tx] hands out those rows and records
// rollbacks. [DB] satisfies both the schema Querier and the guard's
// transaction beginner. Methods that the code under test never calls are
// inherited from a nil embedded interface and panic if reached.
package mock

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Rows is a fixed, forward-only result set implementing [pgx.Rows].
type Rows struct {
	pgx.Rows

	// Columns names the result columns in order.
	Columns []string

	// Data holds one slice of values per row, aligned with Columns.
	Data [][]any

	// IterErr is reported by [Rows.Err] once iteration stops.
	IterErr error

	idx    int
	closed bool
}

// NewRows returns a result set with the given columns and rows.
func NewRows(columns []string, data ...[]any) *Rows {
	return &Rows{Columns: columns, Data: data}
}

// Next implements [pgx.Rows].
func (r *Rows) Next() bool {
	if r.closed || r.idx >= len(r.Data) {
		r.closed = true
		return false
	}
	r.idx++
	return true
}

// Close implements [pgx.Rows].
func (r *Rows) Close() { r.closed = true }

// Closed reports whether Close was called or iteration ran to the end.
func (r *Rows) Closed() bool { return r.closed }

// Err implements [pgx.Rows].
func (r *Rows) Err() error {
	if !r.closed {
		return nil
	}
	return r.IterErr
}

// CommandTag implements [pgx.Rows].
func (r *Rows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", r.idx))
}

// FieldDescriptions implements [pgx.Rows].
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = pgconn.FieldDescription{Name: c}
	}
	return out
}

// Values implements [pgx.Rows].
func (r *Rows) Values() ([]any, error) {
	if r.idx == 0 || r.idx > len(r.Data) {
		return nil, fmt.Errorf("mock rows: no current row")
	}
	row := r.Data[r.idx-1]
	out := make([]any, len(row))
	copy(out, row)
	return out, nil
}

// Scan implements [pgx.Rows] by assigning each value to the matching
// destination pointer. The value types must be assignable.
func (r *Rows) Scan(dest ...any) error {
	vals, err := r.Values()
	if err != nil {
		return err
	}
	if len(dest) != len(vals) {
		return fmt.Errorf("mock rows: scan %d destinations into %d columns", len(dest), len(vals))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("mock rows: destination %d is not a pointer", i)
		}
		if vals[i] == nil {
			dv.Elem().SetZero()
			continue
		}
		sv := reflect.ValueOf(vals[i])
		if !sv.Type().AssignableTo(dv.Elem().Type()) {
			return fmt.Errorf("mock rows: cannot scan %T into %s", vals[i], dv.Elem().Type())
		}
		dv.Elem().Set(sv)
	}
	return nil
}

// Tx is a transaction double implementing [pgx.Tx].
type Tx struct {
	pgx.Tx

	mu sync.Mutex

	// Rows is returned by Query when QueryErr is nil.
	Rows *Rows

	// QueryErr is returned by Query when non-nil.
	QueryErr error

	queries   []string
	rollbacks int
	committed bool
}

// Query implements [pgx.Tx].
func (t *Tx) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queries = append(t.queries, sql)
	if t.QueryErr != nil {
		return nil, t.QueryErr
	}
	if t.Rows == nil {
		t.Rows = NewRows(nil)
	}
	return t.Rows, nil
}

// Rollback implements [pgx.Tx].
func (t *Tx) Rollback(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollbacks++
	return nil
}

// Commit implements [pgx.Tx].
func (t *Tx) Commit(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.committed = true
	return nil
}

// Queries returns the statements passed to Query.
func (t *Tx) Queries() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.queries...)
}

// Rollbacks returns how many times Rollback was called.
func (t *Tx) Rollbacks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbacks
}

// Committed reports whether Commit was called.
func (t *Tx) Committed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

// DB stands in for a connection pool.
type DB struct {
	mu sync.Mutex

	// Tx is returned by BeginTx when BeginErr is nil.
	Tx *Tx

	// BeginErr is returned by BeginTx when non-nil.
	BeginErr error

	// QueryRows is returned by Query when QueryErr is nil.
	QueryRows *Rows

	// QueryErr is returned by Query when non-nil.
	QueryErr error

	// PingErr is returned by Ping.
	PingErr error

	txOptions []pgx.TxOptions
	queries   []string
	queryArgs [][]any
}

// BeginTx starts the configured transaction and records opts.
func (d *DB) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txOptions = append(d.txOptions, opts)
	if d.BeginErr != nil {
		return nil, d.BeginErr
	}
	if d.Tx == nil {
		d.Tx = &Tx{}
	}
	return d.Tx, nil
}

// Query runs a statement outside a transaction.
func (d *DB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries = append(d.queries, sql)
	d.queryArgs = append(d.queryArgs, args)
	if d.QueryErr != nil {
		return nil, d.QueryErr
	}
	if d.QueryRows == nil {
		d.QueryRows = NewRows(nil)
	}
	return d.QueryRows, nil
}

// Ping reports PingErr.
func (d *DB) Ping(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.PingErr
}

// TxOptions returns the options of every BeginTx call.
func (d *DB) TxOptions() []pgx.TxOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]pgx.TxOptions(nil), d.txOptions...)
}

// QueryArgs returns the arguments of every Query call.
func (d *DB) QueryArgs() [][]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]any(nil), d.queryArgs...)
}
