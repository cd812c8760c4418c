// Package schema reads relational metadata (tables, columns and their
// declared types) from a live PostgreSQL database.
//
// Nothing is cached: every [Catalog.Fetch] queries information_schema so the
// SQL synthesis prompt always sees the current schema.
package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DefaultNamespace is the schema inspected when none is configured.
const DefaultNamespace = "public"

// ErrSchemaFetch is wrapped by every error returned from [Catalog.Fetch].
var ErrSchemaFetch = errors.New("schema: metadata fetch failed")

// Querier is the subset of [pgxpool.Pool] the catalog needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Column is one column of a table.
type Column struct {
	Name string
	Type string
}

// Table is one table with its columns in ordinal order.
type Table struct {
	Name    string
	Columns []Column
}

// Snapshot is the schema of one namespace at the moment it was fetched.
type Snapshot struct {
	Namespace string
	Tables    []Table
}

// String renders the snapshot for a prompt, one table per line:
//
//	Table orders: id (integer), total (numeric)
func (s Snapshot) String() string {
	if len(s.Tables) == 0 {
		return fmt.Sprintf("(no tables in schema %q)", s.Namespace)
	}
	var b strings.Builder
	for i, t := range s.Tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Table ")
		b.WriteString(t.Name)
		b.WriteString(": ")
		for j, c := range t.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s (%s)", c.Name, c.Type)
		}
	}
	return b.String()
}

// Table returns the named table.
func (s Snapshot) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

const columnsQuery = `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`

// Catalog fetches schema snapshots for one namespace.
type Catalog struct {
	q         Querier
	namespace string
}

// New returns a Catalog over q. An empty namespace means [DefaultNamespace].
func New(q Querier, namespace string) *Catalog {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Catalog{q: q, namespace: namespace}
}

// Namespace returns the inspected schema name.
func (c *Catalog) Namespace() string { return c.namespace }

// Fetch lists every table of the namespace with its columns.
func (c *Catalog) Fetch(ctx context.Context) (Snapshot, error) {
	rows, err := c.q.Query(ctx, columnsQuery, c.namespace)
	if err != nil {
		return Snapshot{}, fmt.Errorf("schema: query %q: %w: %w", c.namespace, ErrSchemaFetch, err)
	}

	type colRow struct {
		table, column, dataType string
	}
	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (colRow, error) {
		var r colRow
		err := row.Scan(&r.table, &r.column, &r.dataType)
		return r, err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("schema: scan %q: %w: %w", c.namespace, ErrSchemaFetch, err)
	}

	snap := Snapshot{Namespace: c.namespace, Tables: []Table{}}
	for _, r := range cols {
		n := len(snap.Tables)
		if n == 0 || snap.Tables[n-1].Name != r.table {
			snap.Tables = append(snap.Tables, Table{Name: r.table})
			n++
		}
		snap.Tables[n-1].Columns = append(snap.Tables[n-1].Columns, Column{Name: r.column, Type: r.dataType})
	}
	return snap, nil
}
