package schema_test

import (
	"context"
	"errors"
	"testing"

	dbmock "github.com/oltiss/mattermost-bot/internal/database/mock"
	"github.com/oltiss/mattermost-bot/internal/schema"
)

func TestFetch_GroupsColumnsByTable(t *testing.T) {
	t.Parallel()
	db := &dbmock.DB{QueryRows: dbmock.NewRows(
		[]string{"table_name", "column_name", "data_type"},
		[]any{"customers", "id", "integer"},
		[]any{"customers", "name", "text"},
		[]any{"orders", "id", "integer"},
		[]any{"orders", "total", "numeric"},
	)}

	snap, err := schema.New(db, "").Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.Namespace != schema.DefaultNamespace {
		t.Errorf("namespace = %q, want %q", snap.Namespace, schema.DefaultNamespace)
	}
	if len(snap.Tables) != 2 {
		t.Fatalf("got %d tables, want 2", len(snap.Tables))
	}
	orders, ok := snap.Table("orders")
	if !ok {
		t.Fatal("orders table missing")
	}
	want := []schema.Column{{Name: "id", Type: "integer"}, {Name: "total", Type: "numeric"}}
	if len(orders.Columns) != len(want) {
		t.Fatalf("got %d columns, want %d", len(orders.Columns), len(want))
	}
	for i := range want {
		if orders.Columns[i] != want[i] {
			t.Errorf("column %d = %+v, want %+v", i, orders.Columns[i], want[i])
		}
	}

	args := db.QueryArgs()
	if len(args) != 1 || args[0][0] != "public" {
		t.Errorf("query args = %v, want [[public]]", args)
	}
}

func TestFetch_CustomNamespace(t *testing.T) {
	t.Parallel()
	db := &dbmock.DB{}
	c := schema.New(db, "sales")

	snap, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if c.Namespace() != "sales" || db.QueryArgs()[0][0] != "sales" {
		t.Errorf("namespace not forwarded: %v", db.QueryArgs())
	}
	if snap.Tables == nil || len(snap.Tables) != 0 {
		t.Errorf("expected empty non-nil table list, got %#v", snap.Tables)
	}
}

func TestFetch_QueryError(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection refused")
	db := &dbmock.DB{QueryErr: cause}

	_, err := schema.New(db, "").Fetch(context.Background())
	if !errors.Is(err, schema.ErrSchemaFetch) {
		t.Errorf("expected ErrSchemaFetch, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected the cause to be wrapped, got %v", err)
	}
}

func TestFetch_IterationError(t *testing.T) {
	t.Parallel()
	rows := dbmock.NewRows([]string{"table_name", "column_name", "data_type"}, []any{"t", "c", "int"})
	rows.IterErr = errors.New("conn reset")
	db := &dbmock.DB{QueryRows: rows}

	if _, err := schema.New(db, "").Fetch(context.Background()); !errors.Is(err, schema.ErrSchemaFetch) {
		t.Errorf("expected ErrSchemaFetch, got %v", err)
	}
}

func TestSnapshot_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		snap schema.Snapshot
		want string
	}{
		{
			name: "empty",
			snap: schema.Snapshot{Namespace: "public"},
			want: `(no tables in schema "public")`,
		},
		{
			name: "two tables",
			snap: schema.Snapshot{Namespace: "public", Tables: []schema.Table{
				{Name: "orders", Columns: []schema.Column{{Name: "id", Type: "integer"}, {Name: "total", Type: "numeric"}}},
				{Name: "users", Columns: []schema.Column{{Name: "name", Type: "text"}}},
			}},
			want: "Table orders: id (integer), total (numeric)\nTable users: name (text)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.snap.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
