package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		stmt string
		want string
	}{
		{"stacked drop", "SELECT * FROM t; DROP TABLE t", "forbidden keyword DROP"},
		{"lowercase delete", "delete from users", "forbidden keyword DELETE"},
		{"update", "UPDATE users SET name = 'x'", "forbidden keyword UPDATE"},
		{"insert", "INSERT INTO t VALUES (1)", "forbidden keyword INSERT"},
		{"column named like a keyword", "SELECT updated_at FROM users", "forbidden keyword UPDATE"},
		{"delete in subquery", "SELECT * FROM (DELETE FROM t RETURNING *) x", "forbidden keyword DELETE"},
		{"cte", "WITH x AS (SELECT 1) SELECT * FROM x", "only SELECT"},
		{"explain", "EXPLAIN SELECT 1", "only SELECT"},
		{"truncate", "TRUNCATE users", "only SELECT"},
		{"select prefix of a word", "SELECTED FROM t", "only SELECT"},
		{"two selects", "SELECT 1; SELECT 2", "multiple statements"},
		{"empty", "   ", "empty statement"},
		{"lone semicolon", " ; ", "empty statement"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Check(tt.stmt)
			require.ErrorIs(t, err, ErrQueryRejected)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheck_Accepts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stmt string
		want string
	}{
		{"SELECT id, name FROM users", "SELECT id, name FROM users"},
		{"  select count(*) from orders;  ", "select count(*) from orders"},
		{"\nSELECT\n  total\nFROM orders ;", "SELECT\n  total\nFROM orders"},
		{"SELECT(1)", "SELECT(1)"},
		{"SELECT", "SELECT"},
	}
	for _, tt := range tests {
		got, err := Check(tt.stmt)
		require.NoError(t, err, tt.stmt)
		assert.Equal(t, tt.want, got)
	}
}
