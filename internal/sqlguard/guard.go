// Package sqlguard validates and runs model-generated SQL under a read-only
// contract.
//
// Three layers apply to every statement: a lexical check ([Check]), a
// read-only transaction that the database itself enforces, and an
// unconditional rollback. Results are serialised as a JSON array with one
// object per row, keys in result-column order.
package sqlguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oltiss/mattermost-bot/pkg/types"
)

var (
	// ErrQueryRejected marks a statement refused by the lexical check or by
	// the database's read-only transaction mode.
	ErrQueryRejected = errors.New("sqlguard: query rejected")

	// ErrQueryExecution marks a database failure while running a permitted
	// statement.
	ErrQueryExecution = errors.New("sqlguard: query execution failed")
)

// pgReadOnlyViolation is the SQLSTATE for read_only_sql_transaction.
const pgReadOnlyViolation = "25006"

const (
	defaultMaxRows      = 200
	defaultQueryTimeout = 15 * time.Second
)

// TxBeginner is the subset of [pgxpool.Pool] the guard needs.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Result is the outcome of one permitted statement.
type Result struct {
	// Columns names the result columns in order.
	Columns []string

	// Rows holds one object value per returned row.
	Rows []types.Value

	// Truncated is set when more rows were available than the limit.
	Truncated bool
}

// String renders the rows as a JSON array. A truncated result gets a
// trailing line stating the limit.
func (r *Result) String() string {
	s := types.Array(r.Rows...).String()
	if r.Truncated {
		s += fmt.Sprintf("\n(truncated to %d rows)", len(r.Rows))
	}
	return s
}

// Option is a functional option for [New].
type Option func(*Guard)

// WithMaxRows caps the number of rows kept per statement. Values below one
// are ignored.
func WithMaxRows(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxRows = n
		}
	}
}

// WithQueryTimeout bounds each statement. Zero disables the bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(g *Guard) { g.timeout = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// Guard runs single SELECT statements in read-only transactions.
// It is safe for concurrent use when the underlying pool is.
type Guard struct {
	db      TxBeginner
	maxRows int
	timeout time.Duration
	logger  *slog.Logger
}

// New returns a Guard over db.
func New(db TxBeginner, opts ...Option) *Guard {
	g := &Guard{
		db:      db,
		maxRows: defaultMaxRows,
		timeout: defaultQueryTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run checks stmt and, when it passes, executes it inside a read-only
// transaction that is always rolled back. Errors wrap [ErrQueryRejected] or
// [ErrQueryExecution].
func (g *Guard) Run(ctx context.Context, stmt string) (*Result, error) {
	sql, err := Check(stmt)
	if err != nil {
		return nil, err
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	tx, err := g.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", ErrQueryExecution, err)
	}
	defer func() {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			g.logger.Warn("sqlguard: rollback failed", slog.Any("err", rbErr))
		}
	}()

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	res := &Result{Rows: []types.Value{}}
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}
	for rows.Next() {
		if len(res.Rows) == g.maxRows {
			res.Truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, classify(err)
		}
		res.Rows = append(res.Rows, rowValue(res.Columns, vals))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// ErrorPrefix starts every failure text returned by [Guard.Execute].
const ErrorPrefix = "Error: "

// Execute is Run for callers that want text only: the serialised rows on
// success, otherwise a line starting with [ErrorPrefix]. It never panics.
func (g *Guard) Execute(ctx context.Context, stmt string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("sqlguard: panic while running statement", slog.Any("panic", r))
			out = fmt.Sprintf("%s%v", ErrorPrefix, r)
		}
	}()

	res, err := g.Run(ctx, stmt)
	if err != nil {
		g.logger.Info("sqlguard: statement failed", slog.String("sql", stmt), slog.Any("err", err))
		return ErrorPrefix + err.Error()
	}
	g.logger.Debug("sqlguard: statement ok", slog.Int("rows", len(res.Rows)), slog.Bool("truncated", res.Truncated))
	return res.String()
}

// classify maps a database error to the guard's taxonomy. A read-only
// violation raised by the server counts as a rejection.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgReadOnlyViolation {
		return fmt.Errorf("%w: %s", ErrQueryRejected, pgErr.Message)
	}
	return fmt.Errorf("%w: %w", ErrQueryExecution, err)
}

// rowValue builds an ordered object from one row. Duplicate column names
// (SELECT a.id, b.id) get a numeric suffix so no value is lost.
func rowValue(columns []string, vals []any) types.Value {
	fields := make([]types.Field, 0, len(vals))
	seen := make(map[string]int, len(vals))
	for i, v := range vals {
		name := fmt.Sprintf("column%d", i+1)
		if i < len(columns) && strings.TrimSpace(columns[i]) != "" {
			name = columns[i]
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}
		fields = append(fields, types.Field{Key: name, Value: toValue(v)})
	}
	return types.Object(fields...)
}
