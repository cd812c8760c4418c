// Package app wires the bot's subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the language model
// gateway, selects and constructs the answer engine and its collaborators,
// and Shutdown tears everything down in order. A [Dispatcher] runs answer
// jobs in the background for the webhook front end.
//
// For testing, inject test doubles via functional options (WithLLM,
// WithDialer, WithDatabase, ...). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oltiss/mattermost-bot/internal/config"
	"github.com/oltiss/mattermost-bot/internal/database"
	"github.com/oltiss/mattermost-bot/internal/engine"
	"github.com/oltiss/mattermost-bot/internal/engine/dbquery"
	"github.com/oltiss/mattermost-bot/internal/engine/toolloop"
	"github.com/oltiss/mattermost-bot/internal/health"
	"github.com/oltiss/mattermost-bot/internal/mcp"
	"github.com/oltiss/mattermost-bot/internal/mcp/mcphost"
	"github.com/oltiss/mattermost-bot/internal/observe"
	"github.com/oltiss/mattermost-bot/internal/resilience"
	"github.com/oltiss/mattermost-bot/internal/schema"
	"github.com/oltiss/mattermost-bot/internal/sqlguard"
	"github.com/oltiss/mattermost-bot/pkg/provider/llm"
)

// DB is the slice of a connection pool the database engine needs.
// *pgxpool.Pool satisfies it.
type DB interface {
	schema.Querier
	sqlguard.TxBeginner
	health.Pinger
}

var _ DB = (*pgxpool.Pool)(nil)

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	reg     *config.Registry
	log     *slog.Logger
	metrics *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	llm    llm.Provider
	dialer mcp.Dialer
	db     DB
	engine engine.Engine
	checks []health.Checker

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLLM injects a model gateway instead of building one from the registry.
func WithLLM(p llm.Provider) Option {
	return func(a *App) { a.llm = p }
}

// WithDialer injects a tool provider dialer instead of creating an MCP host.
func WithDialer(d mcp.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithDatabase injects a database instead of opening a pool from the DSN.
// The caller keeps ownership of db.
func WithDatabase(db DB) Option {
	return func(a *App) { a.db = db }
}

// WithEngineKind overrides the configured engine.
func WithEngineKind(kind config.Engine) Option {
	return func(a *App) {
		cfg := *a.cfg
		cfg.Engine = kind
		a.cfg = &cfg
	}
}

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. reg resolves provider names to gateway
// factories and may be nil when the gateway is injected with [WithLLM].
//
// New performs all initialisation synchronously. For the database engine
// this includes opening and pinging the pool; the tools engine only validates
// the MCP server configuration, since a session is dialled per request.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, reg: reg}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Language model gateway ───────────────────────────────────────
	if err := a.initLLM(); err != nil {
		return nil, fmt.Errorf("app: init llm: %w", err)
	}

	// ── 2. Engine ───────────────────────────────────────────────────────
	var err error
	switch a.cfg.Engine {
	case config.EngineTools:
		err = a.initTools()
	case config.EngineDatabase:
		err = a.initDatabase(ctx)
	default:
		err = fmt.Errorf("unknown engine %q", a.cfg.Engine)
	}
	if err != nil {
		_ = a.Shutdown(ctx)
		return nil, fmt.Errorf("app: init %s engine: %w", a.cfg.Engine, err)
	}

	a.log.Info("app ready",
		slog.String("engine", string(a.cfg.Engine)),
		slog.String("llm", a.cfg.Providers.LLM.Name),
		slog.Int("llm_fallbacks", len(a.cfg.Providers.LLMFallbacks)),
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initLLM() error {
	if a.llm != nil {
		return nil
	}
	if a.reg == nil {
		return errors.New("no provider registry")
	}
	p, err := BuildLLM(a.reg, a.cfg.Providers, a.log)
	if err != nil {
		return err
	}
	a.llm = p
	if fb, ok := p.(*resilience.LLMFallback); ok {
		a.checks = append(a.checks, health.Checker{Name: "llm", Check: fb.Ready})
	}
	return nil
}

// BuildLLM creates the primary gateway and, when fallbacks are configured,
// wraps it in a [resilience.LLMFallback] with one circuit breaker per entry.
func BuildLLM(reg *config.Registry, pc config.ProvidersConfig, log *slog.Logger) (llm.Provider, error) {
	primary, err := reg.CreateLLM(pc.LLM)
	if err != nil {
		return nil, err
	}
	if len(pc.LLMFallbacks) == 0 {
		return primary, nil
	}

	fb := resilience.NewLLMFallback(primary, pc.LLM.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Logger: log},
	})
	for i, entry := range pc.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("fallback %d: %w", i, err)
		}
		fb.AddFallback(entry.Name, p)
	}
	return fb, nil
}

func (a *App) initTools() error {
	if a.dialer == nil {
		host, err := mcphost.New(a.cfg.MCP.Server.ServerConfig(),
			mcphost.WithDialTimeout(a.cfg.MCP.Timeout),
			mcphost.WithLogger(a.log),
		)
		if err != nil {
			return err
		}
		a.dialer = host
	}

	a.checks = append(a.checks, health.Checker{Name: "mcp", Check: a.probeTools})
	a.engine = toolloop.New(a.llm, a.dialer,
		toolloop.WithToolTimeout(a.cfg.MCP.Timeout),
		toolloop.WithProviderName(a.cfg.Providers.LLM.Name),
		toolloop.WithMetrics(a.metrics),
		toolloop.WithLogger(a.log),
	)
	return nil
}

// probeTools dials the tool provider and lists its tools once.
func (a *App) probeTools(ctx context.Context) error {
	return mcp.WithSession(ctx, a.dialer, func(s mcp.Session) error {
		_, err := s.ListTools(ctx)
		return err
	})
}

func (a *App) initDatabase(ctx context.Context) error {
	if a.db == nil {
		pool, err := database.Open(ctx, a.cfg.Database.DSN,
			database.WithMaxConns(a.cfg.Database.MaxConns),
			database.WithLogger(a.log),
		)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		a.db = pool
	}

	a.checks = append(a.checks, health.PingCheck("database", a.db))
	catalog := schema.New(a.db, a.cfg.Database.Schema)
	guard := sqlguard.New(a.db,
		sqlguard.WithMaxRows(a.cfg.Database.MaxRows),
		sqlguard.WithQueryTimeout(a.cfg.Database.QueryTimeout),
		sqlguard.WithLogger(a.log),
	)
	a.engine = dbquery.New(a.llm, catalog, guard,
		dbquery.WithProviderName(a.cfg.Providers.LLM.Name),
		dbquery.WithMetrics(a.metrics),
		dbquery.WithLogger(a.log),
	)
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Engine returns the answer engine selected by the configuration.
func (a *App) Engine() engine.Engine { return a.engine }

// LLM returns the model gateway, wrapped in its fallback group if any.
func (a *App) LLM() llm.Provider { return a.llm }

// Checks returns the readiness probes for the active subsystems.
func (a *App) Checks() []health.Checker {
	return append([]health.Checker(nil), a.checks...)
}

// NewDispatcher returns a [Dispatcher] running jobs on the app's engine with
// the configured worker timeout and concurrency bound.
func (a *App) NewDispatcher() *Dispatcher {
	return NewDispatcher(a.engine,
		WithJobTimeout(a.cfg.Mattermost.WorkerTimeout),
		WithMaxWorkers(a.cfg.Mattermost.MaxWorkers),
		WithDispatcherMetrics(a.metrics),
		WithDispatcherLogger(a.log),
	)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = err
				return
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
