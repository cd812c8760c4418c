package app_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/oltiss/mattermost-bot/internal/app"
	"github.com/oltiss/mattermost-bot/internal/config"
	dbmock "github.com/oltiss/mattermost-bot/internal/database/mock"
	mcpmock "github.com/oltiss/mattermost-bot/internal/mcp/mock"
	"github.com/oltiss/mattermost-bot/internal/observe"
	"github.com/oltiss/mattermost-bot/internal/resilience"
	"github.com/oltiss/mattermost-bot/pkg/provider/llm"
	llmmock "github.com/oltiss/mattermost-bot/pkg/provider/llm/mock"
)

// testConfig returns a defaulted config for engine kind.
func testConfig(kind config.Engine) *config.Config {
	cfg := &config.Config{
		Engine: kind,
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "stub", Model: "m"},
		},
		Database: config.DatabaseConfig{DSN: "postgres://unused"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func checkNames(a *app.App) map[string]bool {
	names := map[string]bool{}
	for _, c := range a.Checks() {
		names[c.Name] = true
	}
	return names
}

func TestNew_ToolsEngine(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "You have no notes."}}
	dialer := &mcpmock.Dialer{}

	a, err := app.New(context.Background(), testConfig(config.EngineTools), nil,
		app.WithLLM(provider),
		app.WithDialer(dialer),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if got := a.Engine().Answer(context.Background(), "read my notes"); got != "You have no notes." {
		t.Errorf("answer: got %q, want %q", got, "You have no notes.")
	}
	if dialer.DialCount() != 1 {
		t.Errorf("dial count: got %d, want 1", dialer.DialCount())
	}

	names := checkNames(a)
	if !names["mcp"] || names["database"] {
		t.Fatalf("checks: got %v, want only mcp", names)
	}
	for _, c := range a.Checks() {
		if err := c.Check(context.Background()); err != nil {
			t.Errorf("check %s: %v", c.Name, err)
		}
	}
}

func TestNew_ToolsEngineInvalidServer(t *testing.T) {
	t.Parallel()

	cfg := testConfig(config.EngineTools)
	cfg.MCP.Server.URL = ""
	_, err := app.New(context.Background(), cfg, nil,
		app.WithLLM(&llmmock.Provider{}),
		app.WithMetrics(testMetrics(t)),
	)
	if err == nil {
		t.Fatal("expected error for an sse server without url")
	}
}

func TestNew_DatabaseEngine(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{Content: "NO"},
		{Content: "Hello there!"},
	}}
	db := &dbmock.DB{}

	a, err := app.New(context.Background(), testConfig(config.EngineDatabase), nil,
		app.WithLLM(provider),
		app.WithDatabase(db),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if got := a.Engine().Answer(context.Background(), "hi"); got != "[chat] Hello there!" {
		t.Errorf("answer: got %q, want %q", got, "[chat] Hello there!")
	}

	names := checkNames(a)
	if !names["database"] || names["mcp"] {
		t.Fatalf("checks: got %v, want only database", names)
	}

	db.PingErr = errors.New("connection refused")
	for _, c := range a.Checks() {
		if c.Name == "database" && c.Check(context.Background()) == nil {
			t.Error("database check should report the ping error")
		}
	}
}

func TestNew_EngineKindOverride(t *testing.T) {
	t.Parallel()

	cfg := testConfig(config.EngineTools)
	a, err := app.New(context.Background(), cfg, nil,
		app.WithLLM(&llmmock.Provider{}),
		app.WithDatabase(&dbmock.DB{}),
		app.WithEngineKind(config.EngineDatabase),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !checkNames(a)["database"] {
		t.Error("override should select the database engine")
	}
	if cfg.Engine != config.EngineTools {
		t.Errorf("override mutated the caller's config: %q", cfg.Engine)
	}
}

func TestNew_UnregisteredProvider(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(config.EngineTools), config.NewRegistry(),
		app.WithDialer(&mcpmock.Dialer{}),
		app.WithMetrics(testMetrics(t)),
	)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestNew_FallbackAddsReadinessCheck(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterLLM("stub", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	cfg := testConfig(config.EngineTools)
	cfg.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "stub", Model: "backup"}}

	a, err := app.New(context.Background(), cfg, reg,
		app.WithDialer(&mcpmock.Dialer{}),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !checkNames(a)["llm"] {
		t.Error("expected an llm readiness check with fallbacks configured")
	}
	if _, ok := a.LLM().(*resilience.LLMFallback); !ok {
		t.Errorf("LLM() is %T, want *resilience.LLMFallback", a.LLM())
	}
}

func TestBuildLLM_NoFallbacks(t *testing.T) {
	t.Parallel()

	want := &llmmock.Provider{}
	reg := config.NewRegistry()
	reg.RegisterLLM("stub", func(config.ProviderEntry) (llm.Provider, error) { return want, nil })

	got, err := app.BuildLLM(reg, config.ProvidersConfig{LLM: config.ProviderEntry{Name: "stub"}}, nil)
	if err != nil {
		t.Fatalf("BuildLLM: %v", err)
	}
	if got != want {
		t.Errorf("got %T, want the primary provider itself", got)
	}
}

func TestBuildLLM_FailsOver(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: llm.ErrGateway}
	backup := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from backup"}}
	reg := config.NewRegistry()
	reg.RegisterLLM("primary", func(config.ProviderEntry) (llm.Provider, error) { return primary, nil })
	reg.RegisterLLM("backup", func(config.ProviderEntry) (llm.Provider, error) { return backup, nil })

	p, err := app.BuildLLM(reg, config.ProvidersConfig{
		LLM:          config.ProviderEntry{Name: "primary"},
		LLMFallbacks: []config.ProviderEntry{{Name: "backup"}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildLLM: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from backup" {
		t.Errorf("content: got %q, want %q", resp.Content, "from backup")
	}
}

func TestBuildLLM_UnknownFallback(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterLLM("stub", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })

	_, err := app.BuildLLM(reg, config.ProvidersConfig{
		LLM:          config.ProviderEntry{Name: "stub"},
		LLMFallbacks: []config.ProviderEntry{{Name: "missing"}},
	}, nil)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(config.EngineTools), nil,
		app.WithLLM(&llmmock.Provider{}),
		app.WithDialer(&mcpmock.Dialer{}),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
