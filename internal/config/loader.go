package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oltiss/mattermost-bot/internal/mcp"
)

// Defaults applied by [ApplyDefaults]. The LLM and MCP defaults describe a
// local Ollama and a local notes server over SSE.
const (
	DefaultListenAddr    = ":8080"
	DefaultAckText       = "🧠 Thinking... (Query: %s)"
	DefaultWorkerTimeout = 2 * time.Minute
	DefaultLLMProvider   = "ollama"
	DefaultLLMBaseURL    = "http://localhost:11434"
	DefaultLLMModel      = "llama3.1:latest"
	DefaultMCPURL        = "http://localhost:8000/sse"
	DefaultMCPTimeout    = 30 * time.Second
	DefaultSchema        = "public"
	DefaultQueryTimeout  = 15 * time.Second
	DefaultMaxRows       = 200
)

// ValidProviderNames lists the LLM providers registered by the binary. Used
// by [Validate] to warn about probable typos.
var ValidProviderNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// envRef matches ${VAR}. A bare $ is left alone so DSNs and tokens may
// contain it.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, expands, decodes, defaults and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: load %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader is [Load] for an already opened document. Environment
// references are resolved with os.LookupEnv.
func LoadFromReader(r io.Reader) (*Config, error) {
	return load(r, os.LookupEnv)
}

func load(r io.Reader, lookup func(string) (string, bool)) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(expandEnv(raw, lookup)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces every ${VAR} in raw. Unset variables expand to the
// empty string and are logged.
func expandEnv(raw []byte, lookup func(string) (string, bool)) []byte {
	var missing []string
	out := envRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		name := string(envRef.FindSubmatch(ref)[1])
		v, ok := lookup(name)
		if !ok {
			missing = append(missing, name)
		}
		return []byte(v)
	})
	if len(missing) > 0 {
		slog.Warn("config references unset environment variables", "vars", missing)
	}
	return out
}

// ApplyDefaults fills every zero field that has a default. It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogText
	}

	if cfg.Mattermost.AckText == "" {
		cfg.Mattermost.AckText = DefaultAckText
	}
	if cfg.Mattermost.WorkerTimeout == 0 {
		cfg.Mattermost.WorkerTimeout = DefaultWorkerTimeout
	}

	if cfg.Engine == "" {
		cfg.Engine = EngineTools
	}

	llm := &cfg.Providers.LLM
	if llm.Name == "" {
		llm.Name = DefaultLLMProvider
		if llm.BaseURL == "" {
			llm.BaseURL = DefaultLLMBaseURL
		}
	}
	if llm.Model == "" && llm.Name == DefaultLLMProvider {
		llm.Model = DefaultLLMModel
	}

	srv := &cfg.MCP.Server
	if srv.Transport == "" {
		switch {
		case srv.Command != "":
			srv.Transport = mcp.TransportStdio
		default:
			srv.Transport = mcp.TransportSSE
			if srv.URL == "" {
				srv.URL = DefaultMCPURL
			}
		}
	}
	if srv.Name == "" {
		srv.Name = "mcp"
	}
	if cfg.MCP.Timeout == 0 {
		cfg.MCP.Timeout = DefaultMCPTimeout
	}

	if cfg.Database.Schema == "" {
		cfg.Database.Schema = DefaultSchema
	}
	if cfg.Database.QueryTimeout == 0 {
		cfg.Database.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.Database.MaxRows == 0 {
		cfg.Database.MaxRows = DefaultMaxRows
	}
}

// Validate checks that cfg is coherent for its engine and returns every
// problem found, joined.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if !cfg.Server.LogFormat.IsValid() {
		add("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat)
	}

	if cfg.Mattermost.WorkerTimeout < 0 {
		add("mattermost.worker_timeout must not be negative")
	}
	if cfg.Mattermost.MaxWorkers < 0 {
		add("mattermost.max_workers must not be negative")
	}
	if cfg.Mattermost.Token == "" {
		slog.Warn("mattermost.token is empty; slash command requests will not be authenticated")
	}

	if !cfg.Engine.IsValid() {
		add("engine %q is invalid; valid values: tools, database", cfg.Engine)
	}

	validateProvider("providers.llm", cfg.Providers.LLM, add)
	for i, fb := range cfg.Providers.LLMFallbacks {
		validateProvider(fmt.Sprintf("providers.llm_fallbacks[%d]", i), fb, add)
	}

	switch cfg.Engine {
	case EngineTools:
		srv := cfg.MCP.Server
		if !srv.Transport.IsValid() {
			add("mcp.server.transport %q is invalid; valid values: stdio, streamable-http, sse", srv.Transport)
		}
		if srv.Transport == mcp.TransportStdio && strings.TrimSpace(srv.Command) == "" {
			add("mcp.server.command is required when transport is stdio")
		}
		if (srv.Transport == mcp.TransportStreamableHTTP || srv.Transport == mcp.TransportSSE) && srv.URL == "" {
			add("mcp.server.url is required when transport is %s", srv.Transport)
		}
		if cfg.MCP.Timeout < 0 {
			add("mcp.timeout must not be negative")
		}
	case EngineDatabase:
		if cfg.Database.DSN == "" {
			add("database.dsn is required when engine is database")
		}
		if cfg.Database.QueryTimeout < 0 {
			add("database.query_timeout must not be negative")
		}
		if cfg.Database.MaxRows < 0 {
			add("database.max_rows must not be negative")
		}
		if cfg.Database.MaxConns < 0 {
			add("database.max_conns must not be negative")
		}
	}

	return errors.Join(errs...)
}

func validateProvider(path string, e ProviderEntry, add func(string, ...any)) {
	if e.Name == "" {
		add("%s.name is required", path)
		return
	}
	if e.Model == "" {
		add("%s.model is required", path)
	}
	if !slices.Contains(ValidProviderNames, e.Name) {
		slog.Warn("unknown provider name, may be a typo or third-party provider",
			"path", path,
			"name", e.Name,
			"known", ValidProviderNames,
		)
	}
}
