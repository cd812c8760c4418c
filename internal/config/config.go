// Package config provides the configuration schema, loader and provider
// registry of the bot.
//
// A [Config] is loaded once at start-up with [Load], which expands
// ${VAR} references, decodes strict YAML, fills in defaults and validates.
// The result is treated as immutable and handed to constructors explicitly.
package config

import (
	"time"

	"github.com/oltiss/mattermost-bot/internal/mcp"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the log handler.
type LogFormat string

const (
	// LogText is the coloured console handler.
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// Engine selects the answer engine of a deployment.
type Engine string

const (
	// EngineTools is the tool-calling conversation orchestrator.
	EngineTools Engine = "tools"

	// EngineDatabase is the intent-gated query pipeline.
	EngineDatabase Engine = "database"
)

// IsValid reports whether e is a recognised engine.
func (e Engine) IsValid() bool {
	return e == EngineTools || e == EngineDatabase
}

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Mattermost MattermostConfig `yaml:"mattermost"`
	Engine     Engine           `yaml:"engine"`
	Providers  ProvidersConfig  `yaml:"providers"`
	MCP        MCPConfig        `yaml:"mcp"`
	Database   DatabaseConfig   `yaml:"database"`
	Observe    ObserveConfig    `yaml:"observe"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP server. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`
}

// MattermostConfig configures the slash-command webhook.
type MattermostConfig struct {
	// Token is the slash command's shared secret. When empty, requests are
	// not authenticated.
	Token string `yaml:"token"`

	// AckText is the immediate in-channel reply. The first "%s" is replaced
	// with the query.
	AckText string `yaml:"ack_text"`

	// WorkerTimeout bounds one answer job. Default 2m.
	WorkerTimeout time.Duration `yaml:"worker_timeout"`

	// MaxWorkers caps concurrently running jobs. 0 means unbounded.
	MaxWorkers int `yaml:"max_workers"`
}

// ProvidersConfig declares the language model gateway and its fallbacks.
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
}

// ProviderEntry is the configuration block of one gateway. Name selects the
// factory in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "ollama").
	Name string `yaml:"name"`

	// APIKey authenticates against hosted providers.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the model, e.g. "llama3.1:latest".
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// MCPConfig configures the tool provider used by the tools engine.
type MCPConfig struct {
	Server MCPServerConfig `yaml:"server"`

	// Timeout bounds session establishment and each tool call. Default 30s.
	Timeout time.Duration `yaml:"timeout"`
}

// MCPServerConfig describes how to reach the MCP tool server.
type MCPServerConfig struct {
	// Name identifies the server in logs.
	Name string `yaml:"name"`

	Transport mcp.Transport `yaml:"transport"`

	// Command is the executable and arguments for the stdio transport.
	Command string `yaml:"command"`

	// URL is the endpoint for the streamable-http and sse transports.
	URL string `yaml:"url"`

	// Env holds extra environment variables for a stdio subprocess.
	Env map[string]string `yaml:"env"`
}

// ServerConfig converts c into the session dialer's configuration.
func (c MCPServerConfig) ServerConfig() mcp.ServerConfig {
	return mcp.ServerConfig{
		Name:      c.Name,
		Transport: c.Transport,
		Command:   c.Command,
		URL:       c.URL,
		Env:       c.Env,
	}
}

// DatabaseConfig configures the database used by the database engine.
type DatabaseConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// Schema is the namespace whose tables are described to the model.
	// Default "public".
	Schema string `yaml:"schema"`

	// QueryTimeout bounds one generated statement. Default 15s.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// MaxRows caps the rows serialised from one result. Default 200.
	MaxRows int `yaml:"max_rows"`

	// MaxConns caps the connection pool. 0 keeps the pgx default.
	MaxConns int32 `yaml:"max_conns"`
}

// ObserveConfig toggles observability endpoints.
type ObserveConfig struct {
	// Metrics exposes the Prometheus /metrics endpoint.
	Metrics bool `yaml:"metrics"`
}
