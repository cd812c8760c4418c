package main

import (
	"log/slog"
	"slices"
	"time"

	"github.com/oltiss/mattermost-bot/internal/config"
	"github.com/oltiss/mattermost-bot/pkg/provider/llm"
	"github.com/oltiss/mattermost-bot/pkg/provider/llm/anyllm"
	"github.com/oltiss/mattermost-bot/pkg/provider/llm/openai"
)

// anyLLMProviders are the any-llm-go backends registered under their own
// name. "openai" is left to the native gateway, which supports structured
// output.
func anyLLMProviders() []string {
	return slices.DeleteFunc(anyllm.Backends(), func(name string) bool { return name == "openai" })
}

// newRegistry returns a registry with every built-in gateway registered.
func newRegistry() *config.Registry {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	return reg
}

func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		p, err := openai.New(openai.Config{
			APIKey:          entry.APIKey,
			Model:           entry.Model,
			BaseURL:         entry.BaseURL,
			Organization:    optString(entry.Options, "organization"),
			Timeout:         optDuration(entry.Options, "timeout"),
			ContextWindow:   optInt(entry.Options, "context_window"),
			MaxOutputTokens: optInt(entry.Options, "max_output_tokens"),
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	for _, providerName := range anyLLMProviders() {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			p, err := anyllm.New(anyllm.Config{
				Backend:         providerName,
				Model:           entry.Model,
				APIKey:          entry.APIKey,
				BaseURL:         entry.BaseURL,
				ContextWindow:   optInt(entry.Options, "context_window"),
				MaxOutputTokens: optInt(entry.Options, "max_output_tokens"),
			})
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	slog.Debug("registered llm providers", "names", reg.Names())
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration extracts a duration written as a Go duration string ("30s").
// Returns 0 when absent or malformed.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}

// optInt extracts a whole number. YAML decodes integers as int; JSON-shaped
// sources yield float64. Returns 0 when absent or of another type.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
