// Package anyllm is the language model gateway for every backend served
// through github.com/mozilla-ai/any-llm-go: Ollama (the default deployment),
// Anthropic, Gemini, DeepSeek, Mistral, Groq, llama.cpp, llamafile and
// OpenAI-compatible endpoints.
//
//	p, err := anyllm.New(anyllm.Config{
//	    Backend: "ollama",
//	    Model:   "llama3.1:latest",
//	    BaseURL: "http://localhost:11434",
//	})
package anyllm

import (
	"context"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/oltiss/mattermost-bot/pkg/provider/llm"
	"github.com/oltiss/mattermost-bot/pkg/types"
)

// ollamaContextWindow is Ollama's default num_ctx. The server silently drops
// the head of longer prompts, so the model's nominal window does not apply.
const ollamaContextWindow = 4096

// backends maps each backend name to its any-llm-go constructor.
var backends = map[string]func(opts ...anyllmlib.Option) (anyllmlib.Provider, error){
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
}

// Backends returns the backend names [New] accepts, sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Config selects and configures one backend.
type Config struct {
	// Backend is one of [Backends]. Case-insensitive.
	Backend string

	// Model is the backend's model name, e.g. "llama3.1:latest".
	Model string

	// APIKey authenticates against hosted backends. When empty the backend
	// reads its usual environment variable (ANTHROPIC_API_KEY, ...).
	APIKey string

	// BaseURL overrides the backend's default endpoint.
	BaseURL string

	// ContextWindow and MaxOutputTokens override the capabilities derived
	// from the model name when positive.
	ContextWindow   int
	MaxOutputTokens int
}

// Provider implements [llm.Provider] on top of an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
	caps    types.ModelCapabilities
}

var _ llm.Provider = (*Provider)(nil)

// New creates the backend named in cfg.
func New(cfg Config) (*Provider, error) {
	name := strings.ToLower(cfg.Backend)
	if name == "" {
		return nil, fmt.Errorf("anyllm: backend must not be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}
	ctor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q; supported: %s", cfg.Backend, strings.Join(Backends(), ", "))
	}

	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	b, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", name, err)
	}

	caps := modelCapabilities(cfg.Model)
	if name == "ollama" {
		caps.ContextWindow = min(caps.ContextWindow, ollamaContextWindow)
		caps.MaxOutputTokens = min(caps.MaxOutputTokens, ollamaContextWindow/4)
	}
	if cfg.ContextWindow > 0 {
		caps.ContextWindow = cfg.ContextWindow
	}
	if cfg.MaxOutputTokens > 0 {
		caps.MaxOutputTokens = cfg.MaxOutputTokens
	}
	return &Provider{backend: b, name: name, model: cfg.Model, caps: caps}, nil
}

// Complete implements llm.Provider. ResponseFormat is ignored: any-llm-go
// has no structured output parameter.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, llm.GatewayError("anyllm/"+p.name, "completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm/%s: no choices in response: %w", p.name, llm.ErrGateway)
	}

	msg := resp.Choices[0].Message
	out := &llm.CompletionResponse{Content: msg.ContentString()}
	if resp.Usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: llm.ParseArguments(tc.Function.Arguments),
		})
	}
	return out, nil
}

// CountTokens implements llm.Provider. Non-OpenAI tokenizers differ, so the
// cl100k_base count is an estimate.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	return llm.EstimateTokens(messages), nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return p.caps
}

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, convertMessage(m))
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: messages}
	if req.Temperature != nil {
		t := *req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, convertTool(t))
	}
	return params
}

// convertTool maps one adapted tool. any-llm-go wants untyped parameters,
// which some backends walk as plain maps, so key order is not kept here. A
// schema that is not an object becomes the empty object schema.
func convertTool(t llm.Tool) anyllmlib.Tool {
	parameters := t.Function.Parameters.Map()
	if parameters == nil {
		parameters = map[string]any{"type": "object"}
	}
	return anyllmlib.Tool{
		Type: t.Type,
		Function: anyllmlib.Function{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  parameters,
		},
	}
}

func convertMessage(m types.Message) anyllmlib.Message {
	msg := anyllmlib.Message{
		Role:       m.Role,
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, anyllmlib.ToolCall{
			ID:   tc.ID,
			Type: llm.ToolTypeFunction,
			Function: anyllmlib.FunctionCall{
				Name:      tc.Name,
				Arguments: llm.ArgumentsJSON(tc.Arguments),
			},
		})
	}
	return msg
}

// modelCapabilities guesses capabilities from the model name. Unknown models
// get a 128k window with tool calling.
func modelCapabilities(model string) types.ModelCapabilities {
	caps := types.ModelCapabilities{
		SupportsToolCalling: true,
		ContextWindow:       128_000,
		MaxOutputTokens:     4_096,
	}

	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gpt-4o"):
		caps.MaxOutputTokens = 16_384
	case strings.HasPrefix(lower, "gpt-4-turbo"):
	case strings.HasPrefix(lower, "gpt-4"):
		caps.ContextWindow = 8_192
	case strings.HasPrefix(lower, "gpt-3.5-turbo"):
		caps.ContextWindow = 16_385

	case strings.HasPrefix(lower, "claude"):
		caps.ContextWindow = 200_000
		caps.MaxOutputTokens = 8_192

	case strings.Contains(lower, "gemini-1.5-pro"):
		caps.ContextWindow = 2_097_152
		caps.MaxOutputTokens = 8_192
	case strings.Contains(lower, "gemini"):
		caps.ContextWindow = 1_048_576
		caps.MaxOutputTokens = 8_192

	case strings.HasPrefix(lower, "deepseek"):
		caps.ContextWindow = 64_000
		caps.MaxOutputTokens = 8_192

	// Local models. Tool calling needs a template that supports it.
	case strings.HasPrefix(lower, "llama3"), strings.HasPrefix(lower, "qwen"), strings.HasPrefix(lower, "mistral"):
		caps.ContextWindow = 32_768
		caps.MaxOutputTokens = 2_048
	case strings.HasPrefix(lower, "gemma"), strings.HasPrefix(lower, "phi"), strings.HasPrefix(lower, "llama2"):
		caps.ContextWindow = 8_192
		caps.MaxOutputTokens = 2_048
		caps.SupportsToolCalling = false
	}
	return caps
}
