// Package openai is the native language model gateway for the OpenAI API and
// OpenAI-compatible endpoints. Unlike the any-llm-go gateway it can request
// JSON-schema constrained replies, which the intent classifier prefers.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/oltiss/mattermost-bot/pkg/provider/llm"
	"github.com/oltiss/mattermost-bot/pkg/types"
)

// Config configures the gateway.
type Config struct {
	APIKey string
	Model  string

	// BaseURL points the client at a compatible endpoint, e.g.
	// "http://localhost:11434/v1" for Ollama.
	BaseURL      string
	Organization string

	// Timeout bounds each HTTP request. Zero leaves it to the caller's
	// context.
	Timeout time.Duration

	// ContextWindow and MaxOutputTokens override the capabilities derived
	// from the model name when positive.
	ContextWindow   int
	MaxOutputTokens int
}

// Provider implements [llm.Provider] with the official openai-go client.
type Provider struct {
	client oai.Client
	model  string
	caps   types.ModelCapabilities
}

var _ llm.Provider = (*Provider)(nil)

// New returns a gateway for cfg. Outgoing requests are traced.
func New(cfg Config) (*Provider, error) {
	switch {
	case cfg.APIKey == "":
		return nil, fmt.Errorf("openai: api key must not be empty")
	case cfg.Model == "":
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.Organization))
	}

	caps := modelCapabilities(cfg.Model)
	if cfg.ContextWindow > 0 {
		caps.ContextWindow = cfg.ContextWindow
	}
	if cfg.MaxOutputTokens > 0 {
		caps.MaxOutputTokens = cfg.MaxOutputTokens
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.Model, caps: caps}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, llm.GatewayError("openai", "chat completion", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices in response: %w", llm.ErrGateway)
	}

	reply := completion.Choices[0].Message
	out := &llm.CompletionResponse{
		Content: reply.Content,
		Usage: llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	for _, call := range reply.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: llm.ParseArguments(call.Function.Arguments),
		})
	}
	return out, nil
}

// CountTokens implements llm.Provider.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	return llm.EstimateTokens(messages), nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return p.caps
}

// family describes the models whose name starts with one of prefixes.
type family struct {
	prefixes   []string
	window     int
	output     int
	tools      bool
	structured bool
}

// families is matched in order; the first hit wins.
var families = []family{
	{prefixes: []string{"gpt-4o", "gpt-4.1"}, window: 128_000, output: 16_384, tools: true, structured: true},
	{prefixes: []string{"gpt-4-turbo"}, window: 128_000, output: 4_096, tools: true},
	{prefixes: []string{"gpt-4"}, window: 8_192, output: 4_096, tools: true},
	{prefixes: []string{"gpt-3.5-turbo"}, window: 16_385, output: 4_096, tools: true},
	{prefixes: []string{"o1", "o3", "o4"}, window: 200_000, output: 100_000, tools: true, structured: true},
}

// modelCapabilities looks the model up in families. Anything else, typically
// a local model behind a compatible endpoint, gets a 128k window with tool
// calling and no structured output.
func modelCapabilities(model string) types.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, f := range families {
		for _, prefix := range f.prefixes {
			if strings.HasPrefix(lower, prefix) {
				return types.ModelCapabilities{
					ContextWindow:            f.window,
					MaxOutputTokens:          f.output,
					SupportsToolCalling:      f.tools,
					SupportsStructuredOutput: f.structured,
				}
			}
		}
	}
	return types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsToolCalling: true}
}

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1),
	}
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, oai.SystemMessage(req.SystemPrompt))
	}
	for i, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: message %d: %w", i, err)
		}
		params.Messages = append(params.Messages, msg)
	}

	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Function.Name,
				Description: param.NewOpt(t.Function.Description),
				Parameters:  shared.FunctionParameters(schemaParameters(t.Function.Parameters)),
			},
		})
	}

	// Models without structured output would reject the field; the
	// classifier falls back to parsing free text.
	if rf := req.ResponseFormat; rf != nil && p.caps.SupportsStructuredOutput {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   rf.Name,
					Schema: orderedSchema(rf.Schema),
					Strict: param.NewOpt(true),
				},
			},
		}
	}
	return params, nil
}

// emptyObjectSchema stands in for a schema that is not a JSON object.
const emptyObjectSchema = `{"type":"object"}`

// orderedSchema returns schema as raw JSON so its key order reaches the wire.
func orderedSchema(schema types.Value) json.RawMessage {
	if schema.Kind() != types.KindObject {
		return json.RawMessage(emptyObjectSchema)
	}
	return json.RawMessage(schema.String())
}

// schemaParameters fits schema into the map the SDK requires. Nested objects
// and arrays, "properties" among them, are kept as raw JSON in their original
// order; only the top-level keys end up sorted.
func schemaParameters(schema types.Value) map[string]any {
	if schema.Kind() != types.KindObject {
		return map[string]any{"type": "object"}
	}
	out := make(map[string]any, schema.Len())
	for _, f := range schema.Fields() {
		switch f.Value.Kind() {
		case types.KindObject, types.KindArray:
			out[f.Key] = json.RawMessage(f.Value.String())
		default:
			out[f.Key] = f.Value.Any()
		}
	}
	return out
}

func convertMessage(m types.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case types.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case types.RoleUser:
		return oai.UserMessage(m.Content), nil
	case types.RoleTool:
		return oai.ToolMessage(m.Content, m.ToolCallID), nil
	case types.RoleAssistant:
		return assistantMessage(m), nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown role %q", m.Role)
}

// assistantMessage replays an earlier model turn, tool calls included, with
// the argument text in its original key order.
func assistantMessage(m types.Message) oai.ChatCompletionMessageParamUnion {
	var msg oai.ChatCompletionAssistantMessageParam
	if m.Content != "" {
		msg.Content.OfString = oai.String(m.Content)
	}
	if m.Name != "" {
		msg.Name = oai.String(m.Name)
	}
	for _, call := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, oai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: oai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: llm.ArgumentsJSON(call.Arguments),
			},
		})
	}
	return oai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}
