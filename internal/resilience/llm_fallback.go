package resilience

import (
	"context"
	"fmt"

	"github.com/oltiss/mattermost-bot/pkg/provider/llm"
	"github.com/oltiss/mattermost-bot/pkg/types"
)

// LLMFallback is an [llm.Provider] that fails over across gateways. A
// completion that exhausts every gateway still wraps [llm.ErrGateway].
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] preferring primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers provider after the ones already added.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete returns the first successful completion.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("llm fallback: complete: %w: %w", llm.ErrGateway, err)
	}
	return resp, nil
}

// CountTokens asks the primary; counting is local and does not fail over.
func (f *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	return f.group.Primary().CountTokens(messages)
}

// Capabilities returns the primary's capabilities. Callers shape requests
// for the primary; fallbacks are expected to be at least as capable.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	return f.group.Primary().Capabilities()
}

// Ready fails when every gateway's breaker is open.
func (f *LLMFallback) Ready(context.Context) error {
	for _, s := range f.group.Status() {
		if s.State != StateOpen {
			return nil
		}
	}
	return fmt.Errorf("llm fallback: every gateway circuit is open: %w", ErrCircuitOpen)
}
