package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oltiss/mattermost-bot/pkg/provider/llm"
	llmmock "github.com/oltiss/mattermost-bot/pkg/provider/llm/mock"
	"github.com/oltiss/mattermost-bot/pkg/types"
)

func newLLMFallback(primary, secondary *llmmock.Provider, maxFailures int) *LLMFallback {
	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: time.Hour},
	})
	fb.AddFallback("secondary", secondary)
	return fb
}

func TestLLMFallbackPrimarySuccess(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from primary"}}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from secondary"}}
	fb := newLLMFallback(primary, secondary, 3)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from primary" {
		t.Fatalf("content = %q, want from primary", resp.Content)
	}
	if len(secondary.Calls()) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls()))
	}
}

func TestLLMFallbackFailover(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: llm.GatewayError("openai", "chat completion", errTest)}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from secondary"}}
	fb := newLLMFallback(primary, secondary, 3)

	req := llm.CompletionRequest{Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}}}
	resp, err := fb.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from secondary" {
		t.Fatalf("content = %q, want from secondary", resp.Content)
	}
	calls := secondary.Calls()
	if len(calls) != 1 || calls[0].Req.Messages[0].Content != "hi" {
		t.Fatalf("secondary calls = %+v, want the same request", calls)
	}
}

func TestLLMFallbackAllFailIsGatewayError(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
	secondary := &llmmock.Provider{CompleteErr: errors.New("secondary down")}
	fb := newLLMFallback(primary, secondary, 3)

	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, llm.ErrGateway) {
		t.Fatalf("err = %v, want llm.ErrGateway", err)
	}
}

func TestLLMFallbackReady(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: errTest}
	secondary := &llmmock.Provider{CompleteErr: errTest}
	fb := newLLMFallback(primary, secondary, 1)

	if err := fb.Ready(context.Background()); err != nil {
		t.Fatalf("Ready before failures: %v", err)
	}
	_, _ = fb.Complete(context.Background(), llm.CompletionRequest{})
	if err := fb.Ready(context.Background()); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Ready = %v, want ErrCircuitOpen", err)
	}
}

func TestLLMFallbackDelegatesToPrimary(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{
		TokenCount:        42,
		ModelCapabilities: types.ModelCapabilities{ContextWindow: 128000, SupportsToolCalling: true},
	}
	fb := newLLMFallback(primary, &llmmock.Provider{TokenCount: 7}, 3)

	n, err := fb.CountTokens([]types.Message{{Role: types.RoleUser, Content: "test"}})
	if err != nil || n != 42 {
		t.Fatalf("CountTokens = %d, %v; want 42, nil", n, err)
	}
	caps := fb.Capabilities()
	if caps.ContextWindow != 128000 || !caps.SupportsToolCalling {
		t.Fatalf("Capabilities = %+v, want the primary's", caps)
	}
}
