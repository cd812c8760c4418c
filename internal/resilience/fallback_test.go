package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newGroup(cfg CircuitBreakerConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("openai", "openai", FallbackConfig{CircuitBreaker: cfg})
	fg.AddFallback("ollama", "ollama")
	return fg
}

func TestFallbackGroupPrimaryFirst(t *testing.T) {
	t.Parallel()
	fg := newGroup(CircuitBreakerConfig{MaxFailures: 3})

	var called []string
	err := fg.Execute(context.Background(), func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(called) != 1 || called[0] != "openai" {
		t.Fatalf("called = %v, want [openai]", called)
	}
}

func TestFallbackGroupFailsOver(t *testing.T) {
	t.Parallel()
	fg := newGroup(CircuitBreakerConfig{MaxFailures: 3})

	got, err := ExecuteWithResult(context.Background(), fg, func(v string) (string, error) {
		if v == "openai" {
			return "", errTest
		}
		return "answer from " + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "answer from ollama" {
		t.Fatalf("got %q, want answer from ollama", got)
	}
}

func TestFallbackGroupAllFailKeepsCauses(t *testing.T) {
	t.Parallel()
	errOllama := errors.New("connection refused")
	fg := newGroup(CircuitBreakerConfig{MaxFailures: 3})

	err := fg.Execute(context.Background(), func(v string) error {
		if v == "openai" {
			return errTest
		}
		return errOllama
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) || !errors.Is(err, errOllama) {
		t.Fatalf("err = %v, want both member errors in the chain", err)
	}
}

func TestFallbackGroupSkipsOpenCircuit(t *testing.T) {
	t.Parallel()
	fg := newGroup(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	for range 2 {
		_ = fg.Execute(context.Background(), func(v string) error {
			if v == "openai" {
				return errTest
			}
			return nil
		})
	}

	var called []string
	err := fg.Execute(context.Background(), func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(called) != 1 || called[0] != "ollama" {
		t.Fatalf("called = %v, want [ollama]", called)
	}

	status := fg.Status()
	if status[0].Name != "openai" || status[0].State != StateOpen {
		t.Errorf("status[0] = %+v, want openai open", status[0])
	}
	if status[1].Name != "ollama" || status[1].State != StateClosed {
		t.Errorf("status[1] = %+v, want ollama closed", status[1])
	}
}

func TestFallbackGroupStopsOnDoneContext(t *testing.T) {
	t.Parallel()
	fg := newGroup(CircuitBreakerConfig{MaxFailures: 3})
	ctx, cancel := context.WithCancel(context.Background())

	var called []string
	err := fg.Execute(ctx, func(v string) error {
		called = append(called, v)
		cancel()
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(called) != 1 {
		t.Fatalf("called = %v, want only the primary", called)
	}
	if fg.Status()[0].State != StateClosed {
		t.Error("a cancelled call must not count against the primary")
	}
}

func TestFallbackGroupPrimary(t *testing.T) {
	t.Parallel()
	if got := newGroup(CircuitBreakerConfig{}).Primary(); got != "openai" {
		t.Fatalf("Primary() = %q, want openai", got)
	}
}
