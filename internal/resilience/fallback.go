package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no member of a [FallbackGroup] produced a
// result. The member errors stay in the chain, so errors.Is still finds the
// underlying cause.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the breaker created for every group member.
// The member name replaces CircuitBreaker.Name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// MemberStatus is a point-in-time view of one group member.
type MemberStatus struct {
	Name  string
	State State
}

// FallbackGroup holds a primary and its ordered fallbacks. Members are
// registered during setup; calls are safe for concurrent use once
// registration is done.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
	log     *slog.Logger
}

// NewFallbackGroup creates a group whose first member is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	log := cfg.CircuitBreaker.Logger
	if log == nil {
		log = slog.Default()
	}
	fg := &FallbackGroup[T]{cfg: cfg, log: log}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a member tried after every member added before it.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.members = append(fg.members, member[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Primary returns the first member.
func (fg *FallbackGroup[T]) Primary() T {
	return fg.members[0].value
}

// Status reports the breaker state of every member in order.
func (fg *FallbackGroup[T]) Status() []MemberStatus {
	out := make([]MemberStatus, len(fg.members))
	for i := range fg.members {
		out[i] = MemberStatus{Name: fg.members[i].name, State: fg.members[i].breaker.State()}
	}
	return out
}

// Execute runs fn against each member in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult runs fn against each member in order and returns the
// first success. Members with an open breaker are skipped. Once ctx is done
// no further member is tried and ctx's error is returned.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range fg.members {
		m := &fg.members[i]
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var out R
		err := m.breaker.Execute(func() error {
			var err error
			out, err = fn(m.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			fg.log.Debug("skipping provider with open circuit", "provider", m.name)
		} else {
			fg.log.Warn("provider failed, trying next", "provider", m.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
