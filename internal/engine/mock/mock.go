// Package mock provides a recording implementation of [engine.Engine] for use
// in unit tests. It is safe for concurrent use.
//
// Example:
//
//	e := &mock.Engine{Reply: "[chat] Hi!"}
//	got := e.Answer(ctx, "hello")
package mock

import (
	"context"
	"sync"

	"github.com/oltiss/mattermost-bot/internal/engine"
)

var _ engine.Engine = (*Engine)(nil)

// Engine is a scripted [engine.Engine].
type Engine struct {
	mu sync.Mutex

	// AnswerFunc, when set, computes the answer.
	AnswerFunc func(ctx context.Context, utterance string) string

	// Reply is returned when AnswerFunc is nil.
	Reply string

	// Block, when non-nil, makes Answer wait until it is closed or the
	// context is done. A done context yields an empty answer.
	Block <-chan struct{}

	utterances []string
}

// Answer records utterance and returns the scripted answer.
func (e *Engine) Answer(ctx context.Context, utterance string) string {
	e.mu.Lock()
	e.utterances = append(e.utterances, utterance)
	fn, reply, block := e.AnswerFunc, e.Reply, e.Block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ""
		}
	}
	if fn != nil {
		return fn(ctx, utterance)
	}
	return reply
}

// Utterances returns every utterance passed to Answer, in call order.
func (e *Engine) Utterances() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.utterances))
	copy(out, e.utterances)
	return out
}
