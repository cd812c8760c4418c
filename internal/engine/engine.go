// Package engine defines the contract shared by the two answer engines.
//
// An [Engine] turns one user utterance into one final answer string. The
// tool-calling orchestrator lives in package toolloop and the intent-gated
// query pipeline in package dbquery; a deployment runs exactly one of them.
//
// Engines never return errors. Every failure along the way is either folded
// into the conversation for the model to explain or converted into a
// user-facing error string, so the caller always has something to post back
// to the chat.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Engine kinds, as selected by the engine config field.
const (
	KindTools    = "tools"
	KindDatabase = "database"
)

// Mode markers prefixed to answers of the query pipeline.
const (
	MarkerChat     = "[chat]"
	MarkerDatabase = "[database]"
)

// Engine answers a single utterance. Implementations own all per-request state
// for the duration of the call and are safe for concurrent use.
type Engine interface {
	// Answer runs the engine and returns the final answer text. It never
	// returns an empty string for a failed run; failures produce an apology.
	Answer(ctx context.Context, utterance string) string
}

// Func adapts a plain function to [Engine].
type Func func(ctx context.Context, utterance string) string

// Answer calls f.
func (f Func) Answer(ctx context.Context, utterance string) string { return f(ctx, utterance) }

// Recover turns a panic in the current goroutine into an error answer. Use it
// as the first deferred call of an Answer implementation:
//
//	defer engine.Recover(ctx, logger, &answer, "Sorry, something went wrong: %v")
func Recover(ctx context.Context, log *slog.Logger, answer *string, format string) {
	r := recover()
	if r == nil {
		return
	}
	log.ErrorContext(ctx, "engine panicked", "panic", r, "stack", string(debug.Stack()))
	*answer = fmt.Sprintf(format, r)
}
