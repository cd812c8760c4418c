package dbquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/oltiss/mattermost-bot/pkg/provider/llm"
	"github.com/oltiss/mattermost-bot/pkg/types"
)

// Intent is the outcome of the classification gate.
type Intent string

const (
	IntentChat     Intent = "CHAT"
	IntentDatabase Intent = "DATABASE"
)

// How an intent was decided, reported as the method metric attribute.
const (
	MethodStructured = "structured"
	MethodHeuristic  = "heuristic"
)

const classifyPrompt = `Decide whether answering the user's message requires querying the SQL database.
Respond with exactly one word: YES if it requires the database, NO otherwise.

Message: %s`

const classifyStructuredPrompt = `Decide whether answering the user's message requires querying the SQL database.
Set "intent" to "DATABASE" if it requires the database and to "CHAT" otherwise.

Message: %s`

// intentSchemaJSON is both the response format sent to the gateway and the
// schema the reply is validated against.
const intentSchemaJSON = `{"type":"object",` +
	`"properties":{"intent":{"type":"string","enum":["CHAT","DATABASE"]}},` +
	`"required":["intent"],"additionalProperties":false}`

type intentSchema struct {
	wire     types.Value
	resolved *jsonschema.Resolved
}

var loadIntentSchema = sync.OnceValues(func() (*intentSchema, error) {
	wire, err := types.Parse([]byte(intentSchemaJSON))
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal([]byte(intentSchemaJSON), &s); err != nil {
		return nil, err
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, err
	}
	return &intentSchema{wire: wire, resolved: resolved}, nil
})

// HeuristicIntent is the YES-substring heuristic: DATABASE iff the trimmed,
// upper-cased reply contains "YES" anywhere. It is deliberately loose
// ("NO, YESTERDAY..." matches) and only used when no structured reply is
// available.
func HeuristicIntent(reply string) Intent {
	// A Caser is stateful and must not be shared between goroutines.
	upper := cases.Upper(language.Und)
	if strings.Contains(upper.String(strings.TrimSpace(reply)), "YES") {
		return IntentDatabase
	}
	return IntentChat
}

// parseIntent extracts the intent from a structured reply.
func parseIntent(s *intentSchema, reply string) (Intent, error) {
	var v map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply)), &v); err != nil {
		return "", err
	}
	if err := s.resolved.Validate(v); err != nil {
		return "", err
	}
	return Intent(v["intent"].(string)), nil
}

// Classify decides whether utterance needs the database. Sampling is
// disabled. Gateways that support structured output are asked for the
// intent enum; otherwise, or when that reply does not validate, the
// [HeuristicIntent] applies. A reply that matches neither counts as CHAT; a
// failed gateway call is returned as an error wrapping [llm.ErrGateway].
func (p *Pipeline) Classify(ctx context.Context, utterance string) (Intent, string, error) {
	schema, err := loadIntentSchema()
	structured := err == nil && p.llm.Capabilities().SupportsStructuredOutput

	req := llm.CompletionRequest{Temperature: llm.Temperature(0)}
	if structured {
		req.Messages = []types.Message{{Role: types.RoleUser, Content: fmt.Sprintf(classifyStructuredPrompt, utterance)}}
		req.ResponseFormat = &llm.ResponseFormat{Name: "intent", Schema: schema.wire}
	} else {
		req.Messages = []types.Message{{Role: types.RoleUser, Content: fmt.Sprintf(classifyPrompt, utterance)}}
	}

	resp, err := p.complete(ctx, stepClassify, req)
	if err != nil {
		return "", "", err
	}
	if structured {
		intent, perr := parseIntent(schema, resp.Content)
		if perr == nil {
			return intent, MethodStructured, nil
		}
		p.log.DebugContext(ctx, "structured intent reply did not validate", "reply", resp.Content, "err", perr)
	}
	return HeuristicIntent(resp.Content), MethodHeuristic, nil
}
