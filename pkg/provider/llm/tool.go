package llm

import (
	"strings"

	"github.com/oltiss/mattermost-bot/pkg/types"
)

// ToolTypeFunction is the only tool kind the gateways declare.
const ToolTypeFunction = "function"

// Tool is one entry of the function-calling schema offered to the model.
type Tool struct {
	// Type is the kind tag, always [ToolTypeFunction].
	Type string

	Function Function
}

// Function describes a callable function.
type Function struct {
	Name        string
	Description string

	// Parameters is the JSON Schema of the accepted arguments.
	Parameters types.Value
}

// ResponseFormat constrains a reply to a named JSON schema.
type ResponseFormat struct {
	Name   string
	Schema types.Value
}

// ParseArguments decodes the raw argument text of a model tool call. Empty
// text yields an empty object; text that is not valid JSON is kept as a
// string value so dispatch can report it.
func ParseArguments(raw string) types.Value {
	if strings.TrimSpace(raw) == "" {
		return types.Object()
	}
	v, err := types.Parse([]byte(raw))
	if err != nil {
		return types.String(raw)
	}
	return v
}

// ArgumentsJSON is the inverse of [ParseArguments]: the text sent back to the
// model when replaying an assistant tool call.
func ArgumentsJSON(v types.Value) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	if v.IsNull() {
		return "{}"
	}
	return v.String()
}
