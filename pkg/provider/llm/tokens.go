package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/oltiss/mattermost-bot/pkg/types"
)

// perMessageOverhead approximates role and separator tokens per message.
const perMessageOverhead = 4

var cl100k = sync.OnceValues(func() (*tiktoken.Tiktoken, error) {
	return tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
})

// EstimateTokens counts tokens with the cl100k_base encoding. When the
// encoding cannot be loaded it falls back to roughly four characters per
// token, which overestimates for English text.
func EstimateTokens(messages []types.Message) int {
	enc, err := cl100k()
	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		if err != nil {
			total += (len(m.Content) + 3) / 4
			continue
		}
		total += len(enc.EncodeOrdinary(m.Content))
		for _, tc := range m.ToolCalls {
			total += len(enc.EncodeOrdinary(tc.Name)) + len(enc.EncodeOrdinary(ArgumentsJSON(tc.Arguments)))
		}
	}
	return total
}
