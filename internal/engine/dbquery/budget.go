package dbquery

import (
	"context"
	"fmt"
	"strings"

	"github.com/oltiss/mattermost-bot/internal/schema"
	"github.com/oltiss/mattermost-bot/pkg/types"
)

// defaultReplyReserve is kept free for the generated statement when the
// model does not report its output limit.
const defaultReplyReserve = 1024

// fitSchema renders snap for the synthesis prompt. When the model reports a
// context window and the prompt would not fit in it, trailing tables are
// dropped; tables named in the utterance are kept first. At least one table
// always survives. A token counting failure leaves the schema whole.
func (p *Pipeline) fitSchema(ctx context.Context, snap schema.Snapshot, utterance string) string {
	caps := p.llm.Capabilities()
	if caps.ContextWindow <= 0 || len(snap.Tables) < 2 {
		return snap.String()
	}
	reserve := caps.MaxOutputTokens
	if reserve <= 0 {
		reserve = defaultReplyReserve
	}
	budget := caps.ContextWindow - reserve

	tables := rankTables(snap.Tables, utterance)
	keep := len(tables)
	for {
		s := schema.Snapshot{Namespace: snap.Namespace, Tables: tables[:keep]}
		text := s.String()
		n, err := p.llm.CountTokens([]types.Message{{
			Role:    types.RoleUser,
			Content: fmt.Sprintf(synthesisPrompt, text, utterance),
		}})
		if err != nil {
			p.log.WarnContext(ctx, "token count failed, sending full schema", "err", err)
			return snap.String()
		}
		if n <= budget || keep == 1 {
			if keep == len(tables) {
				return snap.String()
			}
			p.log.WarnContext(ctx, "schema trimmed to fit the context window",
				"tables_kept", keep, "tables_total", len(tables), "tokens", n, "budget", budget)
			return text
		}
		// Shrink in proportion to the overshoot, by at least one table.
		next := keep * max(budget, 0) / n
		keep = max(1, min(next, keep-1))
	}
}

// rankTables moves tables whose name occurs in utterance to the front and
// keeps the catalogue order otherwise.
func rankTables(tables []schema.Table, utterance string) []schema.Table {
	text := strings.ToLower(utterance)
	out := make([]schema.Table, 0, len(tables))
	var rest []schema.Table
	for _, t := range tables {
		stem := strings.TrimSuffix(strings.ToLower(t.Name), "s")
		if stem != "" && strings.Contains(text, stem) {
			out = append(out, t)
			continue
		}
		rest = append(rest, t)
	}
	return append(out, rest...)
}
