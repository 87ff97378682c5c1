// Package prompt assembles retrieved evidence and conversation history into
// the bounded context blocks sent to language models.
package prompt

import (
	"fmt"
	"strings"

	"github.com/codecontextai/codecontext/pkg/db"
	"github.com/codecontextai/codecontext/pkg/llm"
	"github.com/codecontextai/codecontext/pkg/search"
)

// Budgets bounding what goes into a model request
const (
	// ContextBudgetBytes caps the rendered evidence block. Hits are kept
	// in rank order until the budget runs out, so losing evidence always
	// means losing the weakest matches.
	ContextBudgetBytes = 48 * 1024

	// MaxHistoryMessages caps how many prior turns accompany a question
	MaxHistoryMessages = 20
)

// Evidence is the assembled context for one model request
type Evidence struct {
	Block string        // rendered evidence text
	Hits  []*search.Hit // hits that made it under the budget, rank order
}

// Assemble renders ranked hits into an evidence block under budgetBytes.
// budgetBytes <= 0 uses ContextBudgetBytes. At least one hit is always
// kept, truncated if necessary, so a single oversized chunk cannot starve
// the model of evidence entirely.
func Assemble(hits []*search.Hit, budgetBytes int) *Evidence {
	if budgetBytes <= 0 {
		budgetBytes = ContextBudgetBytes
	}

	var b strings.Builder
	var kept []*search.Hit

	for _, h := range hits {
		rendered := renderHit(h)
		if b.Len() > 0 && b.Len()+len(rendered) > budgetBytes {
			break
		}
		if b.Len() == 0 && len(rendered) > budgetBytes {
			rendered = rendered[:budgetBytes]
		}
		b.WriteString(rendered)
		kept = append(kept, h)
	}

	return &Evidence{Block: b.String(), Hits: kept}
}

// renderHit formats one hit with its source location so the model can cite
// files and line ranges.
func renderHit(h *search.Hit) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("--- %s (lines %d-%d", h.FilePath, h.StartLine, h.EndLine))
	if h.Symbol != "" && !strings.HasPrefix(h.Symbol, "<") {
		b.WriteString(", " + h.Symbol)
	}
	b.WriteString(") ---\n")
	b.WriteString(h.Content)
	if !strings.HasSuffix(h.Content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// History converts stored messages into model messages, keeping only the
// most recent max turns. max <= 0 uses MaxHistoryMessages.
func History(msgs []*db.ChatMessage, max int) []llm.Message {
	if max <= 0 {
		max = MaxHistoryMessages
	}
	if len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}

	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// Sources converts kept hits into the source references persisted with an
// assistant reply.
func Sources(hits []*search.Hit) []db.SourceRef {
	refs := make([]db.SourceRef, 0, len(hits))
	for _, h := range hits {
		symbol := h.Symbol
		if strings.HasPrefix(symbol, "<") {
			symbol = ""
		}
		refs = append(refs, db.SourceRef{
			FilePath:  h.FilePath,
			StartLine: h.StartLine,
			EndLine:   h.EndLine,
			Symbol:    symbol,
			Score:     h.Score,
		})
	}
	return refs
}
