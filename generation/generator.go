// Package generation produces per-sub-query answers and the final response.
package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/llm"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/post"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// Fixed answers used when the completion service fails.
const (
	FallbackInScope    = "Error while generating the response."
	FallbackGeneral    = "I'm sorry, I encountered an issue generating a response."
	FallbackOutOfScope = "I'm sorry, but I can't provide information on that topic."
	FallbackSynthesis  = "Error while generating the final response."
)

// Generator answers one sub-query according to its classification.
type Generator struct {
	LLM llm.Provider
	// Budget bounds the evidence context; nil keeps all evidence.
	Budget *post.Budget
}

// Answer never fails: a completion error yields the fixed fallback for the
// record's classification. The boolean reports whether the fallback was used.
func (g *Generator) Answer(ctx context.Context, rec *schema.SubQueryRecord, history string) (string, bool) {
	var prompt, fallback string
	switch rec.Classification {
	case schema.InScope:
		prompt = fmt.Sprintf(inScopePrompt, history, g.evidenceContext(rec.Evidence), rec.Text)
		fallback = FallbackInScope
	case schema.General:
		prompt = fmt.Sprintf(generalPrompt, rec.Text)
		fallback = FallbackGeneral
	default:
		prompt = fmt.Sprintf(outOfScopePrompt, rec.Text)
		fallback = FallbackOutOfScope
	}

	if g.LLM == nil {
		return fallback, true
	}
	out, err := g.LLM.GenerateCompletion(ctx, prompt)
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		logger.Warnf("generator: %s answer for %q failed: %v", rec.Classification, rec.Text, err)
		return fallback, true
	}
	return out, false
}

// evidenceContext concatenates evidence in source order within the budget.
func (g *Generator) evidenceContext(items []schema.EvidenceItem) string {
	sections := make([]string, 0, len(items))
	for _, it := range items {
		sections = append(sections, it.Content)
	}
	return g.Budget.Fit(sections, "\n\n")
}

// Synthesizer merges sub-query answers into the final response.
type Synthesizer struct {
	LLM llm.Provider
}

// Synthesize never fails; the boolean reports whether the fallback was used.
func (s *Synthesizer) Synthesize(ctx context.Context, question, history string, records []*schema.SubQueryRecord) (string, bool) {
	if s.LLM == nil {
		return FallbackSynthesis, true
	}
	prompt := fmt.Sprintf(synthesisPrompt, history, SubAnswerContext(records), question)
	out, err := s.LLM.GenerateCompletion(ctx, prompt)
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		logger.Warnf("synthesizer: final response for %q failed: %v", question, err)
		return FallbackSynthesis, true
	}
	return out, false
}

// SubAnswerContext renders "Sub-Query i: q\nResponse i: a" blocks separated by
// blank lines, skipping records with neither text nor answer.
func SubAnswerContext(records []*schema.SubQueryRecord) string {
	parts := make([]string, 0, len(records))
	idx := 0
	for _, rec := range records {
		q := strings.TrimSpace(rec.Text)
		a := strings.TrimSpace(rec.Answer)
		if q == "" && a == "" {
			continue
		}
		idx++
		parts = append(parts, fmt.Sprintf("Sub-Query %d: %s\nResponse %d: %s", idx, q, idx, a))
	}
	return strings.Join(parts, "\n\n")
}
