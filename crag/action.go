package crag

import (
	"context"
	"fmt"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/metrics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// Grader filters evidence by per-item relevance verdicts.
type Grader struct {
	Evaluator Evaluator
}

// Grade keeps every item not explicitly judged irrelevant. Evaluation
// failures and unreadable verdicts keep the item and count it as relevant.
// Kept items are returned in their original order with Relevant set.
func (g *Grader) Grade(ctx context.Context, query string, items []schema.EvidenceItem) ([]schema.EvidenceItem, int) {
	kept := make([]schema.EvidenceItem, 0, len(items))
	for _, it := range items {
		v := VerdictUnparsed
		if g.Evaluator != nil {
			var err error
			v, err = g.Evaluator.Evaluate(ctx, query, it.Content)
			if err != nil {
				logger.Warnf("grader: evaluate %s failed, keeping item: %v", it.Key(), err)
				v = VerdictError
			}
		}
		metrics.IncGraderVerdict(v.String())
		if !v.Keep() {
			continue
		}
		out := it.Clone()
		out.Relevant = true
		kept = append(kept, out)
	}
	logger.Debugf("grader: %d/%d relevant for %q", len(kept), len(items), query)
	return kept, len(kept)
}

// FoldWebResults renders web results as a single evidence item. ok is false
// when there is nothing to fold.
func FoldWebResults(provider, query string, results []WebSearchResult) (schema.EvidenceItem, bool) {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = "No title"
		}
		content := r.Snippet
		if content == "" {
			content = "No content"
		}
		blocks = append(blocks, fmt.Sprintf("Title: %s\nContent: %s\n", title, content))
	}
	if len(blocks) == 0 {
		return schema.EvidenceItem{}, false
	}
	return schema.EvidenceItem{
		Content: strings.Join(blocks, "\n\n"),
		Metadata: map[string]any{
			"source":       provider + "_search",
			"query":        query,
			"result_count": len(blocks),
		},
		Relevant: true,
	}, true
}
