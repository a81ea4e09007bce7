// Package retrieval decides, per sub-query, whether the session's cached
// evidence is enough or a fresh retrieval is needed.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/cache"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/llm"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/metrics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/post"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/retriever"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// DefaultTopK is the number of items requested from the retrieval service.
const DefaultTopK = 8

const sufficiencyPrompt = `You are checking whether previously retrieved documents already answer a question.

Documents:
%s

Question:
%s

Can the question be fully answered using only the documents above? Answer "yes" or "no" only.`

// Outcome is the evidence chosen for one sub-query.
type Outcome struct {
	Evidence []schema.EvidenceItem
	// FromCache is true when the cached evidence was judged sufficient.
	FromCache bool
	CacheSize int
}

// Orchestrator implements cache-aware retrieval.
type Orchestrator struct {
	Retriever retriever.Retriever
	Cache     cache.ContextCache
	LLM       llm.Provider
	TopK      int
	// Budget bounds the cached evidence shown to the sufficiency check.
	Budget *post.Budget
	// DisableCacheCheck always retrieves fresh evidence, still appending to the cache.
	DisableCacheCheck bool
}

// Retrieve returns the evidence for query. Cached evidence is used only when
// the completion service answers the sufficiency question affirmatively;
// otherwise fresh items are retrieved, appended to the cache and returned
// alone. A retrieval failure returns an empty outcome with the error.
func (o *Orchestrator) Retrieve(ctx context.Context, sessionID, query string) (Outcome, error) {
	cached, err := o.Cache.Load(ctx, sessionID)
	if err != nil {
		logger.Warnf("retrieval: load context cache for %s: %v", sessionID, err)
		cached = nil
	}

	switch {
	case len(cached) == 0:
		metrics.IncContextCache("empty")
	case o.DisableCacheCheck:
		metrics.IncContextCache("disabled")
	case o.sufficient(ctx, cached, query):
		metrics.IncContextCache("sufficient")
		logger.Debugf("retrieval: cached evidence (%d items) sufficient for %q", len(cached), query)
		return Outcome{Evidence: cached, FromCache: true, CacheSize: len(cached)}, nil
	default:
		metrics.IncContextCache("insufficient")
	}

	fresh, err := o.Retriever.Search(ctx, query, o.topK())
	if err != nil {
		logger.Warnf("retrieval: search %q failed: %v", query, err)
		return Outcome{CacheSize: len(cached)}, err
	}
	if len(fresh) > 0 {
		if err := o.Cache.Append(ctx, sessionID, fresh); err != nil {
			logger.Warnf("retrieval: append %d items to context cache for %s: %v", len(fresh), sessionID, err)
		}
	}
	return Outcome{Evidence: fresh, CacheSize: len(cached) + len(fresh)}, nil
}

// sufficient fails toward re-retrieval: any error or non-affirmative answer is "no".
func (o *Orchestrator) sufficient(ctx context.Context, cached []schema.EvidenceItem, query string) bool {
	if o.LLM == nil {
		return false
	}
	sections := make([]string, 0, len(cached))
	for _, it := range cached {
		sections = append(sections, it.Content)
	}
	docs := o.Budget.Fit(sections, "\n\n")
	out, err := o.LLM.GenerateCompletion(ctx, fmt.Sprintf(sufficiencyPrompt, docs, query))
	if err != nil {
		logger.Warnf("retrieval: sufficiency check failed, retrieving: %v", err)
		return false
	}
	return isAffirmative(out)
}

func (o *Orchestrator) topK() int {
	if o.TopK <= 0 {
		return DefaultTopK
	}
	return o.TopK
}

// isAffirmative reports whether the answer contains the word "yes".
func isAffirmative(answer string) bool {
	fields := strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	for _, f := range fields {
		if f == "yes" {
			return true
		}
	}
	return false
}
