package crag

import (
	"context"
	"fmt"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/llm"
)

// QueryRewriter rewrites a sub-query into a search-optimized phrasing.
type QueryRewriter struct {
	Provider llm.Provider
}

const rewritePrompt = `Generate a search-optimized version of this question by analyzing its core semantic meaning and intent.
Return only the improved question with no additional text:
-------
%s
-------
`

// Rewrite returns the reformulated query. On failure the original query is
// returned together with the error so callers can proceed with it.
func (r *QueryRewriter) Rewrite(ctx context.Context, originalQuery string) (string, error) {
	if r.Provider == nil {
		logger.Warnf("QueryRewriter: no LLM provider, returning original query")
		return originalQuery, nil
	}

	response, err := r.Provider.GenerateCompletion(ctx, fmt.Sprintf(rewritePrompt, originalQuery))
	if err != nil {
		logger.Warnf("QueryRewriter: failed to rewrite query: %v, using original", err)
		return originalQuery, err
	}

	rewritten := cleanRewrite(response)
	if rewritten == "" {
		return originalQuery, nil
	}

	logger.Infof("QueryRewriter: '%s' -> '%s'", originalQuery, rewritten)
	return rewritten, nil
}

// cleanRewrite keeps the first non-empty line and strips wrapping quotes.
func cleanRewrite(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, "\"'`")
		if line != "" && strings.Trim(line, "-") != "" {
			return line
		}
	}
	return ""
}
