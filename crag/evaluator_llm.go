package crag

import (
	"context"
	"fmt"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/llm"
)

// LLMEvaluator asks the completion service for a binary relevance verdict.
type LLMEvaluator struct {
	Provider llm.Provider
}

// graderPrompt guides the LLM to emit {"score": "yes"|"no"}
const graderPrompt = `You are a grader assessing the relevance of a retrieved document to a user question.
If the document contains keywords or meaning related to the question, grade it as relevant.
The goal is to filter out erroneous retrievals; it does not need to be a stringent test.

Document:
%s

Question:
%s

Give a binary score "yes" or "no" to indicate whether the document is relevant to the question.
Respond with JSON only, with the single key "score" and no preamble: {"score": "yes"}`

// Evaluate implements the Evaluator interface. Anything other than an
// explicit "yes" or "no" is reported as VerdictUnparsed.
func (e *LLMEvaluator) Evaluate(ctx context.Context, query string, contextText string) (Verdict, error) {
	if e.Provider == nil {
		return VerdictError, fmt.Errorf("no completion provider")
	}
	response, err := e.Provider.GenerateCompletion(ctx, fmt.Sprintf(graderPrompt, contextText, query))
	if err != nil {
		logger.Warnf("LLMEvaluator: failed to call LLM: %v", err)
		return VerdictError, err
	}

	res, err := llm.ExtractJSON(response)
	if err != nil {
		logger.Warnf("LLMEvaluator: no JSON verdict in response: %q", truncate(response, 120))
		return VerdictUnparsed, nil
	}
	switch strings.ToLower(strings.TrimSpace(res.Get("score").String())) {
	case "yes":
		return VerdictRelevant, nil
	case "no":
		return VerdictIrrelevant, nil
	default:
		logger.Warnf("LLMEvaluator: unexpected score in %s", truncate(res.Raw, 120))
		return VerdictUnparsed, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
