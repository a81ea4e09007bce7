// Package pre_retrieve turns a raw user message into classified units of work.
package pre_retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/llm"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/metrics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

const DefaultMaxSubQueries = 5

// =============================================================================
// Decomposer - 子问题拆分
// =============================================================================

// Decomposer splits a question into self-contained sub-questions.
type Decomposer struct {
	llm           llm.Provider
	maxSubQueries int
}

func NewDecomposer(provider llm.Provider, maxSubQueries int) *Decomposer {
	if maxSubQueries <= 0 {
		maxSubQueries = DefaultMaxSubQueries
	}
	return &Decomposer{llm: provider, maxSubQueries: maxSubQueries}
}

// Decompose returns the ordered, de-duplicated sub-questions. It never returns
// an empty slice: when the completion fails or yields nothing usable, the
// original question is the only sub-query and fallback is true.
func (d *Decomposer) Decompose(ctx context.Context, question, history string) (subQueries []string, fallback bool) {
	question = strings.TrimSpace(question)
	if question == "" || d.llm == nil {
		return []string{question}, true
	}

	out, err := d.llm.GenerateCompletion(ctx, fmt.Sprintf(decomposePrompt, history, question))
	if err != nil {
		logger.Warnf("decomposer: completion failed, using original question: %v", err)
		return []string{question}, true
	}
	res, err := llm.ExtractJSON(out)
	if err != nil {
		logger.Warnf("decomposer: unparsable output, using original question: %v", err)
		return []string{question}, true
	}

	subQueries = d.collect(res)
	if len(subQueries) == 0 {
		logger.Infof("decomposer: no sub-queries returned, using original question")
		return []string{question}, true
	}
	logger.Debugf("decomposer: %d sub-queries for %q", len(subQueries), question)
	return subQueries, false
}

// collect accepts {"sub_queries": [...]} or a bare array; items may be
// strings or objects carrying completed_query.
func (d *Decomposer) collect(res gjson.Result) []string {
	list := res
	if res.IsObject() {
		list = res.Get("sub_queries")
	}
	if !list.IsArray() {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	list.ForEach(func(_, item gjson.Result) bool {
		text := item.String()
		if item.IsObject() {
			text = item.Get("completed_query").String()
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return true
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
		out = append(out, text)
		return len(out) < d.maxSubQueries
	})
	return out
}

// =============================================================================
// Classifier - 问题分类
// =============================================================================

// Classifier labels one question. It fails closed: any failure, unparsable
// output or unknown label yields out-of-scope.
type Classifier struct {
	llm llm.Provider
}

func NewClassifier(provider llm.Provider) *Classifier {
	return &Classifier{llm: provider}
}

func (c *Classifier) Classify(ctx context.Context, question, history string) schema.Classification {
	label := c.classify(ctx, question, history)
	metrics.IncClassification(label.String())
	return label
}

func (c *Classifier) classify(ctx context.Context, question, history string) schema.Classification {
	question = strings.TrimSpace(question)
	if question == "" || c.llm == nil {
		return schema.OutOfScope
	}
	out, err := c.llm.GenerateCompletion(ctx, fmt.Sprintf(classifyPrompt, history, question))
	if err != nil {
		logger.Warnf("classifier: completion failed for %q: %v", question, err)
		return schema.OutOfScope
	}
	res, err := llm.ExtractJSON(out)
	if err != nil {
		logger.Warnf("classifier: unparsable output for %q: %v", question, err)
		return schema.OutOfScope
	}
	label, ok := schema.ParseClassification(res.Get("classification").String())
	if !ok {
		logger.Warnf("classifier: unknown label %q for %q", res.Get("classification").String(), question)
	}
	return label
}
