package fusion

import (
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// RetrieverResult groups the evidence returned by a single retriever for a given query.
type RetrieverResult struct {
	// Retriever is the logical retriever key (e.g. "milvus", "bm25").
	Retriever string
	// Weight scales this list's contribution; zero means 1.
	Weight float64
	// Results are the ranked items produced by the retriever.
	Results []schema.EvidenceItem
}
