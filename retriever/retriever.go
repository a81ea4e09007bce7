package retriever

import (
	"context"
	"fmt"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// Retriever defines a unified search interface across different backends.
type Retriever interface {
	Type() string
	Search(ctx context.Context, query string, topK int) ([]schema.EvidenceItem, error)
}

// RetrievalError reports that a ranked-retrieval backend could not serve a query.
type RetrievalError struct {
	Retriever string
	Query     string
	Err       error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval via %s failed for %q: %v", e.Retriever, e.Query, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

func clampTopK(topK, limit int) int {
	if topK <= 0 {
		topK = 8
	}
	if limit > 0 && limit < topK {
		topK = limit
	}
	return topK
}
