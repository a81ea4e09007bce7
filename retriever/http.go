package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/httpx"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// HTTPRetriever calls a remote hybrid (semantic + lexical) retrieval service.
// Request body:
// {"query":"...","top_k":8}
// Response body (results, documents or data are accepted):
// {"results":[{"id":"","content":"","metadata":{},"score":0.9}]}
type HTTPRetriever struct {
	Endpoint string
	Client   *httpx.Client
	Headers  map[string]string
	MaxTopK  int
}

func (r *HTTPRetriever) Type() string { return "http" }

type httpSearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (r *HTTPRetriever) Search(ctx context.Context, query string, topK int) ([]schema.EvidenceItem, error) {
	if r.Endpoint == "" {
		return nil, fmt.Errorf("retrieval endpoint not configured")
	}
	if r.Client == nil {
		r.Client = httpx.NewFromConfig(nil)
	}
	body, err := json.Marshal(httpSearchRequest{Query: query, TopK: clampTopK(topK, r.MaxTopK)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("retrieval http status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("retrieval response is not valid JSON")
	}
	return parseHTTPResults(gjson.ParseBytes(raw), r.Type()), nil
}

func parseHTTPResults(doc gjson.Result, source string) []schema.EvidenceItem {
	list := doc
	if !doc.IsArray() {
		for _, key := range []string{"results", "documents", "data"} {
			if v := doc.Get(key); v.IsArray() {
				list = v
				break
			}
		}
	}
	out := make([]schema.EvidenceItem, 0)
	list.ForEach(func(_, v gjson.Result) bool {
		content := firstString(v, "content", "page_content", "text")
		if content == "" {
			return true
		}
		item := schema.EvidenceItem{
			ID:       firstString(v, "id", "doc_id"),
			Content:  content,
			Score:    v.Get("score").Float(),
			Metadata: map[string]any{},
		}
		if m, ok := v.Get("metadata").Value().(map[string]interface{}); ok {
			for k, val := range m {
				item.Metadata[k] = val
			}
		}
		if _, ok := item.Metadata["source"]; !ok {
			item.Metadata["source"] = source
		}
		out = append(out, item)
		return true
	})
	return out
}

func firstString(v gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := v.Get(p); s.Exists() && s.String() != "" {
			return s.String()
		}
	}
	return ""
}
