package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/httpx"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// ElasticsearchRetriever queries an Elasticsearch-like backend using a simple multi_match.
// Endpoint example: http://es:9200
// Index example: ragchat_bm25
type ElasticsearchRetriever struct {
	Endpoint string
	Index    string
	Client   *httpx.Client
	MaxTopK  int
}

func (r *ElasticsearchRetriever) Type() string { return "elasticsearch" }

type esSearchRequest struct {
	Size  int                    `json:"size"`
	Query map[string]interface{} `json:"query"`
}

type esHit struct {
	ID     string                 `json:"_id"`
	Score  float64                `json:"_score"`
	Source map[string]interface{} `json:"_source"`
}
type esHits struct {
	Hits []esHit `json:"hits"`
}
type esSearchResponse struct {
	Hits esHits `json:"hits"`
}

func (r *ElasticsearchRetriever) Search(ctx context.Context, query string, topK int) ([]schema.EvidenceItem, error) {
	if r.Endpoint == "" || r.Index == "" {
		return nil, fmt.Errorf("elasticsearch endpoint or index not configured")
	}
	if r.Client == nil {
		return nil, fmt.Errorf("elasticsearch http client not configured")
	}
	q := esSearchRequest{
		Size: clampTopK(topK, r.MaxTopK),
		Query: map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"content^2", "title", "metadata.*"},
			},
		},
	}
	bs, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	// {endpoint}/{index}/_search
	u, err := url.Parse(r.Endpoint)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, r.Index, "_search")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(bs))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("elasticsearch http status %d", resp.StatusCode)
	}
	var esr esSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&esr); err != nil {
		return nil, err
	}
	out := make([]schema.EvidenceItem, 0, len(esr.Hits.Hits))
	for _, h := range esr.Hits.Hits {
		content, _ := h.Source["content"].(string)
		if content == "" {
			content, _ = h.Source["title"].(string)
		}
		meta := map[string]any{"source": r.Type(), "index": r.Index}
		if m, ok := h.Source["metadata"].(map[string]interface{}); ok {
			for k, v := range m {
				meta[k] = v
			}
		}
		out = append(out, schema.EvidenceItem{ID: h.ID, Content: content, Metadata: meta, Score: h.Score})
	}
	return out, nil
}
