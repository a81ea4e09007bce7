package crag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/httpx"
)

// HTTPEvaluator calls an external service to grade (query, context) relevance.
// Request: {"query":"...","context":"..."}
// Response: {"score":"yes"} or {"relevant":true}
type HTTPEvaluator struct {
	Endpoint string
	Client   *httpx.Client
}

// defaultClient serves evaluators and searchers built without a client.
var defaultClient = httpx.NewFromConfig(nil)

func NewHTTPEvaluator(endpoint string, client *httpx.Client) *HTTPEvaluator {
	if client == nil {
		client = httpx.NewFromConfig(nil)
	}
	return &HTTPEvaluator{Endpoint: endpoint, Client: client}
}

func (h *HTTPEvaluator) client() *httpx.Client {
	if h.Client == nil {
		return defaultClient
	}
	return h.Client
}

type evalReq struct {
	Query   string `json:"query"`
	Context string `json:"context"`
}

func (h *HTTPEvaluator) Evaluate(ctx context.Context, query string, contextText string) (Verdict, error) {
	bs, err := json.Marshal(evalReq{Query: query, Context: contextText})
	if err != nil {
		return VerdictError, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(bs))
	if err != nil {
		return VerdictError, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client().Do(req)
	if err != nil {
		return VerdictError, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return VerdictError, fmt.Errorf("evaluator returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return VerdictError, err
	}
	if !gjson.ValidBytes(body) {
		return VerdictUnparsed, nil
	}

	res := gjson.ParseBytes(body)
	if rel := res.Get("relevant"); rel.Exists() && (rel.Type == gjson.True || rel.Type == gjson.False) {
		if rel.Bool() {
			return VerdictRelevant, nil
		}
		return VerdictIrrelevant, nil
	}
	switch strings.ToLower(res.Get("score").String()) {
	case "yes":
		return VerdictRelevant, nil
	case "no":
		return VerdictIrrelevant, nil
	}
	return VerdictUnparsed, nil
}
