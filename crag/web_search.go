package crag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/httpx"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/metrics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

const (
	ProviderTavily     = "tavily"
	ProviderBing       = "bing"
	ProviderDuckDuckGo = "duckduckgo"

	defaultTavilyEndpoint     = "https://api.tavily.com/search"
	defaultBingEndpoint       = "https://api.bing.microsoft.com/v7.0/search"
	defaultDuckDuckGoEndpoint = "https://api.duckduckgo.com/"
)

// WebSearcher performs web searches to retrieve external knowledge.
type WebSearcher struct {
	Provider   string // tavily, bing, duckduckgo
	Endpoint   string
	APIKey     string
	MaxResults int
	Client     *httpx.Client
}

// WebSearchResult represents a single web search result with title, URL, and snippet.
type WebSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func NewWebSearcher(cfg config.WebSearchConfig, client *httpx.Client) *WebSearcher {
	if client == nil {
		client = httpx.NewFromConfig(nil)
	}
	return &WebSearcher{
		Provider:   strings.ToLower(cfg.Provider),
		Endpoint:   cfg.Endpoint,
		APIKey:     cfg.APIKey,
		MaxResults: cfg.MaxResults,
		Client:     client,
	}
}

func (w *WebSearcher) client() *httpx.Client {
	if w.Client == nil {
		return defaultClient
	}
	return w.Client
}

// Enabled reports whether the configured provider has what it needs to run.
// Tavily and Bing require an API key; DuckDuckGo does not.
func (w *WebSearcher) Enabled() bool {
	if w == nil {
		return false
	}
	switch w.Provider {
	case ProviderTavily, ProviderBing:
		return w.APIKey != ""
	case ProviderDuckDuckGo:
		return true
	default:
		return false
	}
}

// Fallback searches the web for query and folds the results into a single
// relevant evidence item. ok is false when search is disabled, fails or
// returns nothing.
func (w *WebSearcher) Fallback(ctx context.Context, query string) (item schema.EvidenceItem, ok bool) {
	if !w.Enabled() {
		logger.Infof("WebSearcher: no credentials for %q, skipping web search", w.providerName())
		metrics.IncWebSearch("disabled")
		return schema.EvidenceItem{}, false
	}
	results, err := w.Search(ctx, query)
	if err != nil {
		logger.Warnf("WebSearcher: %v", err)
		metrics.IncWebSearch("error")
		return schema.EvidenceItem{}, false
	}
	item, ok = FoldWebResults(w.Provider, query, results)
	if !ok {
		metrics.IncWebSearch("empty")
		return schema.EvidenceItem{}, false
	}
	metrics.IncWebSearch("ok")
	return item, true
}

// Search performs a web search with the configured provider.
func (w *WebSearcher) Search(ctx context.Context, query string) ([]WebSearchResult, error) {
	numResults := w.MaxResults
	if numResults <= 0 {
		numResults = 5
	}

	var results []WebSearchResult
	var err error
	switch w.Provider {
	case ProviderTavily:
		results, err = w.searchTavily(ctx, query, numResults)
	case ProviderBing:
		results, err = w.searchBing(ctx, query, numResults)
	case ProviderDuckDuckGo:
		results, err = w.searchDuckDuckGo(ctx, query, numResults)
	default:
		return nil, fmt.Errorf("unknown web search provider %q", w.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}
	if len(results) > numResults {
		results = results[:numResults]
	}
	return results, nil
}

func (w *WebSearcher) providerName() string {
	if w == nil || w.Provider == "" {
		return "none"
	}
	return w.Provider
}

func (w *WebSearcher) endpoint(def string) string {
	if w.Endpoint != "" {
		return w.Endpoint
	}
	return def
}

// searchTavily calls the Tavily search API.
func (w *WebSearcher) searchTavily(ctx context.Context, query string, numResults int) ([]WebSearchResult, error) {
	body, err := json.Marshal(map[string]any{
		"api_key":     w.APIKey,
		"query":       query,
		"max_results": numResults,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint(defaultTavilyEndpoint), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.APIKey)

	resp, err := w.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tavily api returned status %d", resp.StatusCode)
	}

	var tavilyResp struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tavilyResp); err != nil {
		return nil, err
	}
	results := make([]WebSearchResult, 0, len(tavilyResp.Results))
	for _, r := range tavilyResp.Results {
		results = append(results, WebSearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	logger.Infof("WebSearcher: Tavily returned %d results for query: %s", len(results), query)
	return results, nil
}

// searchDuckDuckGo performs a DuckDuckGo search using their Instant Answer API
func (w *WebSearcher) searchDuckDuckGo(ctx context.Context, query string, numResults int) ([]WebSearchResult, error) {
	u, err := url.Parse(w.endpoint(defaultDuckDuckGoEndpoint))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := w.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duckduckgo api returned status %d", resp.StatusCode)
	}

	var ddgResp struct {
		AbstractText   string `json:"AbstractText"`
		AbstractSource string `json:"AbstractSource"`
		AbstractURL    string `json:"AbstractURL"`
		RelatedTopics  []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ddgResp); err != nil {
		return nil, err
	}

	results := make([]WebSearchResult, 0, numResults)
	if ddgResp.AbstractText != "" {
		results = append(results, WebSearchResult{
			Title:   ddgResp.AbstractSource,
			URL:     ddgResp.AbstractURL,
			Snippet: ddgResp.AbstractText,
		})
	}
	for _, topic := range ddgResp.RelatedTopics {
		if len(results) >= numResults {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		title := topic.Text
		if i := strings.Index(title, " - "); i > 0 {
			title = title[:i]
		}
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, WebSearchResult{Title: title, URL: topic.FirstURL, Snippet: topic.Text})
	}

	logger.Infof("WebSearcher: DuckDuckGo returned %d results for query: %s", len(results), query)
	return results, nil
}

// searchBing performs a Bing Web Search using Bing Search API v7
func (w *WebSearcher) searchBing(ctx context.Context, query string, numResults int) ([]WebSearchResult, error) {
	if w.APIKey == "" {
		return nil, fmt.Errorf("bing search requires api key")
	}
	u, err := url.Parse(w.endpoint(defaultBingEndpoint))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", numResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", w.APIKey)

	resp, err := w.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bing api returned status %d", resp.StatusCode)
	}

	var bingResp struct {
		WebPages struct {
			Value []struct {
				Name    string `json:"name"`
				URL     string `json:"url"`
				Snippet string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bingResp); err != nil {
		return nil, err
	}

	results := make([]WebSearchResult, 0, len(bingResp.WebPages.Value))
	for _, v := range bingResp.WebPages.Value {
		results = append(results, WebSearchResult{Title: v.Name, URL: v.URL, Snippet: v.Snippet})
	}
	logger.Infof("WebSearcher: Bing returned %d results for query: %s", len(results), query)
	return results, nil
}
