package crag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/config"
)

func TestHTTPEvaluator_Evaluate(t *testing.T) {
	// mock evaluator service
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req evalReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Context {
		case "":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"score": "no"})
		case "bool":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"relevant": true})
		case "garbage":
			_, _ = w.Write([]byte("not json"))
		case "fail":
			w.WriteHeader(http.StatusBadRequest)
		default:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"score": "yes"})
		}
	}))
	defer srv.Close()

	ev := &HTTPEvaluator{Endpoint: srv.URL}
	cases := map[string]Verdict{
		"ctx":     VerdictRelevant,
		"":        VerdictIrrelevant,
		"bool":    VerdictRelevant,
		"garbage": VerdictUnparsed,
		"fail":    VerdictError,
	}
	for contextText, want := range cases {
		verdict, err := ev.Evaluate(context.Background(), "q", contextText)
		if want == VerdictError {
			if err == nil {
				t.Fatalf("%q: expected error", contextText)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: eval error: %v", contextText, err)
		}
		if verdict != want {
			t.Fatalf("%q: expected %v, got %v", contextText, want, verdict)
		}
	}
}

func TestHTTPClients_ConcurrentZeroValueUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"results": []map[string]string{{"title": "t", "url": "https://example.com", "content": "c"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"score": "yes"})
	}))
	defer srv.Close()

	ev := &HTTPEvaluator{Endpoint: srv.URL}
	ws := &WebSearcher{Provider: ProviderTavily, Endpoint: srv.URL + "/search", APIKey: "k"}
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if v, err := ev.Evaluate(context.Background(), "q", "ctx"); err != nil || v != VerdictRelevant {
				errs <- fmt.Errorf("evaluate: %v %v", v, err)
			}
		}()
		go func() {
			defer wg.Done()
			if res, err := ws.Search(context.Background(), "q"); err != nil || len(res) != 1 {
				errs <- fmt.Errorf("search: %d %v", len(res), err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if ev.Client != nil || ws.Client != nil {
		t.Fatal("Expected call path to leave Client unset")
	}
}

func TestConstructorsSetClient(t *testing.T) {
	if NewHTTPEvaluator("http://grader", nil).Client == nil {
		t.Fatal("Expected evaluator client")
	}
	if NewWebSearcher(config.WebSearchConfig{Provider: "tavily"}, nil).Client == nil {
		t.Fatal("Expected web searcher client")
	}
}
