package retriever

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/httpx"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

var corpus = []schema.EvidenceItem{
	{ID: "go", Content: "Go is a statically typed compiled language with goroutines and channels."},
	{ID: "rust", Content: "Rust guarantees memory safety without a garbage collector."},
	{ID: "gc", Content: "The Go garbage collector is concurrent and low latency."},
	{Content: "Python is dynamically typed."},
}

func testClient() *httpx.Client {
	return httpx.New(httpx.Options{Timeout: 2 * time.Second, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond})
}

func newTestBM25(t *testing.T, docs []schema.EvidenceItem) *BM25Retriever {
	t.Helper()
	idx, err := NewBM25Index(docs)
	require.NoError(t, err)
	r := &BM25Retriever{Index: idx}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestBM25Retriever_Ranking(t *testing.T) {
	r := newTestBM25(t, corpus)

	out, err := r.Search(context.Background(), "Go garbage collector", 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "gc", out[0].ID)
	assert.Equal(t, "bm25", out[0].Source())
	assert.Greater(t, out[0].Score, out[1].Score)

	out, err = r.Search(context.Background(), "python", 8)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "doc-3", out[0].ID)

	out, err = r.Search(context.Background(), "?!", 8)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBM25Retriever_EmptyIndexAndQuery(t *testing.T) {
	empty := newTestBM25(t, nil)
	out, err := empty.Search(context.Background(), "anything", 8)
	require.NoError(t, err)
	assert.Empty(t, out)

	r := newTestBM25(t, corpus)
	out, err = r.Search(context.Background(), "   ", 8)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 4, r.Index.Len())
}

func TestBM25Retriever_ResultsAreCopies(t *testing.T) {
	r := newTestBM25(t, corpus)
	out, err := r.Search(context.Background(), "rust", 1)
	require.NoError(t, err)
	out[0].Metadata["mutated"] = true

	again, err := r.Search(context.Background(), "rust", 1)
	require.NoError(t, err)
	_, found := again[0].Metadata["mutated"]
	assert.False(t, found)
}

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.jsonl")
	data := `{"id":"1","content":"first passage","metadata":{"source":"a.pdf"}}

{"id":"2","text":"second passage"}
{"id":"3","content":"   "}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	docs, err := LoadCorpus(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.pdf", docs[0].Source())
	assert.Equal(t, "second passage", docs[1].Content)

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))
	_, err = LoadCorpus(path)
	assert.Error(t, err)
}

func TestHTTPRetriever(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{name: "results", body: `{"results":[{"id":"1","content":"alpha","score":0.9,"metadata":{"source":"kb.pdf"}},{"id":"2","content":"beta"}]}`, want: []string{"alpha", "beta"}},
		{name: "documents with page_content", body: `{"documents":[{"page_content":"gamma"}]}`, want: []string{"gamma"}},
		{name: "bare array skips empty", body: `[{"text":"delta"},{"text":""}]`, want: []string{"delta"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got httpSearchRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			r := &HTTPRetriever{Endpoint: srv.URL, Client: testClient()}
			out, err := r.Search(context.Background(), "q", 8)
			require.NoError(t, err)
			contents := make([]string, len(out))
			for i, it := range out {
				contents[i] = it.Content
				assert.NotEmpty(t, it.Source())
			}
			assert.Equal(t, tt.want, contents)
			assert.Equal(t, "q", got.Query)
			assert.Equal(t, 8, got.TopK)
		})
	}
}

func TestHTTPRetriever_BadResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			_, _ = w.Write([]byte("not json"))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := (&HTTPRetriever{Endpoint: srv.URL + "/bad", Client: testClient()}).Search(context.Background(), "q", 1)
	assert.Error(t, err)
	_, err = (&HTTPRetriever{Endpoint: srv.URL + "/status", Client: testClient()}).Search(context.Background(), "q", 1)
	assert.Error(t, err)
}

func TestElasticsearchRetriever(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/kb/_search", r.URL.Path)
		var req esSearchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, 3, req.Size)
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_id":"x","_score":2.5,"_source":{"content":"hello","metadata":{"page":4}}},{"_id":"y","_score":1,"_source":{"title":"only title"}}]}}`))
	}))
	defer srv.Close()

	r := &ElasticsearchRetriever{Endpoint: srv.URL, Index: "kb", Client: testClient()}
	out, err := r.Search(context.Background(), "hello", 3)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "hello", out[0].Content)
	assert.Equal(t, float64(4), out[0].Metadata["page"])
	assert.Equal(t, "only title", out[1].Content)

	_, err = (&ElasticsearchRetriever{Client: testClient()}).Search(context.Background(), "q", 1)
	assert.Error(t, err)
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeMilvus struct {
	gotTopK  int
	gotField string
}

func (f *fakeMilvus) Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
	vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int,
	sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	f.gotTopK = topK
	f.gotField = vectorField
	return []client.SearchResult{{
		ResultCount: 2,
		IDs:         entity.NewColumnInt64("id", []int64{11, 12}),
		Fields: client.ResultSet{
			entity.NewColumnVarChar("content", []string{"first chunk", "second chunk"}),
			entity.NewColumnJSONBytes("metadata", [][]byte{[]byte(`{"source":"manual.pdf"}`), []byte(`{}`)}),
		},
		Scores: []float32{0.9, 0.7},
	}}, nil
}

func (f *fakeMilvus) Close() error { return nil }

func TestMilvusRetriever(t *testing.T) {
	fm := &fakeMilvus{}
	r := &MilvusRetriever{
		Client:        fm,
		Embed:         fakeEmbedder{},
		Collection:    "kb",
		ContentField:  "content",
		VectorField:   "vector",
		MetadataField: "metadata",
		Metric:        entity.IP,
	}
	out, err := r.Search(context.Background(), "q", 4)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "11", out[0].ID)
	assert.Equal(t, "manual.pdf", out[0].Source())
	assert.Equal(t, "milvus", out[1].Source())
	assert.InDelta(t, 0.9, out[0].Score, 1e-6)
	assert.Equal(t, 4, fm.gotTopK)
	assert.Equal(t, "vector", fm.gotField)

	r.Embed = fakeEmbedder{err: errors.New("embedding down")}
	_, err = r.Search(context.Background(), "q", 4)
	assert.Error(t, err)
}

type stubRetriever struct {
	name  string
	items []schema.EvidenceItem
	err   error
	calls int32
	fails int32
}

func (s *stubRetriever) Type() string { return s.name }

func (s *stubRetriever) Search(ctx context.Context, query string, topK int) ([]schema.EvidenceItem, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if s.err != nil && n <= s.fails {
		return nil, s.err
	}
	return s.items, nil
}

func TestEnsemble_PartialFailure(t *testing.T) {
	good := &stubRetriever{name: "bm25", items: []schema.EvidenceItem{{ID: "a", Content: "A"}, {ID: "b", Content: "B"}}}
	bad := &stubRetriever{name: "milvus", err: errors.New("down"), fails: 100}
	e := &Ensemble{Members: []Member{{Retriever: bad, Weight: 0.5}, {Retriever: good, Weight: 0.5}}}

	out, err := e.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestEnsemble_AllFail(t *testing.T) {
	a := &stubRetriever{name: "a", err: errors.New("down"), fails: 100}
	b := &stubRetriever{name: "b", err: errors.New("down too"), fails: 100}
	_, err := (&Ensemble{Members: []Member{{Retriever: a}, {Retriever: b}}}).Search(context.Background(), "q", 3)
	assert.Error(t, err)
}

func TestReliable(t *testing.T) {
	flaky := &stubRetriever{name: "http", err: errors.New("503"), fails: 1, items: []schema.EvidenceItem{{Content: "ok"}}}
	r := NewReliable(flaky, time.Second, 1)
	r.Delay = time.Millisecond
	out, err := r.Search(context.Background(), "q", 8)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&flaky.calls))

	down := &stubRetriever{name: "http", err: errors.New("503"), fails: 100}
	r = NewReliable(down, time.Second, 1)
	r.Delay = time.Millisecond
	_, err = r.Search(context.Background(), "q", 8)
	var re *RetrievalError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "http", re.Retriever)
	assert.Equal(t, int32(2), atomic.LoadInt32(&down.calls))
}
