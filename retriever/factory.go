package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/httpx"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/config"
)

// New builds the configured retrieval backend wrapped in a Reliable.
func New(ctx context.Context, cfg *config.Config, hc *httpx.Client) (*Reliable, error) {
	if hc == nil {
		hc = httpx.NewFromConfig(&cfg.HTTP)
	}
	rc := cfg.Retrieval
	var (
		inner Retriever
		err   error
	)
	switch strings.ToLower(rc.Provider) {
	case "", "bm25":
		inner, err = newLocalBM25(rc)
	case "elasticsearch":
		inner = &ElasticsearchRetriever{Endpoint: rc.Endpoint, Index: rc.Index, Client: hc}
	case "http":
		inner = &HTTPRetriever{Endpoint: rc.Endpoint, Client: hc}
	case "milvus":
		inner, err = newMilvus(ctx, cfg)
	case "ensemble":
		inner, err = newEnsemble(ctx, cfg, hc)
	default:
		err = &config.ConfigurationError{Field: "retrieval.provider", Err: fmt.Errorf("unknown provider %q", rc.Provider)}
	}
	if err != nil {
		return nil, err
	}
	logger.Infof("retriever: using %s backend, top_k=%d", inner.Type(), rc.TopK)
	return NewReliable(inner, time.Duration(rc.TimeoutMs)*time.Millisecond, rc.Retries), nil
}

func newLocalBM25(rc config.RetrievalConfig) (*BM25Retriever, error) {
	if rc.CorpusPath == "" {
		logger.Warnf("retriever: no corpus_path configured, bm25 index is empty")
		idx, err := NewBM25Index(nil)
		if err != nil {
			return nil, err
		}
		return &BM25Retriever{Index: idx}, nil
	}
	docs, err := LoadCorpus(rc.CorpusPath)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "retrieval.corpus_path", Err: err}
	}
	idx, err := NewBM25Index(docs)
	if err != nil {
		return nil, err
	}
	logger.Infof("retriever: indexed %d documents from %s", idx.Len(), rc.CorpusPath)
	return &BM25Retriever{Index: idx}, nil
}

func newMilvus(ctx context.Context, cfg *config.Config) (*MilvusRetriever, error) {
	emb, err := NewOpenAIEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	return NewMilvusRetriever(ctx, cfg.VectorDB, emb)
}

func newEnsemble(ctx context.Context, cfg *config.Config, hc *httpx.Client) (*Ensemble, error) {
	vector, err := newMilvus(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rc := cfg.Retrieval
	var lexical Retriever
	if rc.Endpoint != "" && rc.Index != "" {
		lexical = &ElasticsearchRetriever{Endpoint: rc.Endpoint, Index: rc.Index, Client: hc}
	} else {
		lexical, err = newLocalBM25(rc)
		if err != nil {
			_ = vector.Close()
			return nil, err
		}
	}
	return &Ensemble{
		Members: []Member{
			{Retriever: vector, Weight: rc.VectorWeight},
			{Retriever: lexical, Weight: rc.LexicalWeight},
		},
		RRFK: rc.RRFK,
	}, nil
}
