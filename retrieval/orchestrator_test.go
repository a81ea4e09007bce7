package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/cache"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

type fakeRetriever struct {
	items []schema.EvidenceItem
	err   error
	calls int
	topK  int
}

func (f *fakeRetriever) Type() string { return "fake" }

func (f *fakeRetriever) Search(ctx context.Context, query string, topK int) ([]schema.EvidenceItem, error) {
	f.calls++
	f.topK = topK
	return schema.CloneEvidence(f.items), f.err
}

type answerLLM struct {
	answer string
	err    error
	calls  int
}

func (a *answerLLM) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	a.calls++
	return a.answer, a.err
}

func (a *answerLLM) GetProviderType() string { return "mock" }

func docs(contents ...string) []schema.EvidenceItem {
	out := make([]schema.EvidenceItem, len(contents))
	for i, c := range contents {
		out[i] = schema.EvidenceItem{ID: c, Content: c}
	}
	return out
}

func TestOrchestrator_EmptyCacheRetrievesAndAppends(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryContextCache()
	r := &fakeRetriever{items: docs("a", "b")}
	l := &answerLLM{answer: "yes"}
	o := &Orchestrator{Retriever: r, Cache: c, LLM: l}

	out, err := o.Retrieve(ctx, "s", "q")
	require.NoError(t, err)
	assert.False(t, out.FromCache)
	assert.Equal(t, docs("a", "b"), out.Evidence)
	assert.Equal(t, DefaultTopK, r.topK)
	assert.Equal(t, 0, l.calls, "no sufficiency check against an empty cache")

	cached, err := c.Load(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestOrchestrator_SufficiencyDecision(t *testing.T) {
	tests := []struct {
		name          string
		answer        string
		err           error
		wantFromCache bool
		wantEvidence  []schema.EvidenceItem
	}{
		{"yes uses cache", "Yes.", nil, true, docs("old")},
		{"no retrieves", "No, it cannot.", nil, false, docs("new")},
		{"yesterday is not yes", "yesterday", nil, false, docs("new")},
		{"failure retrieves", "", errors.New("down"), false, docs("new")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c := cache.NewMemoryContextCache()
			require.NoError(t, c.Append(ctx, "s", docs("old")))
			r := &fakeRetriever{items: docs("new")}
			o := &Orchestrator{Retriever: r, Cache: c, LLM: &answerLLM{answer: tt.answer, err: tt.err}, TopK: 3}

			out, err := o.Retrieve(ctx, "s", "q")
			require.NoError(t, err)
			assert.Equal(t, tt.wantFromCache, out.FromCache)
			assert.Equal(t, tt.wantEvidence, out.Evidence)

			cached, _ := c.Load(ctx, "s")
			if tt.wantFromCache {
				assert.Equal(t, 0, r.calls)
				assert.Len(t, cached, 1)
			} else {
				assert.Equal(t, 3, r.topK)
				assert.Equal(t, docs("old", "new"), cached)
			}
		})
	}
}

func TestOrchestrator_DisableCacheCheck(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryContextCache()
	require.NoError(t, c.Append(ctx, "s", docs("old")))
	l := &answerLLM{answer: "yes"}
	o := &Orchestrator{Retriever: &fakeRetriever{items: docs("new")}, Cache: c, LLM: l, DisableCacheCheck: true}

	out, err := o.Retrieve(ctx, "s", "q")
	require.NoError(t, err)
	assert.Equal(t, docs("new"), out.Evidence)
	assert.Equal(t, 0, l.calls)
}

func TestOrchestrator_RetrievalFailure(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryContextCache()
	o := &Orchestrator{Retriever: &fakeRetriever{err: errors.New("index offline")}, Cache: c}

	out, err := o.Retrieve(ctx, "s", "q")
	require.Error(t, err)
	assert.Empty(t, out.Evidence)
	cached, _ := c.Load(ctx, "s")
	assert.Empty(t, cached)
}

func TestIsAffirmative(t *testing.T) {
	assert.True(t, isAffirmative("YES"))
	assert.True(t, isAffirmative("Answer: yes, fully."))
	assert.False(t, isAffirmative("no"))
	assert.False(t, isAffirmative("eyes"))
	assert.False(t, isAffirmative(""))
}
