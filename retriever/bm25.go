package retriever

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// BM25Index is an in-memory bleve index over a fixed document set. Hits are
// mapped back to the original items by ID. Safe for concurrent searches.
type BM25Index struct {
	index bleve.Index
	docs  map[string]schema.EvidenceItem
}

type indexedDoc struct {
	Content string `json:"content"`
}

func NewBM25Index(docs []schema.EvidenceItem) (*BM25Index, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	idx := &BM25Index{index: index, docs: make(map[string]schema.EvidenceItem, len(docs))}
	batch := index.NewBatch()
	for i, d := range docs {
		d = d.Clone()
		if d.ID == "" {
			d.ID = fmt.Sprintf("doc-%d", i)
		}
		idx.docs[d.ID] = d
		if err := batch.Index(d.ID, indexedDoc{Content: d.Content}); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("index %s: %w", d.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, err
	}
	return idx, nil
}

// Len returns the number of indexed documents.
func (idx *BM25Index) Len() int { return len(idx.docs) }

func (idx *BM25Index) Close() error { return idx.index.Close() }

// BM25Retriever serves lexical search from an in-process index.
type BM25Retriever struct {
	Index   *BM25Index
	MaxTopK int
}

func (r *BM25Retriever) Type() string { return "bm25" }

func (r *BM25Retriever) Search(ctx context.Context, query string, topK int) ([]schema.EvidenceItem, error) {
	if r.Index == nil {
		return nil, fmt.Errorf("bm25 index not loaded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" || r.Index.Len() == 0 {
		return []schema.EvidenceItem{}, nil
	}
	topK = clampTopK(topK, r.MaxTopK)
	q := bleve.NewMatchQuery(query)
	q.SetField("content")
	req := bleve.NewSearchRequestOptions(q, topK, 0, false)
	res, err := r.Index.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]schema.EvidenceItem, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc, ok := r.Index.docs[hit.ID]
		if !ok {
			continue
		}
		item := doc.Clone()
		item.Score = hit.Score
		if item.Metadata == nil {
			item.Metadata = map[string]any{}
		}
		if _, ok := item.Metadata["source"]; !ok {
			item.Metadata["source"] = r.Type()
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *BM25Retriever) Close() error {
	if r.Index == nil {
		return nil
	}
	return r.Index.Close()
}

type corpusLine struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// LoadCorpus reads a JSON-lines corpus: one {"id","content","metadata"}
// object per line ("text" is accepted for content). Blank lines are skipped.
func LoadCorpus(path string) ([]schema.EvidenceItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []schema.EvidenceItem
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var cl corpusLine
		if err := json.Unmarshal([]byte(raw), &cl); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		content := cl.Content
		if content == "" {
			content = cl.Text
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		docs = append(docs, schema.EvidenceItem{ID: cl.ID, Content: content, Metadata: cl.Metadata})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
