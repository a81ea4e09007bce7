package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// vectorSearcher is the part of client.Client used for retrieval.
type vectorSearcher interface {
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int,
		sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Close() error
}

// MilvusRetriever embeds the query and runs an ANN search over a Milvus collection.
type MilvusRetriever struct {
	Client        vectorSearcher
	Embed         Embedder
	Collection    string
	ContentField  string
	VectorField   string
	MetadataField string
	Metric        entity.MetricType
	SearchEf      int
	MaxTopK       int
}

// NewMilvusRetriever connects to the collection described by cfg.
func NewMilvusRetriever(ctx context.Context, cfg config.VectorDBConfig, emb Embedder) (*MilvusRetriever, error) {
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}
	c, err := client.NewClient(ctx, client.Config{
		Address:  addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus %s: %w", addr, err)
	}
	logger.Infof("milvus: connected to %s, collection %s", addr, cfg.Collection)
	return &MilvusRetriever{
		Client:        c,
		Embed:         emb,
		Collection:    cfg.Collection,
		ContentField:  defaultString(cfg.ContentField, "content"),
		VectorField:   defaultString(cfg.VectorField, "vector"),
		MetadataField: cfg.MetadataField,
		Metric:        parseMetric(cfg.MetricType),
		SearchEf:      cfg.SearchEf,
	}, nil
}

func (r *MilvusRetriever) Type() string { return "milvus" }

func (r *MilvusRetriever) Search(ctx context.Context, query string, topK int) ([]schema.EvidenceItem, error) {
	if r.Client == nil || r.Embed == nil {
		return nil, fmt.Errorf("milvus retriever not initialised")
	}
	vec, err := r.Embed.GetEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}
	ef := r.SearchEf
	if ef <= 0 {
		ef = 64
	}
	topK = clampTopK(topK, r.MaxTopK)
	if ef < topK {
		ef = topK
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		return nil, err
	}
	outputFields := []string{r.ContentField}
	if r.MetadataField != "" {
		outputFields = append(outputFields, r.MetadataField)
	}
	results, err := r.Client.Search(ctx, r.Collection, nil, "", outputFields,
		[]entity.Vector{entity.FloatVector(vec)}, r.VectorField, r.Metric, topK, sp)
	if err != nil {
		return nil, err
	}
	out := make([]schema.EvidenceItem, 0, topK)
	for _, sr := range results {
		if sr.Err != nil {
			return nil, sr.Err
		}
		content := sr.Fields.GetColumn(r.ContentField)
		var metaCol entity.Column
		if r.MetadataField != "" {
			metaCol = sr.Fields.GetColumn(r.MetadataField)
		}
		for i := 0; i < sr.ResultCount; i++ {
			item := schema.EvidenceItem{Metadata: map[string]any{}}
			if sr.IDs != nil {
				if id, err := sr.IDs.Get(i); err == nil {
					item.ID = fmt.Sprint(id)
				}
			}
			if content != nil {
				if v, err := content.Get(i); err == nil {
					item.Content, _ = v.(string)
				}
			}
			if metaCol != nil {
				if v, err := metaCol.Get(i); err == nil {
					mergeMetadata(item.Metadata, v)
				}
			}
			if i < len(sr.Scores) {
				item.Score = float64(sr.Scores[i])
			}
			if _, ok := item.Metadata["source"]; !ok {
				item.Metadata["source"] = r.Type()
			}
			if item.Content != "" {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (r *MilvusRetriever) Close() error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

func mergeMetadata(dst map[string]any, v interface{}) {
	var raw []byte
	switch t := v.(type) {
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		return
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return
	}
	for k, val := range m {
		dst[k] = val
	}
}

func parseMetric(s string) entity.MetricType {
	switch strings.ToUpper(s) {
	case "L2":
		return entity.L2
	case "COSINE":
		return entity.COSINE
	default:
		return entity.IP
	}
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
