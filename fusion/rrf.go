package fusion

import (
	"sort"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// RRFScore computes weighted Reciprocal Rank Fusion across ranked lists:
// score(d) = sum_i w_i / (k + rank_i(d)). Items are matched by Key(), and
// the first occurrence supplies content and metadata. Ties keep first-seen order.
func RRFScore(inputs []RetrieverResult, k int) []schema.EvidenceItem {
	if k <= 0 {
		k = 60
	}
	type agg struct {
		item  schema.EvidenceItem
		score float64
		order int
		from  []string
	}
	scores := map[string]*agg{}
	order := 0

	for _, in := range inputs {
		w := in.Weight
		if w == 0 {
			w = 1
		}
		for idx, item := range in.Results {
			key := item.Key()
			a, ok := scores[key]
			if !ok {
				a = &agg{item: item.Clone(), order: order}
				order++
				scores[key] = a
			}
			a.score += w / (float64(k) + float64(idx+1))
			a.from = append(a.from, in.Retriever)
		}
	}

	ranked := make([]*agg, 0, len(scores))
	for _, v := range scores {
		ranked = append(ranked, v)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})

	out := make([]schema.EvidenceItem, 0, len(ranked))
	for _, a := range ranked {
		item := a.item
		item.Score = a.score
		if item.Metadata == nil {
			item.Metadata = map[string]any{}
		}
		item.Metadata["retrievers"] = a.from
		out = append(out, item)
	}
	return out
}
