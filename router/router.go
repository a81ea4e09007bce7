// Package router decides what happens next to a graded sub-query.
package router

import (
	"fmt"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/metrics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// DefaultThreshold is the minimum number of relevant items needed to generate directly.
const DefaultThreshold = 3

// Route is the next state of a sub-query.
type Route string

const (
	RouteReformulate Route = "reformulate"
	RouteWebSearch   Route = "web_search"
	RouteGenerate    Route = "generate"
)

// RoutingDecision represents the routing decision for a sub-query
type RoutingDecision struct {
	Route  Route  `json:"route"`
	Reason string `json:"reason"` // Human-readable reason
}

// AdaptiveRouter escalates in-scope sub-queries with too little relevant
// evidence: first a reformulation, then a web search, then generation.
// Each escalation fires at most once per sub-query.
type AdaptiveRouter struct {
	Threshold int
}

// NewAdaptiveRouter creates a router; threshold <= 0 uses DefaultThreshold.
func NewAdaptiveRouter(threshold int) *AdaptiveRouter {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &AdaptiveRouter{Threshold: threshold}
}

// Route inspects the record's classification, relevant count and escalation
// history. It never mutates the record.
func (r *AdaptiveRouter) Route(rec *schema.SubQueryRecord) RoutingDecision {
	d := r.decide(rec)
	metrics.IncRoute(string(d.Route))
	logger.Debugf("router: %q -> %s (%s)", rec.Text, d.Route, d.Reason)
	return d
}

func (r *AdaptiveRouter) decide(rec *schema.SubQueryRecord) RoutingDecision {
	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	switch {
	case rec.Classification != schema.InScope:
		return RoutingDecision{Route: RouteGenerate, Reason: fmt.Sprintf("classified %s", rec.Classification)}
	case rec.RelevantCount >= threshold:
		return RoutingDecision{Route: RouteGenerate, Reason: fmt.Sprintf("%d relevant >= %d", rec.RelevantCount, threshold)}
	case !rec.NeedsReformulation:
		return RoutingDecision{Route: RouteReformulate, Reason: fmt.Sprintf("%d relevant < %d", rec.RelevantCount, threshold)}
	case !rec.WebSearched:
		return RoutingDecision{Route: RouteWebSearch, Reason: fmt.Sprintf("%d relevant < %d after reformulation", rec.RelevantCount, threshold)}
	default:
		return RoutingDecision{Route: RouteGenerate, Reason: "escalations exhausted"}
	}
}
