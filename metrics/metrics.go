package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	completionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ragchat_completion_latency_ms",
		Help:    "Latency of completion calls in milliseconds, by pipeline node",
		Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
	}, []string{"node"})

	completionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ragchat_completion_failures_total",
		Help: "Completion calls that failed after retries, by pipeline node",
	}, []string{"node"})

	retrieverLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ragchat_retriever_latency_ms",
		Help:    "Latency of retriever calls in milliseconds",
		Buckets: []float64{10, 25, 50, 75, 100, 150, 200, 300, 500, 800, 1200},
	}, []string{"type"})

	retrieverResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ragchat_retriever_results",
		Help:    "Number of results returned by a retriever",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"type"})

	fusionLists = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ragchat_fusion_input_lists",
		Help:    "Number of lists fused per query",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 12},
	})

	contextCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ragchat_context_cache_total",
		Help: "Context cache outcomes (empty/sufficient/insufficient)",
	}, []string{"result"})

	graderVerdict = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ragchat_grader_verdict_total",
		Help: "Relevance grader verdicts (relevant/irrelevant/unparsed/error)",
	}, []string{"verdict"})

	routerRoute = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ragchat_router_route_total",
		Help: "Adaptive router transitions (reformulate/web_search/generate)",
	}, []string{"route"})

	classification = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ragchat_classification_total",
		Help: "Sub-query classifications",
	}, []string{"label"})

	webSearch = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ragchat_web_search_total",
		Help: "Web search fallback outcomes (ok/empty/error/disabled)",
	}, []string{"result"})

	summarizations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ragchat_history_summarizations_total",
		Help: "History compaction summarizations (ok/failed)",
	}, []string{"result"})

	turnLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ragchat_turn_latency_ms",
		Help:    "End-to-end latency of one answered turn",
		Buckets: []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
	})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

// ObserveCompletion records latency of one completion call and counts failures.
func ObserveCompletion(node string, start time.Time, err error) {
	ensureRegistered()
	completionLatency.WithLabelValues(node).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		completionFailures.WithLabelValues(node).Inc()
	}
}

// ObserveRetriever records latency and result size for a retriever type.
func ObserveRetriever(typ string, start time.Time, results int) {
	ensureRegistered()
	retrieverLatency.WithLabelValues(typ).Observe(float64(time.Since(start).Milliseconds()))
	retrieverResults.WithLabelValues(typ).Observe(float64(results))
}

// ObserveFusion records how many lists were fused.
func ObserveFusion(n int) {
	ensureRegistered()
	fusionLists.Observe(float64(n))
}

// ObserveTurn records the end-to-end latency of one turn.
func ObserveTurn(start time.Time) {
	ensureRegistered()
	turnLatency.Observe(float64(time.Since(start).Milliseconds()))
}

func IncContextCache(result string) {
	ensureRegistered()
	contextCache.WithLabelValues(result).Inc()
}

func IncGraderVerdict(v string) {
	ensureRegistered()
	graderVerdict.WithLabelValues(v).Inc()
}

func IncRoute(route string) {
	ensureRegistered()
	routerRoute.WithLabelValues(route).Inc()
}

func IncClassification(label string) {
	ensureRegistered()
	classification.WithLabelValues(label).Inc()
}

func IncWebSearch(result string) {
	ensureRegistered()
	webSearch.WithLabelValues(result).Inc()
}

func IncSummarization(result string) {
	ensureRegistered()
	summarizations.WithLabelValues(result).Inc()
}

// Collectors exposes all collectors for external registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		completionLatency, completionFailures, retrieverLatency, retrieverResults, fusionLists,
		contextCache, graderVerdict, routerRoute, classification, webSearch, summarizations, turnLatency,
	}
}

// Register installs all collectors on the default registry. Safe to call repeatedly.
func Register() { ensureRegistered() }
