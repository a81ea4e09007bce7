package metrics

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
)

// TurnMetrics records the full trace of one answered turn.
type TurnMetrics struct {
	SessionID string    `json:"session_id"`
	Question  string    `json:"question"`
	Timestamp time.Time `json:"timestamp"`

	DecomposeFallback bool              `json:"decompose_fallback"`
	SubQueries        []SubQueryMetrics `json:"sub_queries"`

	SynthesisFailed bool  `json:"synthesis_failed"`
	TotalLatencyMs  int64 `json:"total_latency_ms"`

	mu sync.Mutex
}

// SubQueryMetrics is the per-sub-query part of a turn trace.
type SubQueryMetrics struct {
	Text           string   `json:"text"`
	Classification string   `json:"classification"`
	CacheResults   []string `json:"cache_results,omitempty"`
	Routes         []string `json:"routes,omitempty"`
	Retrieved      int      `json:"retrieved"`
	RelevantCount  int      `json:"relevant_count"`
	Reformulated   bool     `json:"reformulated"`
	WebSearched    bool     `json:"web_searched"`
	AnswerFallback bool     `json:"answer_fallback"`
	LatencyMs      int64    `json:"latency_ms"`
}

// NewTurnMetrics starts a trace for one turn.
func NewTurnMetrics(sessionID, question string) *TurnMetrics {
	return &TurnMetrics{SessionID: sessionID, Question: question, Timestamp: time.Now()}
}

// AddSubQuery appends a sub-query trace; safe for concurrent use.
func (m *TurnMetrics) AddSubQuery(sq SubQueryMetrics) {
	m.mu.Lock()
	m.SubQueries = append(m.SubQueries, sq)
	m.mu.Unlock()
}

// Finish stamps total latency and logs the trace as one JSON line.
func (m *TurnMetrics) Finish() {
	m.mu.Lock()
	m.TotalLatencyMs = time.Since(m.Timestamp).Milliseconds()
	data, err := json.Marshal(m)
	m.mu.Unlock()
	ObserveTurn(m.Timestamp)
	if err == nil {
		logger.Infof("[RAGCHAT_TURN] %s", string(data))
	}
}
