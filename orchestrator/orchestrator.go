// Package orchestrator sequences one user turn through the answer pipeline.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/cache"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/crag"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/generation"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/memory"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/metrics"
	pre_retrieve "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/pre-retrieve"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/retrieval"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/router"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// maxRouteSteps bounds the router loop; the router itself terminates within three.
const maxRouteSteps = 4

// Orchestrator wires the answer pipeline stages.
type Orchestrator struct {
	Decomposer  *pre_retrieve.Decomposer
	Classifier  *pre_retrieve.Classifier
	Retrieval   *retrieval.Orchestrator
	Grader      *crag.Grader
	Rewriter    *crag.QueryRewriter
	WebSearch   *crag.WebSearcher
	Router      *router.AdaptiveRouter
	Generator   *generation.Generator
	Synthesizer *generation.Synthesizer
	History     *memory.HistoryManager
	Cache       cache.ContextCache

	// Parallelism bounds concurrently processed sub-queries; <= 1 is sequential.
	Parallelism int
	// NewSessionID generates ids for callers that did not supply one.
	NewSessionID func() string
}

// Result is the outcome of one answered turn.
type Result struct {
	SessionID  string                   `json:"session_id"`
	Answer     string                   `json:"answer"`
	SubQueries []*schema.SubQueryRecord `json:"sub_queries"`
}

// Answer runs one turn. Every failure degrades inside the node that hit it,
// so a turn always produces an answer and is committed to history. A blank
// question is classified out-of-scope and gets the refusal path.
func (o *Orchestrator) Answer(ctx context.Context, question, sessionID string) (*Result, error) {
	question = strings.TrimSpace(question)
	if sessionID == "" {
		sessionID = o.newSessionID()
	}

	tm := metrics.NewTurnMetrics(sessionID, question)
	defer tm.Finish()

	rc := &schema.RequestContext{SessionID: sessionID, Question: question}
	if o.History != nil {
		rec, err := o.History.Get(ctx, sessionID)
		if err != nil {
			logger.Warnf("orchestrator: load history for %s: %v", sessionID, err)
		}
		rc.History = rec.Text()
	}

	var fallback bool
	rc.SubQueries, fallback = o.Decomposer.Decompose(ctx, question, rc.History)
	tm.DecomposeFallback = fallback

	rc.Classified = make([]*schema.SubQueryRecord, len(rc.SubQueries))
	var g errgroup.Group
	g.SetLimit(o.parallelism())
	for i, text := range rc.SubQueries {
		rec := schema.NewSubQueryRecord(text)
		rc.Classified[i] = rec
		g.Go(func() error {
			o.process(ctx, rc, rec, tm)
			return nil
		})
	}
	_ = g.Wait()

	answer, failed := o.Synthesizer.Synthesize(ctx, question, rc.History, rc.Classified)
	tm.SynthesisFailed = failed
	rc.FinalAnswer = answer

	if o.History != nil {
		if err := o.History.Update(ctx, sessionID, question, answer); err != nil {
			logger.Errorf("orchestrator: update history for %s: %v", sessionID, err)
		}
	}
	if o.Cache != nil {
		if err := o.Cache.Touch(ctx, sessionID); err != nil {
			logger.Warnf("orchestrator: refresh context expiry for %s: %v", sessionID, err)
		}
	}
	return &Result{SessionID: sessionID, Answer: answer, SubQueries: rc.Classified}, nil
}

// process runs one sub-query's mini-pipeline to completion.
func (o *Orchestrator) process(ctx context.Context, rc *schema.RequestContext, rec *schema.SubQueryRecord, tm *metrics.TurnMetrics) {
	start := time.Now()
	rec.Classification = o.Classifier.Classify(ctx, rec.Text, rc.History)
	sm := metrics.SubQueryMetrics{Text: rec.Text, Classification: rec.Classification.String()}
	log := logger.WithContext(map[string]interface{}{"session_id": rc.SessionID, "sub_query": rec.Text})

	if rec.Classification == schema.InScope {
		o.retrieveAndGrade(ctx, rc.SessionID, rec, &sm)
		for step := 0; step < maxRouteSteps; step++ {
			d := o.Router.Route(rec)
			sm.Routes = append(sm.Routes, string(d.Route))
			if d.Route == router.RouteGenerate {
				break
			}
			switch d.Route {
			case router.RouteReformulate:
				text, _ := o.Rewriter.Rewrite(ctx, rec.Text)
				rec.ReformulatedText = text
				rec.NeedsReformulation = true
				sm.Reformulated = true
				log.Infof("reformulated to %q", text)
				o.retrieveAndGrade(ctx, rc.SessionID, rec, &sm)
			case router.RouteWebSearch:
				rec.WebSearched = true
				sm.WebSearched = true
				o.webFallback(ctx, rc.SessionID, rec)
			}
		}
		sm.RelevantCount = rec.RelevantCount
	}

	answer, fallback := o.Generator.Answer(ctx, rec, rc.History)
	rec.Answer = answer
	sm.AnswerFallback = fallback
	sm.LatencyMs = time.Since(start).Milliseconds()
	tm.AddSubQuery(sm)
	log.Debugf("%s answered in %dms (relevant=%d)", rec.Classification, sm.LatencyMs, rec.RelevantCount)
}

// retrieveAndGrade replaces the record's evidence with the graded outcome of
// a retrieval for its current search text.
func (o *Orchestrator) retrieveAndGrade(ctx context.Context, sessionID string, rec *schema.SubQueryRecord, sm *metrics.SubQueryMetrics) {
	out, err := o.Retrieval.Retrieve(ctx, sessionID, rec.SearchText())
	switch {
	case err != nil:
		sm.CacheResults = append(sm.CacheResults, "error")
	case out.FromCache:
		sm.CacheResults = append(sm.CacheResults, "cache")
	default:
		sm.CacheResults = append(sm.CacheResults, "fresh")
	}
	sm.Retrieved += len(out.Evidence)
	rec.Evidence, rec.RelevantCount = o.Grader.Grade(ctx, rec.Text, out.Evidence)
}

// webFallback folds web results into one relevant item on the record and the
// session cache. Disabled or failed search leaves the record unchanged.
func (o *Orchestrator) webFallback(ctx context.Context, sessionID string, rec *schema.SubQueryRecord) {
	item, ok := o.WebSearch.Fallback(ctx, rec.SearchText())
	if !ok {
		return
	}
	rec.Evidence = append(rec.Evidence, item)
	rec.RelevantCount++
	if o.Cache == nil {
		return
	}
	if err := o.Cache.Append(ctx, sessionID, []schema.EvidenceItem{item}); err != nil {
		logger.Warnf("orchestrator: cache web evidence for %s: %v", sessionID, err)
	}
}

func (o *Orchestrator) parallelism() int {
	if o.Parallelism <= 1 {
		return 1
	}
	return o.Parallelism
}

func (o *Orchestrator) newSessionID() string {
	if o.NewSessionID != nil {
		return o.NewSessionID()
	}
	return uuid.New().String()
}
