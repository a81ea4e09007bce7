package ragchat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/go-multierror"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/cache"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/httpx"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/crag"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/generation"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/llm"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/memory"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/orchestrator"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/post"
	pre_retrieve "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/pre-retrieve"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/retrieval"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/retriever"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/router"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

const MaxListSessions = 1000

// RAGClient owns the pipeline and its backing stores.
type RAGClient struct {
	config    *config.Config
	llm       llm.Provider
	retriever retriever.Retriever
	redis     redis.UniversalClient
	sessions  memory.SessionStore
	history   *memory.HistoryManager
	cache     cache.ContextCache
	orch      *orchestrator.Orchestrator
}

// Option overrides a collaborator NewRAGClient would otherwise build from config.
type Option func(*RAGClient)

// WithLLMProvider replaces the configured completion provider. The provider
// is still wrapped with the configured timeout and retries.
func WithLLMProvider(p llm.Provider) Option {
	return func(c *RAGClient) { c.llm = p }
}

// WithRetriever replaces the configured retrieval backend. The backend is
// still wrapped with the configured timeout and retries.
func WithRetriever(r retriever.Retriever) Option {
	return func(c *RAGClient) { c.retriever = r }
}

// WithRedisClient supplies the client used by redis-backed stores.
func WithRedisClient(rdb redis.UniversalClient) Option {
	return func(c *RAGClient) { c.redis = rdb }
}

// NewRAGClient creates a new RAG client instance
func NewRAGClient(ctx context.Context, cfg *config.Config, opts ...Option) (*RAGClient, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	ragclient := &RAGClient{config: cfg}
	for _, opt := range opts {
		opt(ragclient)
	}
	hc := httpx.NewFromConfig(&cfg.HTTP)

	if ragclient.llm == nil {
		provider, err := llm.NewLLMProvider(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider failed, err: %w", err)
		}
		ragclient.llm = provider
	}
	reliable := llm.NewReliable(ragclient.llm, cfg.LLM)

	if ragclient.retriever == nil {
		r, err := retriever.New(ctx, cfg, hc)
		if err != nil {
			return nil, fmt.Errorf("create retriever failed, err: %w", err)
		}
		ragclient.retriever = r
	} else if _, ok := ragclient.retriever.(*retriever.Reliable); !ok {
		ragclient.retriever = retriever.NewReliable(ragclient.retriever,
			time.Duration(cfg.Retrieval.TimeoutMs)*time.Millisecond, cfg.Retrieval.Retries)
	}

	useRedis := strings.EqualFold(cfg.Session.Store, "redis")
	if ragclient.redis == nil && useRedis {
		ragclient.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Session.Redis.Address},
			Username: cfg.Session.Redis.Username,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
	}

	sessions, err := memory.NewSessionStore(cfg.Session, ragclient.redis)
	if err != nil {
		_ = ragclient.Close()
		return nil, fmt.Errorf("create session store failed, err: %w", err)
	}
	ragclient.sessions = sessions
	ragclient.history = memory.NewHistoryManager(sessions, reliable.Node("summarize"), cfg.Pipeline.MaxRecent)
	ragclient.history.MaxSessions = cfg.Session.MaxSessions

	if useRedis {
		ttl := time.Duration(cfg.Session.TTLSeconds) * time.Second
		ragclient.cache = cache.NewRedisContextCache(ragclient.redis, cfg.Session.Redis.Prefix, ttl)
	} else {
		ragclient.cache = cache.NewMemoryContextCache()
	}
	// pruned sessions lose their evidence together with their history
	ragclient.history.OnPrune = func(ctx context.Context, ids []string) {
		for _, id := range ids {
			if err := ragclient.cache.Clear(ctx, id); err != nil {
				logger.Warnf("rag client: clear context for pruned session %s: %v", id, err)
			}
		}
	}

	var budget *post.Budget
	if cfg.Pipeline.ContextTokenBudget > 0 {
		budget = post.NewBudget(cfg.Pipeline.ContextTokenBudget)
	}

	var evaluator crag.Evaluator = &crag.LLMEvaluator{Provider: reliable.Node("grade")}
	if cfg.Pipeline.GraderEndpoint != "" {
		evaluator = crag.NewHTTPEvaluator(cfg.Pipeline.GraderEndpoint, hc)
	}

	web := crag.NewWebSearcher(cfg.WebSearch, hc)
	if !web.Enabled() {
		logger.Infof("rag: web search disabled (provider %q)", cfg.WebSearch.Provider)
	}

	ragclient.orch = &orchestrator.Orchestrator{
		Decomposer: pre_retrieve.NewDecomposer(reliable.Node("decompose"), cfg.Pipeline.MaxSubQueries),
		Classifier: pre_retrieve.NewClassifier(reliable.Node("classify")),
		Retrieval: &retrieval.Orchestrator{
			Retriever:         ragclient.retriever,
			Cache:             ragclient.cache,
			LLM:               reliable.Node("sufficiency"),
			TopK:              cfg.Retrieval.TopK,
			Budget:            budget,
			DisableCacheCheck: cfg.Pipeline.DisableCacheCheck,
		},
		Grader:      &crag.Grader{Evaluator: evaluator},
		Rewriter:    &crag.QueryRewriter{Provider: reliable.Node("rewrite")},
		WebSearch:   web,
		Router:      router.NewAdaptiveRouter(cfg.Pipeline.RelevanceThreshold),
		Generator:   &generation.Generator{LLM: reliable.Node("generate"), Budget: budget},
		Synthesizer: &generation.Synthesizer{LLM: reliable.Node("synthesize")},
		History:     ragclient.history,
		Cache:       ragclient.cache,
		Parallelism: cfg.Pipeline.Parallelism,
	}
	logger.Infof("rag: client ready (retriever=%s, session store=%s, threshold=%d)",
		ragclient.retriever.Type(), cfg.Session.Store, cfg.Pipeline.RelevanceThreshold)
	return ragclient, nil
}

// Answer runs one turn of the pipeline.
func (r *RAGClient) Answer(ctx context.Context, question, sessionID string) (*orchestrator.Result, error) {
	return r.orch.Answer(ctx, question, sessionID)
}

// History returns the stored conversation for sessionID.
func (r *RAGClient) History(ctx context.Context, sessionID string) (schema.ChatHistoryRecord, error) {
	if sessionID == "" {
		return schema.ChatHistoryRecord{}, fmt.Errorf("session id is required")
	}
	return r.history.Get(ctx, sessionID)
}

// ListSessions pages through sessions, most recent first.
func (r *RAGClient) ListSessions(ctx context.Context, offset, limit int) ([]memory.SessionInfo, error) {
	if limit <= 0 || limit > MaxListSessions {
		limit = MaxListSessions
	}
	return r.history.List(ctx, offset, limit)
}

// ClearSession drops the session's context cache and history.
func (r *RAGClient) ClearSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	var result *multierror.Error
	if err := r.cache.Clear(ctx, sessionID); err != nil {
		result = multierror.Append(result, fmt.Errorf("clear context cache: %w", err))
	}
	if err := r.history.Delete(ctx, sessionID); err != nil {
		result = multierror.Append(result, fmt.Errorf("delete history: %w", err))
	}
	return result.ErrorOrNil()
}

// Config returns the configuration the client was built from.
func (r *RAGClient) Config() *config.Config { return r.config }

// Close releases the retriever, session store and redis connections.
func (r *RAGClient) Close() error {
	var result *multierror.Error
	if c, ok := r.retriever.(io.Closer); ok {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if r.sessions != nil {
		if err := r.sessions.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
