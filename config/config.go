package config

// Config represents the main configuration structure for the ragchat service
type Config struct {
	Log       LogConfig        `json:"log" yaml:"log"`
	LLM       LLMConfig        `json:"llm" yaml:"llm"`
	Embedding EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	VectorDB  VectorDBConfig   `json:"vectordb" yaml:"vectordb"`
	Retrieval RetrievalConfig  `json:"retrieval" yaml:"retrieval"`
	WebSearch WebSearchConfig  `json:"web_search" yaml:"web_search"`
	Pipeline  PipelineConfig   `json:"pipeline" yaml:"pipeline"`
	Session   SessionConfig    `json:"session" yaml:"session"`
	HTTP      HTTPClientConfig `json:"http" yaml:"http"`
	Server    ServerConfig     `json:"server" yaml:"server"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // json, console
}

// LLMConfig defines configuration for Large Language Models
type LLMConfig struct {
	Provider       string  `json:"provider" yaml:"provider"` // Available options: openai, dashscope, qwen, deepseek, ollama (all OpenAI-compatible)
	APIKey         string  `json:"api_key,omitempty" yaml:"api_key"`
	BaseURL        string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model          string  `json:"model" yaml:"model"`
	Temperature    float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens      int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	TimeoutMs      int     `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Retries        int     `json:"retries,omitempty" yaml:"retries,omitempty"` // extra attempts after the first failed call
	RetryBackoffMs int     `json:"retry_backoff_ms,omitempty" yaml:"retry_backoff_ms,omitempty"`
}

// EmbeddingConfig defines configuration for embedding models
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // Available options: openai, dashscope
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// VectorDBConfig defines configuration for the milvus collection backing vector retrieval
type VectorDBConfig struct {
	Provider      string `json:"provider" yaml:"provider"` // Available options: milvus
	Host          string `json:"host,omitempty" yaml:"host,omitempty"`
	Port          int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database      string `json:"database,omitempty" yaml:"database,omitempty"`
	Collection    string `json:"collection,omitempty" yaml:"collection,omitempty"`
	Username      string `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string `json:"password,omitempty" yaml:"password,omitempty"`
	ContentField  string `json:"content_field,omitempty" yaml:"content_field,omitempty"`
	VectorField   string `json:"vector_field,omitempty" yaml:"vector_field,omitempty"`
	MetadataField string `json:"metadata_field,omitempty" yaml:"metadata_field,omitempty"`
	MetricType    string `json:"metric_type,omitempty" yaml:"metric_type,omitempty"` // IP, L2, COSINE
	SearchEf      int    `json:"search_ef,omitempty" yaml:"search_ef,omitempty"`
}

// RetrievalConfig selects the ranked-retrieval backend.
// Provider: "bm25" (in-process lexical index over CorpusPath), "elasticsearch"
// (multi_match against Endpoint/Index), "http", "milvus" or "ensemble" (milvus
// plus a lexical retriever fused with weighted RRF).
type RetrievalConfig struct {
	Provider      string  `json:"provider" yaml:"provider"`
	TopK          int     `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	Endpoint      string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Index         string  `json:"index,omitempty" yaml:"index,omitempty"`
	CorpusPath    string  `json:"corpus_path,omitempty" yaml:"corpus_path,omitempty"`
	VectorWeight  float64 `json:"vector_weight,omitempty" yaml:"vector_weight,omitempty"`
	LexicalWeight float64 `json:"lexical_weight,omitempty" yaml:"lexical_weight,omitempty"`
	RRFK          int     `json:"rrf_k,omitempty" yaml:"rrf_k,omitempty"`
	TimeoutMs     int     `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Retries       int     `json:"retries,omitempty" yaml:"retries,omitempty"`
}

// WebSearchConfig configures the web fallback. An empty APIKey for a provider
// that needs one disables web search without error.
type WebSearchConfig struct {
	Provider   string `json:"provider,omitempty" yaml:"provider,omitempty"` // tavily, bing, duckduckgo
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Endpoint   string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	MaxResults int    `json:"max_results,omitempty" yaml:"max_results,omitempty"`
}

// PipelineConfig tunes the per-turn state machine.
type PipelineConfig struct {
	RelevanceThreshold int  `json:"relevance_threshold,omitempty" yaml:"relevance_threshold,omitempty"`
	MaxRecent          int  `json:"max_recent,omitempty" yaml:"max_recent,omitempty"`
	MaxSubQueries      int  `json:"max_sub_queries,omitempty" yaml:"max_sub_queries,omitempty"`
	ContextTokenBudget int  `json:"context_token_budget,omitempty" yaml:"context_token_budget,omitempty"`
	DisableCacheCheck  bool `json:"disable_cache_check,omitempty" yaml:"disable_cache_check,omitempty"`

	// Parallelism bounds concurrent sub-query processing; 1 runs them sequentially.
	Parallelism int `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`

	// GraderEndpoint, when set, grades evidence with an external relevance
	// service instead of the completion service.
	GraderEndpoint string `json:"grader_endpoint,omitempty" yaml:"grader_endpoint,omitempty"`
}

// SessionConfig controls session and context cache persistence.
// Store: "inmemory" (default), "redis" or "sqlite".
// Sessions live until cleared unless a bound is set: MaxSessions prunes the
// least recently used sessions, TTLSeconds expires idle redis sessions. Either
// bound removes a session's history and context cache together.
type SessionConfig struct {
	Store       string      `json:"store,omitempty" yaml:"store,omitempty"`
	TTLSeconds  int         `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
	MaxSessions int         `json:"max_sessions,omitempty" yaml:"max_sessions,omitempty"`
	Redis       RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
	SQLitePath  string      `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
}

// RedisConfig addresses a redis instance.
type RedisConfig struct {
	Address  string `json:"address,omitempty" yaml:"address,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// HTTPClientConfig defines common options for outbound HTTP calls.
type HTTPClientConfig struct {
	TimeoutMs              int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Retry                  int      `json:"retry,omitempty" yaml:"retry,omitempty"`
	BackoffMinMs           int      `json:"backoff_min_ms,omitempty" yaml:"backoff_min_ms,omitempty"`
	BackoffMaxMs           int      `json:"backoff_max_ms,omitempty" yaml:"backoff_max_ms,omitempty"`
	HostAllowlist          []string `json:"host_allowlist,omitempty" yaml:"host_allowlist,omitempty"`
	MaxConsecutiveFailures int      `json:"max_consecutive_failures,omitempty" yaml:"max_consecutive_failures,omitempty"`
	CircuitOpenSeconds     int      `json:"circuit_open_seconds,omitempty" yaml:"circuit_open_seconds,omitempty"`
}

// ServerConfig holds listen addresses for the serve and api commands.
type ServerConfig struct {
	MCPTransport string `json:"mcp_transport,omitempty" yaml:"mcp_transport,omitempty"` // stdio, http
	MCPAddr      string `json:"mcp_addr,omitempty" yaml:"mcp_addr,omitempty"`
	APIAddr      string `json:"api_addr,omitempty" yaml:"api_addr,omitempty"`
	MetricsAddr  string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
}
