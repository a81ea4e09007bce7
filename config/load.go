package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTopK               = 8
	DefaultRelevanceThreshold = 3
	DefaultMaxRecent          = 5
	DefaultMaxSubQueries      = 5
)

// Default returns a configuration that runs fully in-process: bm25 retrieval,
// in-memory stores, web search disabled.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Temperature:    0,
			MaxTokens:      1024,
			TimeoutMs:      30000,
			Retries:        1,
			RetryBackoffMs: 300,
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		VectorDB: VectorDBConfig{
			Provider:      "milvus",
			Host:          "localhost",
			Port:          19530,
			Collection:    "ragchat",
			ContentField:  "content",
			VectorField:   "vector",
			MetadataField: "metadata",
			MetricType:    "IP",
			SearchEf:      64,
		},
		Retrieval: RetrievalConfig{
			Provider:      "bm25",
			TopK:          DefaultTopK,
			VectorWeight:  0.5,
			LexicalWeight: 0.5,
			RRFK:          60,
			TimeoutMs:     5000,
			Retries:       1,
		},
		WebSearch: WebSearchConfig{Provider: "tavily", MaxResults: 5},
		Pipeline: PipelineConfig{
			RelevanceThreshold: DefaultRelevanceThreshold,
			MaxRecent:          DefaultMaxRecent,
			MaxSubQueries:      DefaultMaxSubQueries,
			Parallelism:        4,
			ContextTokenBudget: 6000,
		},
		Session: SessionConfig{
			Store:      "inmemory",
			Redis:      RedisConfig{Address: "localhost:6379", Prefix: "ragchat:"},
			SQLitePath: "ragchat.db",
		},
		HTTP: HTTPClientConfig{
			TimeoutMs:              8000,
			Retry:                  1,
			BackoffMinMs:           100,
			BackoffMaxMs:           800,
			MaxConsecutiveFailures: 5,
			CircuitOpenSeconds:     5,
		},
		Server: ServerConfig{
			MCPTransport: "stdio",
			MCPAddr:      ":8090",
			APIAddr:      ":8080",
			MetricsAddr:  ":9090",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigurationError{Field: "file", Err: fmt.Errorf("read %s: %w", path, err)}
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, &ConfigurationError{Field: "file", Err: fmt.Errorf("parse %s: %w", path, err)}
		}
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays credentials and addresses from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.LLM.APIKey, "OPENAI_API_KEY")
	set(&c.LLM.BaseURL, "RAGCHAT_LLM_BASE_URL")
	set(&c.LLM.Model, "RAGCHAT_LLM_MODEL")
	set(&c.Embedding.APIKey, "OPENAI_API_KEY")
	set(&c.Retrieval.Provider, "RAGCHAT_RETRIEVAL_PROVIDER")
	set(&c.Retrieval.Endpoint, "RAGCHAT_RETRIEVAL_ENDPOINT")
	set(&c.Retrieval.CorpusPath, "RAGCHAT_CORPUS_PATH")
	set(&c.Session.Store, "RAGCHAT_SESSION_STORE")
	set(&c.Session.Redis.Address, "RAGCHAT_REDIS_ADDR")
	set(&c.Session.Redis.Password, "RAGCHAT_REDIS_PASSWORD")
	set(&c.Log.Level, "RAGCHAT_LOG_LEVEL")
	switch c.WebSearch.Provider {
	case "tavily":
		set(&c.WebSearch.APIKey, "TAVILY_API_KEY")
	case "bing":
		set(&c.WebSearch.APIKey, "BING_API_KEY")
	}
	if v := getenv("RAGCHAT_RELEVANCE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.RelevanceThreshold = n
		}
	}
}

func (c *Config) fillDefaults() {
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = DefaultTopK
	}
	if c.Pipeline.RelevanceThreshold <= 0 {
		c.Pipeline.RelevanceThreshold = DefaultRelevanceThreshold
	}
	if c.Pipeline.MaxRecent <= 0 {
		c.Pipeline.MaxRecent = DefaultMaxRecent
	}
	if c.Pipeline.MaxSubQueries <= 0 {
		c.Pipeline.MaxSubQueries = DefaultMaxSubQueries
	}
	if c.Pipeline.Parallelism <= 0 {
		c.Pipeline.Parallelism = 1
	}
	if c.Session.Store == "" {
		c.Session.Store = "inmemory"
	}
	if c.Session.Redis.Prefix == "" {
		c.Session.Redis.Prefix = "ragchat:"
	}
}
