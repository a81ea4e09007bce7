package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ConfigurationError reports a missing or invalid setting, e.g. an absent
// credential or an unknown provider.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error [%s]: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate validates the complete configuration. All problems are reported
// together inside one ConfigurationError.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(field, format string, args ...interface{}) {
		result = multierror.Append(result, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.LLM.Model == "" {
		add("llm.model", "llm model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature", "temperature must be in [0, 2], got %.2f", c.LLM.Temperature)
	}
	if c.LLM.Retries < 0 {
		add("llm.retries", "retries must be non-negative, got %d", c.LLM.Retries)
	}

	switch strings.ToLower(c.Retrieval.Provider) {
	case "bm25":
	case "http":
		if c.Retrieval.Endpoint == "" {
			add("retrieval.endpoint", "endpoint is required for http retrieval")
		}
	case "elasticsearch":
		if c.Retrieval.Endpoint == "" || c.Retrieval.Index == "" {
			add("retrieval.index", "endpoint and index are required for elasticsearch retrieval")
		}
	case "milvus", "ensemble":
		if c.VectorDB.Host == "" {
			add("vectordb.host", "vectordb host is required for %s retrieval", c.Retrieval.Provider)
		}
		if c.VectorDB.Collection == "" {
			add("vectordb.collection", "collection name is required for %s retrieval", c.Retrieval.Provider)
		}
		if c.Embedding.Model == "" {
			add("embedding.model", "embedding model is required for %s retrieval", c.Retrieval.Provider)
		}
		if c.Retrieval.VectorWeight < 0 || c.Retrieval.LexicalWeight < 0 {
			add("retrieval.weights", "fusion weights must be non-negative")
		}
	default:
		add("retrieval.provider", "unknown retrieval provider %q", c.Retrieval.Provider)
	}
	if c.Retrieval.TopK > 100 {
		add("retrieval.top_k", "top_k %d is too large (max recommended: 100)", c.Retrieval.TopK)
	}

	switch strings.ToLower(c.WebSearch.Provider) {
	case "", "tavily", "bing", "duckduckgo":
	default:
		add("web_search.provider", "unknown web search provider %q", c.WebSearch.Provider)
	}

	if c.Pipeline.RelevanceThreshold < 0 {
		add("pipeline.relevance_threshold", "must be non-negative, got %d", c.Pipeline.RelevanceThreshold)
	}
	if c.Pipeline.MaxRecent < 0 {
		add("pipeline.max_recent", "must be non-negative, got %d", c.Pipeline.MaxRecent)
	}

	switch strings.ToLower(c.Session.Store) {
	case "", "inmemory", "memory":
	case "redis":
		if c.Session.Redis.Address == "" {
			add("session.redis.address", "redis address is required for redis store")
		}
	case "sqlite":
		if c.Session.SQLitePath == "" {
			add("session.sqlite_path", "sqlite path is required for sqlite store")
		}
	default:
		add("session.store", "unknown session store %q", c.Session.Store)
	}

	switch c.Server.MCPTransport {
	case "", "stdio", "http":
	default:
		add("server.mcp_transport", "unknown mcp transport %q", c.Server.MCPTransport)
	}

	if err := result.ErrorOrNil(); err != nil {
		return &ConfigurationError{Err: err}
	}
	return nil
}
