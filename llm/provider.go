// Package llm wraps the completion service used by every pipeline node.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/config"
)

const (
	ProviderOpenAI    = "openai"
	ProviderDashScope = "dashscope"
	ProviderQwen      = "qwen"
	ProviderDeepSeek  = "deepseek"
	ProviderOllama    = "ollama"
)

// ErrEmptyCompletion is returned when the service answers with blank text.
var ErrEmptyCompletion = errors.New("empty completion")

// Provider is a text-in/text-out completion service.
type Provider interface {
	GenerateCompletion(ctx context.Context, prompt string) (string, error)
	GetProviderType() string
}

// Options are the sampling parameters sent with every completion.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// CompletionError reports a failed, timed out or malformed completion.
type CompletionError struct {
	Node     string
	Provider string
	Err      error
}

func (e *CompletionError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("completion failed (%s): %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("completion failed at %s (%s): %v", e.Node, e.Provider, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

var defaultBaseURLs = map[string]string{
	ProviderDashScope: "https://dashscope.aliyuncs.com/compatible-mode/v1",
	ProviderQwen:      "https://dashscope.aliyuncs.com/compatible-mode/v1",
	ProviderDeepSeek:  "https://api.deepseek.com/v1",
	ProviderOllama:    "http://localhost:11434/v1",
}

// NewLLMProvider builds the configured provider. All supported vendors speak
// the OpenAI chat completions protocol and differ only in base URL.
func NewLLMProvider(cfg config.LLMConfig) (Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}
	baseURL := cfg.BaseURL
	switch provider {
	case ProviderOpenAI:
	case ProviderDashScope, ProviderQwen, ProviderDeepSeek, ProviderOllama:
		if baseURL == "" {
			baseURL = defaultBaseURLs[provider]
		}
	default:
		return nil, &config.ConfigurationError{Field: "llm.provider", Err: fmt.Errorf("unsupported provider %q", cfg.Provider)}
	}
	if cfg.APIKey == "" && provider != ProviderOllama {
		return nil, &config.ConfigurationError{Field: "llm.api_key", Err: errors.New("missing credential")}
	}
	return NewOpenAIProvider(provider, cfg.APIKey, baseURL, cfg.Model, Options{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}), nil
}
