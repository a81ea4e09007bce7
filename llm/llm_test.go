package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/config"
)

type scriptedProvider struct {
	calls    int32
	failures int32
	response string
	block    bool
}

func (p *scriptedProvider) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	n := atomic.AddInt32(&p.calls, 1)
	if p.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if n <= p.failures {
		return "", errors.New("upstream 503")
	}
	return p.response, nil
}

func (p *scriptedProvider) GetProviderType() string { return "scripted" }

func reliableConfig(retries int) config.LLMConfig {
	return config.LLMConfig{TimeoutMs: 50, Retries: retries, RetryBackoffMs: 1}
}

func TestReliable_RetriesThenSucceeds(t *testing.T) {
	p := &scriptedProvider{failures: 1, response: "ok"}
	r := NewReliable(p, reliableConfig(1)).Node("classify")

	out, err := r.GenerateCompletion(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&p.calls))
}

func TestReliable_ExhaustedReturnsCompletionError(t *testing.T) {
	p := &scriptedProvider{failures: 10}
	r := NewReliable(p, reliableConfig(1)).Node("grade")

	_, err := r.GenerateCompletion(context.Background(), "hi")
	var ce *CompletionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "grade", ce.Node)
	assert.Equal(t, "scripted", ce.Provider)
	assert.Equal(t, int32(2), atomic.LoadInt32(&p.calls))
}

func TestReliable_EmptyCompletionIsAnError(t *testing.T) {
	p := &scriptedProvider{response: "   "}
	r := NewReliable(p, reliableConfig(0))

	_, err := r.GenerateCompletion(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestReliable_TimeoutBoundsEachAttempt(t *testing.T) {
	p := &scriptedProvider{block: true}
	r := NewReliable(p, reliableConfig(0))

	start := time.Now()
	_, err := r.GenerateCompletion(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewLLMProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LLMConfig
		wantErr string
		typ     string
	}{
		{name: "openai", cfg: config.LLMConfig{Provider: "openai", APIKey: "k", Model: "m"}, typ: "openai"},
		{name: "default provider", cfg: config.LLMConfig{APIKey: "k", Model: "m"}, typ: "openai"},
		{name: "ollama needs no key", cfg: config.LLMConfig{Provider: "ollama", Model: "llama3"}, typ: "ollama"},
		{name: "missing key", cfg: config.LLMConfig{Provider: "openai", Model: "m"}, wantErr: "llm.api_key"},
		{name: "unknown", cfg: config.LLMConfig{Provider: "nope", APIKey: "k"}, wantErr: "llm.provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewLLMProvider(tt.cfg)
			if tt.wantErr != "" {
				var ce *config.ConfigurationError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, tt.wantErr, ce.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, p.GetProviderType())
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		path  string
		want  string
		isErr bool
	}{
		{name: "plain object", input: `{"score":"yes"}`, path: "score", want: "yes"},
		{name: "fenced", input: "```json\n{\"classification\": \"general\"}\n```", path: "classification", want: "general"},
		{name: "prose around", input: `Sure! Here it is: {"score": "no"} hope that helps`, path: "score", want: "no"},
		{name: "braces in strings", input: `x {"a": "}{", "b": "ok"} y`, path: "b", want: "ok"},
		{name: "bare array", input: `["a", "b"]`, path: "1", want: "b"},
		{name: "array before object", input: `result: [{"q":"one"}]`, path: "0.q", want: "one"},
		{name: "garbage", input: "I cannot answer", isErr: true},
		{name: "truncated", input: `{"score": "ye`, isErr: true},
		{name: "empty", input: "", isErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ExtractJSON(tt.input)
			if tt.isErr {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Get(tt.path).String())
		})
	}
}
