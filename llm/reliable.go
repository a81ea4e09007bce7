package llm

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/metrics"
)

// Reliable bounds every call with a timeout and a retry budget, records
// metrics under a node label, and reports failures as *CompletionError.
type Reliable struct {
	inner    Provider
	node     string
	timeout  time.Duration
	attempts uint
	delay    time.Duration
}

// NewReliable wraps p using the timeout and retry settings from cfg.
func NewReliable(p Provider, cfg config.LLMConfig) *Reliable {
	r := &Reliable{
		inner:    p,
		timeout:  time.Duration(cfg.TimeoutMs) * time.Millisecond,
		attempts: uint(cfg.Retries) + 1,
		delay:    time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
	}
	if r.timeout <= 0 {
		r.timeout = 30 * time.Second
	}
	return r
}

// Node returns a copy of r that labels metrics and errors with name.
func (r *Reliable) Node(name string) *Reliable {
	cp := *r
	cp.node = name
	return &cp
}

func (r *Reliable) GetProviderType() string {
	return r.inner.GetProviderType()
}

func (r *Reliable) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	var out string
	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			text, err := r.inner.GenerateCompletion(callCtx, prompt)
			if err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				return ErrEmptyCompletion
			}
			out = text
			return nil
		},
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Debugf("llm[%s]: attempt %d failed: %v", r.node, n+1, err)
		}),
	)
	metrics.ObserveCompletion(r.node, start, err)
	if err != nil {
		return "", &CompletionError{Node: r.node, Provider: r.inner.GetProviderType(), Err: err}
	}
	return out, nil
}
