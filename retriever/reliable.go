package retriever

import (
	"context"
	"io"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/metrics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// Reliable adds a per-attempt timeout, bounded retries and metrics to a
// Retriever and reports failures as *RetrievalError.
type Reliable struct {
	Inner    Retriever
	Timeout  time.Duration
	Attempts uint
	Delay    time.Duration
}

func NewReliable(inner Retriever, timeout time.Duration, retries int) *Reliable {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Reliable{Inner: inner, Timeout: timeout, Attempts: uint(retries) + 1, Delay: 100 * time.Millisecond}
}

func (r *Reliable) Type() string { return r.Inner.Type() }

func (r *Reliable) Search(ctx context.Context, query string, topK int) ([]schema.EvidenceItem, error) {
	start := time.Now()
	var out []schema.EvidenceItem
	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, r.Timeout)
			defer cancel()
			items, err := r.Inner.Search(callCtx, query, topK)
			if err != nil {
				return err
			}
			out = items
			return nil
		},
		retry.Attempts(r.Attempts),
		retry.Delay(r.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Debugf("retriever[%s]: attempt %d failed: %v", r.Inner.Type(), n+1, err)
		}),
	)
	metrics.ObserveRetriever(r.Inner.Type(), start, len(out))
	if err != nil {
		return nil, &RetrievalError{Retriever: r.Inner.Type(), Query: query, Err: err}
	}
	return out, nil
}

func (r *Reliable) Close() error {
	if c, ok := r.Inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
