package retriever

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/fusion"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/metrics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// Member is one weighted retriever inside an Ensemble.
type Member struct {
	Retriever Retriever
	Weight    float64
}

// Ensemble queries every member concurrently and fuses the lists with
// weighted RRF. A failing member is skipped as long as one member answers.
type Ensemble struct {
	Members []Member
	RRFK    int
}

func (e *Ensemble) Type() string { return "ensemble" }

func (e *Ensemble) Search(ctx context.Context, query string, topK int) ([]schema.EvidenceItem, error) {
	if len(e.Members) == 0 {
		return nil, errors.New("ensemble has no members")
	}
	results := make([]fusion.RetrieverResult, len(e.Members))
	ok := make([]bool, len(e.Members))
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range e.Members {
		i, m := i, m
		g.Go(func() error {
			items, err := m.Retriever.Search(gctx, query, topK)
			if err != nil {
				logger.Warnf("ensemble: member %s failed: %v", m.Retriever.Type(), err)
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return nil
			}
			results[i] = fusion.RetrieverResult{Retriever: m.Retriever.Type(), Weight: m.Weight, Results: items}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	inputs := make([]fusion.RetrieverResult, 0, len(results))
	for i, r := range results {
		if ok[i] {
			inputs = append(inputs, r)
		}
	}
	if len(inputs) == 0 {
		return nil, errs.ErrorOrNil()
	}
	metrics.ObserveFusion(len(inputs))
	fused := fusion.RRFScore(inputs, e.RRFK)
	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

func (e *Ensemble) Close() error {
	var errs *multierror.Error
	for _, m := range e.Members {
		if c, ok := m.Retriever.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs.ErrorOrNil()
}
