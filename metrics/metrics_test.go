package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(routerRoute.WithLabelValues("reformulate"))
	IncRoute("reformulate")
	IncRoute("reformulate")
	assert.Equal(t, before+2, testutil.ToFloat64(routerRoute.WithLabelValues("reformulate")))

	failBefore := testutil.ToFloat64(completionFailures.WithLabelValues("classify"))
	ObserveCompletion("classify", time.Now(), nil)
	ObserveCompletion("classify", time.Now(), errors.New("boom"))
	assert.Equal(t, failBefore+1, testutil.ToFloat64(completionFailures.WithLabelValues("classify")))
}

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestTurnMetricsConcurrentAdd(t *testing.T) {
	m := NewTurnMetrics("s1", "q")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AddSubQuery(SubQueryMetrics{Text: "sq", Classification: "in-scope"})
		}()
	}
	wg.Wait()
	m.Finish()
	assert.Len(t, m.SubQueries, 10)
	assert.GreaterOrEqual(t, m.TotalLatencyMs, int64(0))
}
