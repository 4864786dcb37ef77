package fetch_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	ingestdomain "github.com/basketlabs/shelfscout/internal/ingest/domain"
	"github.com/basketlabs/shelfscout/internal/ingest/fetch"
	"github.com/basketlabs/shelfscout/internal/observability/metrics"
	"github.com/basketlabs/shelfscout/internal/sources/catalogfake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type collector struct {
	mu         sync.Mutex
	candidates []ingestdomain.Candidate
	err        error
}

func (c *collector) emit(_ context.Context, cand ingestdomain.Candidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.candidates = append(c.candidates, cand)
	return nil
}

func fakeItems(n int) []catalogfake.Item {
	items := make([]catalogfake.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, catalogfake.Item{
			ID:    fmt.Sprintf("p-%d", i+1),
			Title: fmt.Sprintf("Product %d", i+1),
			Price: "1,99",
		})
	}
	return items
}

func newOrchestrator(cfg fetch.Config) *fetch.Orchestrator {
	return fetch.NewOrchestrator(cfg, zap.NewNop(), metrics.Ingest())
}

func TestRunFetchesEverything(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo", fakeItems(5))
	orch := newOrchestrator(fetch.Config{Workers: 2, PageSize: 2, FetchDetails: true})

	var sink collector
	counts, err := orch.Run(context.Background(), adapter, sink.emit)
	require.NoError(t, err)

	assert.Equal(t, 3, counts.Pages)
	assert.Equal(t, 5, counts.Queued)
	assert.Equal(t, 5, counts.Fetched)
	assert.Equal(t, 0, counts.Failed)
	assert.Equal(t, 0, counts.Skipped)
	assert.Len(t, sink.candidates, 5)
}

func TestRetryThenSuccessCountsAsFetched(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo", fakeItems(1),
		catalogfake.WithDetailFailure(func(id string, attempt int) error {
			if attempt < 2 {
				return &fetch.StatusError{Code: 429}
			}
			return nil
		}),
	)
	orch := newOrchestrator(fetch.Config{Workers: 1, PageSize: 10, FetchDetails: true, MaxAttempts: 4})

	var sink collector
	counts, err := orch.Run(context.Background(), adapter, sink.emit)
	require.NoError(t, err)

	assert.Equal(t, 1, counts.Fetched)
	assert.Equal(t, 0, counts.Failed)
	assert.GreaterOrEqual(t, adapter.Attempts("p-1"), 2)
	assert.GreaterOrEqual(t, adapter.Rotations(), 1, "rate limit must rotate identity")
}

func TestRetryExhaustedCountsAsFailed(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo", fakeItems(2),
		catalogfake.WithDetailFailure(func(id string, attempt int) error {
			if id == "p-1" {
				return &fetch.StatusError{Code: 429}
			}
			return nil
		}),
	)
	orch := newOrchestrator(fetch.Config{Workers: 1, PageSize: 10, FetchDetails: true, MaxAttempts: 2})

	var sink collector
	counts, err := orch.Run(context.Background(), adapter, sink.emit)
	require.NoError(t, err, "item failure never aborts the run")

	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, 1, counts.Fetched)
	assert.Equal(t, 2, adapter.Attempts("p-1"))
}

func TestNotFoundSkipsWithoutRetry(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo", fakeItems(3),
		catalogfake.WithDetailFailure(func(id string, attempt int) error {
			if id == "p-2" {
				return &fetch.StatusError{Code: 404}
			}
			return nil
		}),
	)
	orch := newOrchestrator(fetch.Config{Workers: 2, PageSize: 10, FetchDetails: true, MaxAttempts: 4})

	var sink collector
	counts, err := orch.Run(context.Background(), adapter, sink.emit)
	require.NoError(t, err)

	assert.Equal(t, 3, counts.Queued)
	assert.Equal(t, 2, counts.Fetched)
	assert.Equal(t, 1, counts.Skipped)
	assert.Equal(t, 0, counts.Failed)
	assert.Equal(t, 1, adapter.Attempts("p-2"), "not found is never retried")
}

func TestPageCeilingTruncatesPagination(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo", fakeItems(10))
	orch := newOrchestrator(fetch.Config{Workers: 1, PageSize: 2, MaxPages: 2, FetchDetails: false})

	var sink collector
	counts, err := orch.Run(context.Background(), adapter, sink.emit)
	require.NoError(t, err)

	assert.Equal(t, 2, counts.Pages)
	assert.Equal(t, 4, counts.Queued)
	assert.Equal(t, 4, counts.Fetched)
}

func TestDetailsDisabledUsesListingOnly(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo", fakeItems(3))
	orch := newOrchestrator(fetch.Config{Workers: 2, PageSize: 10, FetchDetails: false})

	var sink collector
	counts, err := orch.Run(context.Background(), adapter, sink.emit)
	require.NoError(t, err)

	assert.Equal(t, 3, counts.Fetched)
	assert.Equal(t, 0, adapter.Attempts("p-1"))
	for _, cand := range sink.candidates {
		assert.NotEmpty(t, cand.ProductID)
		assert.NotEmpty(t, cand.Price)
	}
}

// stallingSource never answers a detail request; only the per-attempt
// deadline gets it unstuck.
type stallingSource struct {
	*catalogfake.Adapter

	mu    sync.Mutex
	calls int
}

func (s *stallingSource) FetchDetail(ctx context.Context, _ fetch.Listing) (fetch.Detail, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	return fetch.Detail{}, ctx.Err()
}

func (s *stallingSource) detailCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestDetailTimeoutRetriesThenFails(t *testing.T) {
	src := &stallingSource{Adapter: catalogfake.New("demo", "Demo", fakeItems(1))}
	orch := newOrchestrator(fetch.Config{
		Workers:      1,
		PageSize:     10,
		FetchDetails: true,
		Timeout:      20 * time.Millisecond,
		MaxAttempts:  2,
	})

	var sink collector
	counts, err := orch.Run(context.Background(), src, sink.emit)
	require.NoError(t, err, "an attempt deadline never aborts the run")

	assert.Equal(t, 1, counts.Queued)
	assert.Equal(t, 0, counts.Fetched)
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, 2, src.detailCalls(), "a timed out attempt is retried")
}

func TestSearchTermReachesSource(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo", fakeItems(1))
	orch := newOrchestrator(fetch.Config{Workers: 1, PageSize: 10, SearchTerm: "melk"})

	var sink collector
	_, err := orch.Run(context.Background(), adapter, sink.emit)
	require.NoError(t, err)

	assert.Equal(t, "melk", adapter.LastTerm())
}

func TestEmitErrorCountsAsFailed(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo", fakeItems(2))
	orch := newOrchestrator(fetch.Config{Workers: 1, PageSize: 10, FetchDetails: false})

	sink := collector{err: &ingestdomain.MappingError{Field: "product_id", Reason: "missing"}}
	counts, err := orch.Run(context.Background(), adapter, sink.emit)
	require.NoError(t, err)

	assert.Equal(t, 2, counts.Fetched)
	assert.Equal(t, 2, counts.Failed)
}
