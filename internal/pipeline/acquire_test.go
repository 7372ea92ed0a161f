package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/source"
)

// orderedSource records the order in which query texts reach it.
type orderedSource struct {
	stubSource
	delay time.Duration
}

func (s *orderedSource) Search(ctx context.Context, q model.Query) ([]model.RawItem, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.stubSource.Search(ctx, q)
}

func TestAcquire_TiersRunInOrder(t *testing.T) {
	t.Parallel()
	src := &orderedSource{stubSource: stubSource{name: "gov", class: model.SourceGovernment,
		items: []model.RawItem{{Title: "t", Content: "c"}}}}
	a := NewDataAcquirer(source.NewRouter(src), config.PipelineConfig{AcquireConcurrency: 4})

	queries := []model.Query{
		{Text: "low-1", Tier: model.TierLow},
		{Text: "med-1", Tier: model.TierMedium},
		{Text: "high-1", Tier: model.TierHigh},
		{Text: "med-2", Tier: model.TierMedium},
		{Text: "high-2", Tier: model.TierHigh},
	}
	items, err := a.Acquire(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, items, 5)

	var order []string
	for _, it := range items {
		order = append(order, it.Query)
	}
	assert.Equal(t, []string{"high-1", "high-2", "med-1", "med-2", "low-1"}, order)

	calls := src.Calls()
	require.Len(t, calls, 5)
	assert.ElementsMatch(t, []string{"high-1", "high-2"}, calls[:2])
	assert.ElementsMatch(t, []string{"med-1", "med-2"}, calls[2:4])
	assert.Equal(t, "low-1", calls[4])
}

func TestAcquire_TagsSource(t *testing.T) {
	t.Parallel()
	src := &stubSource{name: "legal_db", class: model.SourceLegal, items: []model.RawItem{{Title: "t"}}}
	a := NewDataAcquirer(source.NewRouter(src), config.PipelineConfig{})

	items, err := a.Acquire(context.Background(), []model.Query{{Text: "q", Type: model.QueryKeyword}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "legal_db", items[0].Source)
	assert.Equal(t, model.SourceLegal, items[0].SourceType)
	assert.Equal(t, "q", items[0].Query)
}

func TestAcquire_FailuresAreContained(t *testing.T) {
	t.Parallel()
	bad := &stubSource{name: "bad", class: model.SourceNews, err: errors.New("boom")}
	panicky := &stubSource{name: "panicky", class: model.SourceNews, panic: true}
	good := &stubSource{name: "good", class: model.SourceGovernment, items: []model.RawItem{{Title: "t"}}}
	a := NewDataAcquirer(source.NewRouter(bad, panicky, good), config.PipelineConfig{})

	items, err := a.Acquire(context.Background(), []model.Query{{Text: "a"}, {Text: "b"}})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, "good", it.Source)
	}
}

func TestAcquire_AllSourcesFail(t *testing.T) {
	t.Parallel()
	bad := &stubSource{name: "bad", class: model.SourceGovernment, err: errors.New("down")}
	a := NewDataAcquirer(source.NewRouter(bad), config.PipelineConfig{})

	items, err := a.Acquire(context.Background(), []model.Query{{Text: "a"}, {Text: "b", Tier: model.TierMedium}})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Len(t, bad.Calls(), 2)
}

func TestAcquire_PerCallTimeout(t *testing.T) {
	t.Parallel()
	slow := &orderedSource{stubSource: stubSource{name: "slow", class: model.SourceNews}, delay: time.Second}
	a := NewDataAcquirer(source.NewRouter(slow), config.PipelineConfig{})
	a.timeout = 10 * time.Millisecond

	items, err := a.Acquire(context.Background(), []model.Query{{Text: "a"}})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAcquire_Cancelled(t *testing.T) {
	t.Parallel()
	src := &stubSource{name: "gov", class: model.SourceGovernment, items: []model.RawItem{{Title: "t"}}}
	a := NewDataAcquirer(source.NewRouter(src), config.PipelineConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Acquire(ctx, []model.Query{{Text: "a"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, src.Calls())
}

func TestAcquire_NoQueries(t *testing.T) {
	t.Parallel()
	a := NewDataAcquirer(source.NewRouter(), config.PipelineConfig{})
	items, err := a.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

// gaugeSource tracks the peak number of concurrent searches.
type gaugeSource struct {
	stubSource
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *gaugeSource) Search(ctx context.Context, q model.Query) ([]model.RawItem, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return s.stubSource.Search(ctx, q)
}

func TestAcquire_ConcurrencyBounded(t *testing.T) {
	t.Parallel()
	src := &gaugeSource{stubSource: stubSource{name: "gov", class: model.SourceGovernment,
		items: []model.RawItem{{Title: "t", Content: "c"}}}}
	a := NewDataAcquirer(source.NewRouter(src), config.PipelineConfig{AcquireConcurrency: 2})

	var queries []model.Query
	for _, text := range []string{"a", "b", "c", "d", "e", "f"} {
		queries = append(queries, model.Query{Text: text, Tier: model.TierHigh})
	}
	items, err := a.Acquire(context.Background(), queries)
	require.NoError(t, err)
	assert.Len(t, items, 6)
	assert.LessOrEqual(t, src.peak.Load(), int32(2))
}
