package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/source"
)

const (
	defaultAcquireConcurrency = 8
	defaultAcquireTimeout     = 30 * time.Second
)

// DataAcquirer runs queries against the routed sources, one priority tier
// at a time. Failed fetches are logged and contribute nothing.
type DataAcquirer struct {
	router      *source.Router
	concurrency int
	timeout     time.Duration
}

// NewDataAcquirer creates a DataAcquirer over router.
func NewDataAcquirer(router *source.Router, cfg config.PipelineConfig) *DataAcquirer {
	a := &DataAcquirer{
		router:      router,
		concurrency: cfg.AcquireConcurrency,
		timeout:     cfg.AcquireTimeout(),
	}
	if a.concurrency <= 0 {
		a.concurrency = defaultAcquireConcurrency
	}
	if a.timeout <= 0 {
		a.timeout = defaultAcquireTimeout
	}
	return a
}

// Acquire returns the items of every successful fetch, grouped by tier and
// within a tier by query order. It fails only when ctx is done.
func (a *DataAcquirer) Acquire(ctx context.Context, queries []model.Query) ([]model.RawItem, error) {
	tiers := make(map[model.Tier][]model.Query)
	for _, q := range queries {
		tiers[q.Tier] = append(tiers[q.Tier], q)
	}

	var out []model.RawItem
	for _, tier := range []model.Tier{model.TierHigh, model.TierMedium, model.TierLow} {
		batch := tiers[tier]
		if len(batch) == 0 {
			continue
		}

		results := make([][]model.RawItem, len(batch))
		g := new(errgroup.Group)
		g.SetLimit(a.concurrency)
		for i, q := range batch {
			g.Go(func() error {
				results[i] = a.fetchQuery(ctx, q)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "pipeline: acquisition cancelled in %s tier", tier)
		}

		n := 0
		for _, items := range results {
			out = append(out, items...)
			n += len(items)
		}
		zap.L().Debug("pipeline: tier acquired",
			zap.Stringer("tier", tier),
			zap.Int("queries", len(batch)),
			zap.Int("items", n),
		)
	}
	return out, nil
}

// fetchQuery asks every source that accepts q, one after another.
func (a *DataAcquirer) fetchQuery(ctx context.Context, q model.Query) []model.RawItem {
	var items []model.RawItem
	for _, src := range a.router.For(q.Type) {
		if ctx.Err() != nil {
			return nil
		}
		got, err := a.fetchOne(ctx, src, q)
		if err != nil {
			fe := &SourceFetchError{Query: q.Text, Source: src.Name(), Err: err}
			zap.L().Warn("pipeline: source fetch failed",
				zap.String("query", q.Text),
				zap.String("source", src.Name()),
				zap.Error(fe),
			)
			continue
		}
		for _, it := range got {
			if it.Source == "" {
				it.Source = src.Name()
			}
			if it.SourceType == "" {
				it.SourceType = src.Class()
			}
			it.Query = q.Text
			items = append(items, it)
		}
	}
	return items
}

func (a *DataAcquirer) fetchOne(ctx context.Context, src source.Source, q model.Query) (items []model.RawItem, err error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			items, err = nil, eris.Errorf("pipeline: source panicked: %v", r)
		}
	}()
	return src.Search(ctx, q)
}
