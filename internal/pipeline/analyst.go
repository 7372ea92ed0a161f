package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/llm"
	"github.com/sells-group/regintel/internal/model"
)

const (
	defaultBatchSize       = 5
	defaultMaxIndividual   = 10
	defaultAnalystWorkers  = 3
	defaultAnalystTimeout  = 60 * time.Second
	defaultMaxContentChars = 2000
)

// AIAnalyst turns filtered items into regulatory changes through the
// text-analysis interface, falling back to rule-based output per item.
type AIAnalyst struct {
	analyzer    llm.TextAnalyzer
	batchSize   int
	maxItems    int
	concurrency int
	timeout     time.Duration
	maxContent  int
	now         func() time.Time
}

// NewAIAnalyst creates an AIAnalyst. A nil analyzer makes every change a
// fallback.
func NewAIAnalyst(analyzer llm.TextAnalyzer, cfg config.AnalystConfig) *AIAnalyst {
	a := &AIAnalyst{
		analyzer:    analyzer,
		batchSize:   cfg.BatchSize,
		maxItems:    cfg.MaxItems,
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout(),
		maxContent:  cfg.MaxContent,
		now:         time.Now,
	}
	if a.batchSize <= 0 {
		a.batchSize = defaultBatchSize
	}
	if a.maxItems <= 0 {
		a.maxItems = defaultMaxIndividual
	}
	if a.concurrency <= 0 {
		a.concurrency = defaultAnalystWorkers
	}
	if a.timeout <= 0 {
		a.timeout = defaultAnalystTimeout
	}
	if a.maxContent <= 0 {
		a.maxContent = defaultMaxContentChars
	}
	return a
}

// unit is one analysis call: a contiguous span of the input.
type unit struct {
	start, end int
}

// Analyze returns exactly one change per item, in input order. It never
// fails; only a done ctx leaves items with fallback output.
func (a *AIAnalyst) Analyze(ctx context.Context, items []model.ScoredItem, profile model.CompanyProfile, analysisType model.AnalysisType) []model.RegulatoryChange {
	np := profile.Normalized()
	analysisType = model.ParseAnalysisType(string(analysisType))
	now := a.now().UTC()

	out := make([]model.RegulatoryChange, len(items))
	for i, it := range items {
		out[i] = FallbackChange(it, np, now)
	}
	if a.analyzer == nil || len(items) == 0 {
		return out
	}

	g := new(errgroup.Group)
	g.SetLimit(a.concurrency)
	for _, u := range a.plan(len(items), analysisType) {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			batch := items[u.start:u.end]
			changes, err := a.analyzeUnit(ctx, batch, np, analysisType, out[u.start:u.end])
			if err != nil {
				zap.L().Warn("pipeline: analysis call failed, using fallback",
					zap.Int("items", len(batch)),
					zap.Error(&AnalysisInterfaceError{Items: len(batch), Err: err}),
				)
				return nil
			}
			copy(out[u.start:u.end], changes)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// plan splits n items into calls. Monitoring analyzes items one by one up
// to the individual cap; the remainder keeps its fallback output.
func (a *AIAnalyst) plan(n int, at model.AnalysisType) []unit {
	var units []unit
	if at == model.AnalysisMonitoring {
		for i := range min(n, a.maxItems) {
			units = append(units, unit{start: i, end: i + 1})
		}
		return units
	}
	for start := 0; start < n; start += a.batchSize {
		units = append(units, unit{start: start, end: min(start+a.batchSize, n)})
	}
	return units
}

// analyzeUnit makes one call for batch. Items the reply does not cover
// keep their entry from fallbacks.
func (a *AIAnalyst) analyzeUnit(ctx context.Context, batch []model.ScoredItem, np model.NormalizedProfile, at model.AnalysisType, fallbacks []model.RegulatoryChange) (changes []model.RegulatoryChange, err error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			changes, err = nil, eris.Errorf("pipeline: analyzer panicked: %v", r)
		}
	}()

	text, err := a.analyzer.Complete(ctx, buildPrompt(batch, np, at, a.maxContent))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: complete")
	}
	results, err := parseResponse(text)
	if err != nil {
		return nil, err
	}

	changes = make([]model.RegulatoryChange, len(batch))
	copy(changes, fallbacks)
	for i, r := range assign(results, len(batch)) {
		if r != nil {
			changes[i] = r.toChange(batch[i], fallbacks[i])
		}
	}
	return changes, nil
}
