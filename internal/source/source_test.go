package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/resilience"
)

type stubSource struct {
	name  string
	class model.SourceType
	calls int
	err   error
}

func (s *stubSource) Name() string                    { return s.name }
func (s *stubSource) Class() model.SourceType         { return s.class }
func (s *stubSource) Accepts(qt model.QueryType) bool { return ClassAccepts(s.class, qt) }
func (s *stubSource) Search(context.Context, model.Query) ([]model.RawItem, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []model.RawItem{{Source: s.name, Title: "t"}}, nil
}

func TestRouter_For(t *testing.T) {
	gov := &stubSource{name: "gov", class: model.SourceGovernment}
	news := &stubSource{name: "news", class: model.SourceNews}
	legal := &stubSource{name: "legal", class: model.SourceLegal}
	r := NewRouter(gov, news, legal)

	names := func(ss []Source) []string {
		var out []string
		for _, s := range ss {
			out = append(out, s.Name())
		}
		return out
	}

	assert.Equal(t, []string{"gov", "news", "legal"}, names(r.For(model.QueryKeyword)))
	assert.Equal(t, []string{"news"}, names(r.For(model.QueryWebSearch)))
	assert.Equal(t, []string{"gov", "legal"}, names(r.For(model.QueryJurisdiction)))
	assert.Len(t, r.Sources(), 3)

	var nilRouter *Router
	assert.Empty(t, nilRouter.For(model.QueryKeyword))
}

func TestClassAccepts_EveryQueryTypeHasASource(t *testing.T) {
	for _, qt := range []model.QueryType{
		model.QueryKeyword, model.QueryIndustry, model.QueryJurisdiction,
		model.QueryComprehensive, model.QueryTargeted, model.QueryMonitoring, model.QueryWebSearch,
	} {
		served := false
		for class := range classQueryTypes {
			if ClassAccepts(class, qt) {
				served = true
			}
		}
		assert.True(t, served, "query type %s has no source class", qt)
	}
	assert.False(t, ClassAccepts(model.SourceOther, model.QueryKeyword))
}

func TestWithBreaker_OpensAfterFailures(t *testing.T) {
	breakers := resilience.NewBreakers(config.ResilienceConfig{CircuitFailureThreshold: 2, CircuitResetTimeoutSecs: 60})
	inner := &stubSource{name: "flaky", class: model.SourceNews, err: errors.New("down")}
	src := WithBreaker(inner, breakers)

	for i := 0; i < 2; i++ {
		_, err := src.Search(context.Background(), model.Query{Text: "q"})
		require.Error(t, err)
	}
	_, err := src.Search(context.Background(), model.Query{Text: "q"})
	require.ErrorIs(t, err, resilience.ErrOpen)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, "flaky", src.Name())
	assert.Equal(t, resilience.StateOpen, breakers.States()["flaky"])

	assert.Same(t, inner, WithBreaker(inner, nil))
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{
		FedReg:   config.FedRegConfig{Enabled: true, BaseURL: "http://127.0.0.1:1", PerPage: 5},
		Portals:  config.PortalsConfig{URLs: []string{"https://www.sec.gov/news"}},
		Pipeline: config.PipelineConfig{AcquireTimeoutSecs: 5},
	}
	r := FromConfig(cfg, resilience.NewBreakers(config.ResilienceConfig{}))
	require.Len(t, r.Sources(), 2)
	assert.Equal(t, "federal_register", r.Sources()[0].Name())
	assert.Equal(t, "regulator_portals", r.Sources()[1].Name())

	cfg.Jina.Key = "k"
	cfg.Jina.SearchBaseURL = "http://127.0.0.1:1"
	assert.Len(t, FromConfig(cfg, nil).Sources(), 5)
}

func TestRankHint(t *testing.T) {
	assert.InDelta(t, 0.7, rankHint(0), 1e-9)
	assert.InDelta(t, 0.6, rankHint(2), 1e-9)
	assert.InDelta(t, 0.3, rankHint(50), 1e-9)
}
