package pipeline

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/model"
)

var filterNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestFilter(cfg config.PipelineConfig) *ContentFilter {
	f := NewContentFilter(cfg)
	f.now = func() time.Time { return filterNow }
	return f
}

func daysAgo(n int) *time.Time {
	t := filterNow.Add(-time.Duration(n) * 24 * time.Hour)
	return &t
}

func TestFilter_QualityGate(t *testing.T) {
	t.Parallel()
	f := newTestFilter(config.PipelineConfig{BlockedSources: []string{"spam.example.com", "tabloid"}})
	profile := model.CompanyProfile{CompanyName: "Acme"}
	base := model.RawItem{Source: "agency", SourceType: model.SourceGovernment, Title: "Rule", Content: longText("Rule"), URL: "https://agency.gov/a", RelevanceHint: 1}

	cases := map[string]func(*model.RawItem){
		"no title":      func(it *model.RawItem) { it.Title = " " },
		"no content":    func(it *model.RawItem) { it.Content = "" },
		"no source":     func(it *model.RawItem) { it.Source = "" },
		"short content": func(it *model.RawItem) { it.Content = "too short" },
		"blocked host":  func(it *model.RawItem) { it.URL = "https://www.spam.example.com/x" },
		"blocked name":  func(it *model.RawItem) { it.Source = "Tabloid" },
	}
	for name, mutate := range cases {
		it := base
		mutate(&it)
		assert.Empty(t, f.Filter([]model.RawItem{it}, profile, model.AnalysisComprehensive), name)
	}
	assert.Len(t, f.Filter([]model.RawItem{base}, profile, model.AnalysisComprehensive), 1)
}

func TestFilter_RelevanceThreshold(t *testing.T) {
	t.Parallel()
	f := newTestFilter(config.PipelineConfig{})
	profile := model.CompanyProfile{CompanyName: "Acme", Industry: "energy"}

	weak := model.RawItem{Source: "blog", SourceType: model.SourceOther, Title: "Weak", Content: longText("Gardening tips"), URL: "https://blog.example/a"}
	strong := model.RawItem{Source: "agency", SourceType: model.SourceGovernment, Title: "Strong", Content: longText("Energy efficiency rule"), URL: "https://agency.gov/b", RelevanceHint: 0.5}

	out := f.Filter([]model.RawItem{weak, strong}, profile, model.AnalysisComprehensive)
	require.Len(t, out, 1)
	assert.Equal(t, "Strong", out[0].Title)
	for _, s := range out {
		assert.GreaterOrEqual(t, s.Relevance, defaultRelevanceThreshold)
		assert.LessOrEqual(t, s.Relevance, 1.0)
	}
}

func TestFilter_RelevanceComponents(t *testing.T) {
	t.Parallel()
	np := model.CompanyProfile{
		CompanyName:    "Acme",
		Industry:       "Tech",
		Jurisdiction:   "European Union",
		Keywords:       []string{"AI", "biometrics", "chatbots"},
		TrustedSources: []string{"eur-lex.europa.eu"},
	}.Normalized()
	m := newMatcher(np)

	it := model.RawItem{
		SourceType:    model.SourceLegal,
		Title:         "AI Act",
		Content:       "Software providers in the EU must register biometrics and chatbots systems.",
		URL:           "https://eur-lex.europa.eu/doc",
		RelevanceHint: 0.5,
	}
	want := 0.30*0.5 + 0.15 + 0.15 + 0.20 + 0.20*0.8 + 0.10
	assert.InDelta(t, want, m.relevance(it), 1e-9)

	it.URL = "https://example.com"
	assert.InDelta(t, want-0.10, m.relevance(it), 1e-9)
}

func TestFilter_GovernmentRanksFirst(t *testing.T) {
	t.Parallel()
	f := newTestFilter(config.PipelineConfig{})
	profile := model.CompanyProfile{CompanyName: "Acme", Industry: "technology"}

	news := model.RawItem{Source: "wire", SourceType: model.SourceNews, Title: "Tech firms react", Content: longText("Technology"), URL: "https://news.example/1", RelevanceHint: 0.7}
	gov := model.RawItem{Source: "agency", SourceType: model.SourceGovernment, Title: "Final software rule", Content: longText("Technology"), URL: "https://agency.gov/1", RelevanceHint: 0.7}

	out := f.Filter([]model.RawItem{news, gov}, profile, model.AnalysisComprehensive)
	require.Len(t, out, 2)
	assert.Equal(t, model.SourceGovernment, out[0].SourceType)
	assert.GreaterOrEqual(t, out[0].Combined, out[1].Combined)
}

func TestFilter_Caps(t *testing.T) {
	t.Parallel()
	f := newTestFilter(config.PipelineConfig{})
	profile := model.CompanyProfile{CompanyName: "Acme"}

	var items []model.RawItem
	for i := range 60 {
		items = append(items, model.RawItem{
			Source:        "agency",
			SourceType:    model.SourceGovernment,
			Title:         fmt.Sprintf("Notice %d on topic %d", i, i*7),
			Content:       longText(fmt.Sprintf("Item %d", i)),
			URL:           fmt.Sprintf("https://agency.gov/%d", i),
			RelevanceHint: 1,
		})
	}
	assert.Len(t, f.Filter(items, profile, model.AnalysisComprehensive), 50)
	assert.Len(t, f.Filter(items, profile, model.AnalysisTargeted), 20)
	assert.Len(t, f.Filter(items, profile, model.AnalysisMonitoring), 10)
}

func TestFilter_EmptyInput(t *testing.T) {
	t.Parallel()
	assert.Empty(t, newTestFilter(config.PipelineConfig{}).Filter(nil, model.CompanyProfile{}, model.AnalysisMonitoring))
}

func TestRecency(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.5, recency(nil, filterNow))
	assert.Equal(t, 1.0, recency(daysAgo(3), filterNow))
	assert.Equal(t, 0.8, recency(daysAgo(20), filterNow))
	assert.Equal(t, 0.6, recency(daysAgo(60), filterNow))
	assert.Equal(t, 0.4, recency(daysAgo(200), filterNow))
	assert.Equal(t, 0.2, recency(daysAgo(900), filterNow))
}

func TestImportance(t *testing.T) {
	t.Parallel()
	long := model.ScoredItem{RawItem: model.RawItem{SourceType: model.SourceGovernment, Content: strings.Repeat("x", 1200)}}
	assert.InDelta(t, 0.5+0.3+0.1, importance(long, model.AnalysisComprehensive), 1e-9)
	assert.InDelta(t, 0.5+0.3, importance(long, model.AnalysisTargeted), 1e-9)

	short := model.ScoredItem{RawItem: model.RawItem{SourceType: model.SourceNews, Content: strings.Repeat("x", 100)}, Relevance: 0.9, Recency: 0.8}
	assert.InDelta(t, 0.25+0.05+0.15, importance(short, model.AnalysisTargeted), 1e-9)
	assert.InDelta(t, 0.25+0.05+0.1, importance(short, model.AnalysisMonitoring), 1e-9)
}

func TestDedup(t *testing.T) {
	t.Parallel()
	items := []model.ScoredItem{
		{RawItem: model.RawItem{Title: "SEC adopts climate disclosure rule", URL: "https://www.sec.gov/news/1/"}},
		{RawItem: model.RawItem{Title: "Different headline", URL: "https://SEC.gov/news/1#top"}},
		{RawItem: model.RawItem{Title: "SEC adopts the climate disclosure rule", URL: "https://other.example/a"}},
		{RawItem: model.RawItem{Title: "FDA issues device guidance", URL: "https://fda.gov/a"}},
	}
	out := Dedup(items)
	require.Len(t, out, 2)
	assert.Equal(t, "SEC adopts climate disclosure rule", out[0].Title)
	assert.Equal(t, "FDA issues device guidance", out[1].Title)

	assert.Equal(t, out, Dedup(out))
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "sec.gov/news/1", normalizeURL("https://WWW.sec.gov/news/1/#frag"))
	assert.Equal(t, "sec.gov/news?id=2", normalizeURL("http://sec.gov/news?id=2"))
	assert.Equal(t, "", normalizeURL("  "))
}
