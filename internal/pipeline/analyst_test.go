package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/model"
)

func scoredItems(n int, st model.SourceType) []model.ScoredItem {
	out := make([]model.ScoredItem, n)
	for i := range out {
		out[i] = model.ScoredItem{RawItem: model.RawItem{
			Source:     fmt.Sprintf("src-%d", i),
			SourceType: st,
			Title:      fmt.Sprintf("Item %d", i),
			Content:    longText("Body"),
			URL:        fmt.Sprintf("https://example.gov/%d", i),
		}}
	}
	return out
}

var analystProfile = model.CompanyProfile{CompanyName: "Acme", Industry: "Technology", Jurisdiction: "EU"}

func TestAnalyze_NilAnalyzerUsesFallback(t *testing.T) {
	t.Parallel()
	a := NewAIAnalyst(nil, config.AnalystConfig{})

	items := []model.ScoredItem{
		{RawItem: model.RawItem{Source: "fr", SourceType: model.SourceGovernment, Title: "A"}},
		{RawItem: model.RawItem{Source: "sec", SourceType: model.SourceRegulatoryBody, Title: "B"}},
		{RawItem: model.RawItem{Source: "law", SourceType: model.SourceLegal, Title: "C"}},
		{RawItem: model.RawItem{Source: "wire", SourceType: model.SourceNews, Title: "D"}},
	}
	out := a.Analyze(context.Background(), items, analystProfile, model.AnalysisComprehensive)
	require.Len(t, out, 4)

	want := []struct {
		risk model.RiskLevel
		conf float64
	}{{model.RiskHigh, 0.9}, {model.RiskHigh, 0.8}, {model.RiskMedium, 0.7}, {model.RiskLow, 0.6}}
	for i, c := range out {
		assert.True(t, c.Fallback)
		assert.Equal(t, want[i].risk, c.RiskLevel)
		assert.Equal(t, want[i].conf, c.ConfidenceScore)
		assert.Equal(t, "Regulatory Update: "+items[i].Title, c.Title)
		assert.Equal(t, items[i].SourceType, c.SourceType)
	}
}

func TestFallbackChange(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	item := model.ScoredItem{RawItem: model.RawItem{Source: "federal_register", SourceType: model.SourceGovernment, Title: "Rule", URL: "https://fr.gov/1"}}

	c := FallbackChange(item, analystProfile.Normalized(), now)
	assert.Equal(t, "Regulatory change identified from federal_register that may affect Acme.", c.Summary)
	assert.Equal(t, "This regulation may impact technology operations and compliance requirements.", c.ImpactAssessment)
	assert.Len(t, c.ActionItems, 4)
	assert.Equal(t, []string{"Operations", "Compliance"}, c.AffectedAreas)
	assert.Len(t, c.ComplianceRequirements, 3)
	assert.Contains(t, c.ComplianceRequirements[1], "technology")
	assert.Contains(t, c.ComplianceRequirements[2], "eu")
	assert.Equal(t, now, c.AnalyzedAt)

	bare := FallbackChange(item, model.CompanyProfile{}.Normalized(), now)
	assert.Equal(t, "This regulation may impact the company operations and compliance requirements.", bare.ImpactAssessment)
	assert.Len(t, bare.ComplianceRequirements, 1)
}

func TestAnalyze_BatchesComprehensive(t *testing.T) {
	t.Parallel()
	m := new(mockAnalyzer)
	m.On("Complete", mock.Anything, mock.Anything).Return(
		`Sure! {"changes":[{"item_index":1,"title":"Parsed","summary":"S","risk_level":"critical","confidence_score":"0.95"}]}`, nil)
	a := NewAIAnalyst(m, config.AnalystConfig{})

	items := scoredItems(12, model.SourceNews)
	out := a.Analyze(context.Background(), items, analystProfile, model.AnalysisComprehensive)
	require.Len(t, out, 12)
	m.AssertNumberOfCalls(t, "Complete", 3)

	for i, c := range out {
		if i%5 == 0 {
			assert.False(t, c.Fallback, "item %d", i)
			assert.Equal(t, "Parsed", c.Title)
			assert.Equal(t, model.RiskCritical, c.RiskLevel)
			assert.Equal(t, 0.95, c.ConfidenceScore)
			assert.Equal(t, items[i].URL, c.SourceURL)
			continue
		}
		assert.True(t, c.Fallback, "item %d", i)
		assert.Equal(t, "Regulatory Update: "+items[i].Title, c.Title)
	}
}

func TestAnalyze_MonitoringCapsIndividualCalls(t *testing.T) {
	t.Parallel()
	m := new(mockAnalyzer)
	m.On("Complete", mock.Anything, mock.Anything).Return(`{"title":"One","summary":"S"}`, nil)
	a := NewAIAnalyst(m, config.AnalystConfig{MaxItems: 10})

	out := a.Analyze(context.Background(), scoredItems(14, model.SourceGovernment), analystProfile, model.AnalysisMonitoring)
	require.Len(t, out, 14)
	m.AssertNumberOfCalls(t, "Complete", 10)
	for i, c := range out {
		if i < 10 {
			assert.False(t, c.Fallback)
			assert.Equal(t, model.RiskMedium, c.RiskLevel)
			assert.Equal(t, 0.5, c.ConfidenceScore)
		} else {
			assert.True(t, c.Fallback)
			assert.Equal(t, 0.9, c.ConfidenceScore)
		}
	}
}

func TestAnalyze_FailedCallFallsBack(t *testing.T) {
	t.Parallel()
	m := new(mockAnalyzer)
	m.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("rate limited")).Once()
	m.On("Complete", mock.Anything, mock.Anything).Return("not json at all", nil)
	a := NewAIAnalyst(m, config.AnalystConfig{Concurrency: 1})

	out := a.Analyze(context.Background(), scoredItems(10, model.SourceLegal), analystProfile, model.AnalysisTargeted)
	require.Len(t, out, 10)
	m.AssertNumberOfCalls(t, "Complete", 2)
	for _, c := range out {
		assert.True(t, c.Fallback)
		assert.Equal(t, model.RiskMedium, c.RiskLevel)
	}
}

func TestAnalyze_PromptCarriesContext(t *testing.T) {
	t.Parallel()
	m := new(mockAnalyzer)
	m.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Company: Acme") &&
			strings.Contains(p, "Industry: technology") &&
			strings.Contains(p, "Analysis Type: targeted") &&
			strings.Contains(p, "Title: Item 0") &&
			!strings.Contains(p, strings.Repeat("y", 2001))
	})).Return(`{"changes":[]}`, nil)
	a := NewAIAnalyst(m, config.AnalystConfig{})

	items := scoredItems(1, model.SourceNews)
	items[0].Content = strings.Repeat("y", 5000)
	out := a.Analyze(context.Background(), items, analystProfile, model.AnalysisTargeted)
	require.Len(t, out, 1)
	assert.True(t, out[0].Fallback)
	m.AssertExpectations(t)
}

func TestAnalyze_PanicFallsBack(t *testing.T) {
	t.Parallel()
	m := new(mockAnalyzer)
	m.On("Complete", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("boom") }).Return("", nil)
	a := NewAIAnalyst(m, config.AnalystConfig{})

	out := a.Analyze(context.Background(), scoredItems(2, model.SourceNews), analystProfile, model.AnalysisComprehensive)
	require.Len(t, out, 2)
	assert.True(t, out[0].Fallback)
	assert.True(t, out[1].Fallback)
}

func TestAnalyze_Empty(t *testing.T) {
	t.Parallel()
	m := new(mockAnalyzer)
	a := NewAIAnalyst(m, config.AnalystConfig{})
	assert.Empty(t, a.Analyze(context.Background(), nil, analystProfile, model.AnalysisComprehensive))
	m.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	res, err := parseResponse("```json\n{\"changes\":[{\"item_index\":\"2\",\"title\":\"B\"},{\"item_index\":1,\"title\":\"A\"}]}\n```")
	require.NoError(t, err)
	require.Len(t, res, 2)

	got := assign(res, 2)
	assert.Equal(t, flexString("A"), got[0].Title)
	assert.Equal(t, flexString("B"), got[1].Title)

	_, err = parseResponse("no braces here")
	assert.Error(t, err)

	_, err = parseResponse(`{"changes":[]}`)
	assert.Error(t, err)

	_, err = parseResponse(`{"title": [unterminated}`)
	assert.Error(t, err)
}

func TestAssign_Unindexed(t *testing.T) {
	t.Parallel()
	res := []analysisResult{{Title: "first"}, {ItemIndex: 3, Title: "third"}, {ItemIndex: 9, Title: "stray"}}
	got := assign(res, 3)
	assert.Equal(t, flexString("first"), got[0].Title)
	assert.Equal(t, flexString("stray"), got[1].Title)
	assert.Equal(t, flexString("third"), got[2].Title)
}

func TestToChange_Lenient(t *testing.T) {
	t.Parallel()
	_, err := parseResponse(`{}`)
	require.Error(t, err)

	res, err := parseResponse(`{
		"title": "T",
		"risk_level": "SEVERE",
		"confidence_score": 7,
		"compliance_requirements": "File annual report",
		"affected_areas": ["Finance", ""],
		"action_items": null,
		"implementation_timeline": ["Q1", "Q2"]
	}`)
	require.NoError(t, err)
	require.Len(t, res, 1)

	item := scoredItems(1, model.SourceNews)[0]
	fb := FallbackChange(item, analystProfile.Normalized(), time.Now())
	c := res[0].toChange(item, fb)

	assert.False(t, c.Fallback)
	assert.Equal(t, "T", c.Title)
	assert.Equal(t, model.RiskMedium, c.RiskLevel)
	assert.Equal(t, 1.0, c.ConfidenceScore)
	assert.Equal(t, []string{"File annual report"}, c.ComplianceRequirements)
	assert.Equal(t, []string{"Finance"}, c.AffectedAreas)
	assert.Equal(t, fb.ActionItems, c.ActionItems)
	assert.Equal(t, "Q1; Q2", c.ImplementationTimeline)
}
