package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regintel/internal/model"
)

func queryTexts(qs []model.Query) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Text
	}
	return out
}

func TestGenerate_TechnologyEU(t *testing.T) {
	t.Parallel()
	profile := model.CompanyProfile{CompanyName: "Acme", Industry: "technology", Jurisdiction: "EU", Keywords: []string{"AI"}}

	qs := NewQueryGenerator().Generate(profile, model.AnalysisComprehensive, "", nil)
	texts := queryTexts(qs)

	assert.Contains(t, texts, "AI")
	assert.Contains(t, texts, "GDPR compliance")
	assert.Contains(t, texts, "data protection regulations")
	assert.Contains(t, texts, "regulatory changes")
	assert.Contains(t, texts, "Acme technology regulations")

	for _, q := range qs {
		if q.Text == "AI" {
			assert.Equal(t, model.TierHigh, q.Tier)
			assert.Equal(t, ProvenanceCompanyProfile, q.Provenance)
		}
	}
}

func TestGenerate_OrderedByTierThenPriority(t *testing.T) {
	t.Parallel()
	profile := model.CompanyProfile{CompanyName: "Acme", Industry: "healthcare", Jurisdiction: "US", Keywords: []string{"HIPAA"}}

	qs := NewQueryGenerator().Generate(profile, model.AnalysisMonitoring, "", []string{"telehealth"})
	require.NotEmpty(t, qs)
	for i := 1; i < len(qs); i++ {
		prev, cur := qs[i-1], qs[i]
		require.LessOrEqual(t, prev.Tier, cur.Tier)
		if prev.Tier == cur.Tier {
			assert.GreaterOrEqual(t, prev.Priority, cur.Priority)
		}
	}
	for _, q := range qs {
		assert.GreaterOrEqual(t, q.Priority, 1)
		assert.LessOrEqual(t, q.Priority, maxPriority)
	}
}

func TestGenerate_NoDuplicates(t *testing.T) {
	t.Parallel()
	profile := model.CompanyProfile{CompanyName: "Acme", Keywords: []string{"proposed rules", "AI", "AI"}}

	qs := NewQueryGenerator().Generate(profile, model.AnalysisMonitoring, "", []string{"AI"})
	seen := map[string]bool{}
	for _, q := range qs {
		assert.False(t, seen[q.Text], "duplicate %q", q.Text)
		seen[q.Text] = true
	}
}

func TestGenerate_EmptyProfileMonitoring(t *testing.T) {
	t.Parallel()
	qs := NewQueryGenerator().Generate(model.CompanyProfile{}, model.AnalysisMonitoring, "", nil)

	assert.Equal(t, analysisTypeQueries[model.AnalysisMonitoring], queryTexts(qs))
	for _, q := range qs {
		assert.Equal(t, model.QueryMonitoring, q.Type)
	}
}

func TestGenerate_TargetedScope(t *testing.T) {
	t.Parallel()
	qs := NewQueryGenerator().Generate(model.CompanyProfile{}, model.AnalysisTargeted, "Data retention for EU customers", nil)
	texts := queryTexts(qs)

	assert.Contains(t, texts, "retention")
	assert.Contains(t, texts, "customers")
	assert.NotContains(t, texts, "for")
	assert.NotContains(t, texts, "eu")
}

func TestGenerate_UnknownAnalysisTypeIsComprehensive(t *testing.T) {
	t.Parallel()
	qs := NewQueryGenerator().Generate(model.CompanyProfile{}, "weekly-digest", "", nil)
	assert.Equal(t, analysisTypeQueries[model.AnalysisComprehensive], queryTexts(qs))
}

func TestPriority(t *testing.T) {
	t.Parallel()
	np := model.CompanyProfile{CompanyName: "Acme", Industry: "energy", Jurisdiction: "uk"}.Normalized()

	assert.Equal(t, 1, priority(model.Query{Text: "regulatory changes"}, np))
	assert.Equal(t, 3, priority(model.Query{Text: "acme filings"}, np))
	assert.Equal(t, 5, priority(model.Query{Text: "Acme energy rules in the UK"}, np))
	assert.Equal(t, 2, priority(model.Query{Text: "x", Provenance: ProvenanceIndustry}, np))
}

func TestHasPhrase(t *testing.T) {
	t.Parallel()
	assert.True(t, hasPhrase("United States federal rules", "united states"))
	assert.True(t, hasPhrase("Règlement européen", "reglement"))
	assert.False(t, hasPhrase("ecosystem", "eu"))
	assert.False(t, hasPhrase("anything", ""))
}
