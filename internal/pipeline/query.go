package pipeline

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/textutil"
)

// Provenance tags recorded on generated queries.
const (
	ProvenanceCompanyProfile  = "company_profile"
	ProvenanceAnalysisRequest = "analysis_request"
	ProvenanceIndustry        = "industry_mapping"
	ProvenanceJurisdiction    = "jurisdiction_mapping"
	ProvenanceAnalysisType    = "analysis_type"
	ProvenanceScope           = "scope"
	ProvenanceWebSearch       = "web_search"
)

const maxPriority = 5

// termMapping maps a canonical key, recognised through any of its aliases,
// to the search terms emitted for it.
type termMapping struct {
	aliases []string
	terms   []string
}

var industryTerms = map[string]termMapping{
	"technology": {
		aliases: []string{"technology", "tech", "software", "saas", "it services"},
		terms:   []string{"data protection regulations", "cybersecurity compliance", "software licensing laws", "AI governance regulations"},
	},
	"energy": {
		aliases: []string{"energy", "utilities", "oil", "gas", "renewables"},
		terms:   []string{"environmental regulations", "safety standards", "energy efficiency requirements", "renewable energy policies"},
	},
	"healthcare": {
		aliases: []string{"healthcare", "health", "medical", "pharma", "pharmaceutical", "biotech"},
		terms:   []string{"medical device regulations", "patient data privacy", "clinical trial requirements", "healthcare compliance"},
	},
	"financial": {
		aliases: []string{"financial", "finance", "fintech", "banking", "insurance"},
		terms:   []string{"financial services regulations", "anti-money laundering", "consumer protection laws", "banking compliance"},
	},
}

var jurisdictionTerms = map[string]termMapping{
	"us": {
		aliases: []string{"us", "usa", "u s", "united states"},
		terms:   []string{"federal regulations", "state compliance requirements", "SEC regulations", "FDA guidelines"},
	},
	"eu": {
		aliases: []string{"eu", "european union", "europe"},
		terms:   []string{"EU directives", "GDPR compliance", "CE marking requirements", "European standards"},
	},
	"uk": {
		aliases: []string{"uk", "united kingdom", "great britain", "england"},
		terms:   []string{"UK regulations", "post-Brexit compliance", "British standards", "UKCA marking"},
	},
}

// mappingOrder fixes the iteration order over the term maps.
var (
	industryOrder     = []string{"technology", "energy", "healthcare", "financial"}
	jurisdictionOrder = []string{"us", "eu", "uk"}
)

var analysisTypeQueries = map[model.AnalysisType][]string{
	model.AnalysisComprehensive: {
		"regulatory changes",
		"compliance updates",
		"new legislation",
		"policy updates",
		"regulatory guidance",
	},
	model.AnalysisTargeted: {
		"regulatory requirements",
		"compliance obligations",
	},
	model.AnalysisMonitoring: {
		"recent regulatory changes",
		"upcoming compliance deadlines",
		"regulatory enforcement actions",
		"proposed rules",
	},
}

var analysisTypeQueryType = map[model.AnalysisType]model.QueryType{
	model.AnalysisComprehensive: model.QueryComprehensive,
	model.AnalysisTargeted:      model.QueryTargeted,
	model.AnalysisMonitoring:    model.QueryMonitoring,
}

// QueryGenerator builds the prioritized search queries for a run. It holds
// no state and is safe for concurrent use.
type QueryGenerator struct{}

// NewQueryGenerator returns a QueryGenerator.
func NewQueryGenerator() *QueryGenerator { return &QueryGenerator{} }

// Generate returns deduplicated queries ordered by tier, then priority
// (highest first), then generation order. Missing optional inputs produce
// fewer queries, never an error.
func (g *QueryGenerator) Generate(profile model.CompanyProfile, analysisType model.AnalysisType, scope string, keywords []string) []model.Query {
	np := profile.Normalized()
	analysisType = model.ParseAnalysisType(string(analysisType))

	var out []model.Query
	seen := make(map[string]bool)
	add := func(text string, qt model.QueryType, tier model.Tier, provenance string) {
		text = strings.TrimSpace(text)
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		out = append(out, model.Query{Text: text, Type: qt, Tier: tier, Provenance: provenance})
	}

	for _, kw := range np.Keywords {
		add(kw, model.QueryKeyword, model.TierHigh, ProvenanceCompanyProfile)
	}
	for _, kw := range keywords {
		add(kw, model.QueryKeyword, model.TierMedium, ProvenanceAnalysisRequest)
	}
	for _, key := range matchingKeys(np.Industry, industryOrder, industryTerms) {
		for _, term := range industryTerms[key].terms {
			add(term, model.QueryIndustry, model.TierHigh, ProvenanceIndustry)
		}
	}
	for _, key := range matchingKeys(np.Jurisdiction, jurisdictionOrder, jurisdictionTerms) {
		for _, term := range jurisdictionTerms[key].terms {
			add(term, model.QueryJurisdiction, model.TierHigh, ProvenanceJurisdiction)
		}
	}
	for _, text := range analysisTypeQueries[analysisType] {
		add(text, analysisTypeQueryType[analysisType], model.TierMedium, ProvenanceAnalysisType)
	}
	if analysisType == model.AnalysisTargeted {
		for _, tok := range strings.Fields(strings.ToLower(scope)) {
			tok = strings.Trim(tok, ".,;:!?()\"'")
			if utf8.RuneCountInString(tok) > 3 {
				add(tok, model.QueryTargeted, model.TierHigh, ProvenanceScope)
			}
		}
	}
	if np.CompanyName != "" {
		add(strings.Join(nonEmpty(np.CompanyName, np.Industry, "regulations"), " "),
			model.QueryWebSearch, model.TierMedium, ProvenanceWebSearch)
	}

	for i := range out {
		out[i].Priority = priority(out[i], np)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].Priority > out[j].Priority
	})
	return out
}

// priority scores a query on 1..5: base 1, +2 when the company name appears
// in the text, +1 for an industry match, +1 for a jurisdiction match.
func priority(q model.Query, np model.NormalizedProfile) int {
	p := 1
	if np.CompanyName != "" && strings.Contains(strings.ToLower(q.Text), strings.ToLower(np.CompanyName)) {
		p += 2
	}
	if q.Provenance == ProvenanceIndustry || (np.Industry != "" && hasPhrase(q.Text, np.Industry)) {
		p++
	}
	if q.Provenance == ProvenanceJurisdiction || (np.Jurisdiction != "" && hasPhrase(q.Text, np.Jurisdiction)) {
		p++
	}
	if p > maxPriority {
		p = maxPriority
	}
	return p
}

// matchingKeys returns the mapping keys, in order, whose aliases occur as
// whole words in value.
func matchingKeys(value string, order []string, mapping map[string]termMapping) []string {
	if value == "" {
		return nil
	}
	var keys []string
	for _, key := range order {
		for _, alias := range mapping[key].aliases {
			if hasPhrase(value, alias) {
				keys = append(keys, key)
				break
			}
		}
	}
	return keys
}

// aliasesFor returns every alias of the mapping keys matched by value, or
// value itself when nothing matches.
func aliasesFor(value string, order []string, mapping map[string]termMapping) []string {
	if value == "" {
		return nil
	}
	aliases := []string{value}
	for _, key := range matchingKeys(value, order, mapping) {
		aliases = append(aliases, mapping[key].aliases...)
	}
	return aliases
}

// hasPhrase reports whether the folded tokens of phrase appear contiguously
// in the folded tokens of text.
func hasPhrase(text, phrase string) bool {
	return containsPhrase(padTokens(text), phrase)
}

// padTokens joins the folded tokens of text with single spaces and pads
// both ends, ready for repeated containsPhrase checks.
func padTokens(text string) string {
	return " " + strings.Join(textutil.Tokens(text), " ") + " "
}

func containsPhrase(padded, phrase string) bool {
	p := textutil.Tokens(phrase)
	if len(p) == 0 {
		return false
	}
	return strings.Contains(padded, " "+strings.Join(p, " ")+" ")
}

func nonEmpty(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
