package pipeline

import (
	"math"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/textutil"
)

const (
	defaultMinContentLength   = 50
	defaultRelevanceThreshold = 0.25
	titleSimilarityLimit      = 0.8
)

// Relevance weights. Their maximum sum is 1.
const (
	weightHint         = 0.30
	weightIndustry     = 0.15
	weightJurisdiction = 0.15
	weightKeywordHit   = 0.10
	maxKeywordWeight   = 0.20
	weightSource       = 0.20
	weightTrusted      = 0.10
)

var sourceWeights = map[model.SourceType]float64{
	model.SourceGovernment:     1.0,
	model.SourceRegulatoryBody: 0.9,
	model.SourceLegal:          0.8,
	model.SourceIndustry:       0.6,
	model.SourceNews:           0.5,
	model.SourceOther:          0.3,
}

var resultCaps = map[model.AnalysisType]int{
	model.AnalysisComprehensive: 50,
	model.AnalysisTargeted:      20,
	model.AnalysisMonitoring:    10,
}

// ContentFilter drops low-quality and irrelevant items, scores and ranks
// the rest, removes duplicates and caps the list by analysis type.
type ContentFilter struct {
	minContentLength int
	threshold        float64
	blocked          map[string]bool
	now              func() time.Time
}

// NewContentFilter creates a ContentFilter from the pipeline settings.
func NewContentFilter(cfg config.PipelineConfig) *ContentFilter {
	f := &ContentFilter{
		minContentLength: cfg.MinContentLength,
		threshold:        cfg.RelevanceThreshold,
		blocked:          make(map[string]bool),
		now:              time.Now,
	}
	if f.minContentLength <= 0 {
		f.minContentLength = defaultMinContentLength
	}
	if f.threshold <= 0 {
		f.threshold = defaultRelevanceThreshold
	}
	for _, b := range cfg.BlockedSources {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			f.blocked[b] = true
		}
	}
	return f
}

// Filter returns the surviving items ordered by combined score.
func (f *ContentFilter) Filter(items []model.RawItem, profile model.CompanyProfile, analysisType model.AnalysisType) []model.ScoredItem {
	np := profile.Normalized()
	analysisType = model.ParseAnalysisType(string(analysisType))
	m := newMatcher(np)
	now := f.now()

	var scored []model.ScoredItem
	for _, it := range items {
		if !f.passesQuality(it) {
			continue
		}
		rel := m.relevance(it)
		if rel < f.threshold {
			continue
		}
		s := model.ScoredItem{RawItem: it, Relevance: rel, Recency: recency(it.PublishedAt, now)}
		s.Importance = importance(s, analysisType)
		s.Combined = (s.Relevance + s.Importance) / 2
		scored = append(scored, s)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Combined > scored[j].Combined
	})

	out := Dedup(scored)
	if limit := resultCaps[analysisType]; len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *ContentFilter) passesQuality(it model.RawItem) bool {
	if strings.TrimSpace(it.Title) == "" || strings.TrimSpace(it.Source) == "" {
		return false
	}
	if utf8.RuneCountInString(strings.TrimSpace(it.Content)) < f.minContentLength {
		return false
	}
	if len(f.blocked) == 0 {
		return true
	}
	if f.blocked[strings.ToLower(it.Source)] || f.blocked[string(it.SourceType)] {
		return false
	}
	host := hostname(it.URL)
	return host == "" || !f.blocked[host]
}

// matcher holds the per-profile lookup phrases used for relevance scoring.
type matcher struct {
	industry     []string
	jurisdiction []string
	keywords     []string
	trusted      []string
}

func newMatcher(np model.NormalizedProfile) matcher {
	return matcher{
		industry:     aliasesFor(np.Industry, industryOrder, industryTerms),
		jurisdiction: aliasesFor(np.Jurisdiction, jurisdictionOrder, jurisdictionTerms),
		keywords:     np.Keywords,
		trusted:      np.TrustedSources,
	}
}

func (m matcher) relevance(it model.RawItem) float64 {
	padded := padTokens(it.Title + " " + it.Content)

	score := weightHint * clamp01(it.RelevanceHint)
	if anyPhrase(padded, m.industry) {
		score += weightIndustry
	}
	if anyPhrase(padded, m.jurisdiction) {
		score += weightJurisdiction
	}
	hits := 0
	for _, kw := range m.keywords {
		if containsPhrase(padded, kw) {
			hits++
		}
	}
	score += math.Min(weightKeywordHit*float64(hits), maxKeywordWeight)
	score += weightSource * sourceWeight(it.SourceType)
	if m.isTrusted(it) {
		score += weightTrusted
	}
	return clamp01(score)
}

// isTrusted matches the item's host, or its source name, against the
// profile's trusted sources. "sec.gov" trusts "www.sec.gov".
func (m matcher) isTrusted(it model.RawItem) bool {
	host := hostname(it.URL)
	src := strings.ToLower(it.Source)
	for _, t := range m.trusted {
		t = strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(t, "https://"), "http://"), "www.")
		t = strings.TrimSuffix(t, "/")
		if t == "" {
			continue
		}
		if src == t || host == t || strings.HasSuffix(host, "."+t) {
			return true
		}
	}
	return false
}

func anyPhrase(padded string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(padded, p) {
			return true
		}
	}
	return false
}

func sourceWeight(st model.SourceType) float64 {
	if w, ok := sourceWeights[st]; ok {
		return w
	}
	return sourceWeights[model.SourceOther]
}

func importance(s model.ScoredItem, at model.AnalysisType) float64 {
	n := utf8.RuneCountInString(s.Content)
	score := 0.5 * sourceWeight(s.SourceType)
	switch {
	case n <= 200:
		score += 0.05
	case n <= 500:
		score += 0.1
	case n <= 1000:
		score += 0.2
	default:
		score += 0.3
	}
	switch at {
	case model.AnalysisComprehensive:
		if n > 1000 {
			score += 0.1
		}
	case model.AnalysisTargeted:
		if s.Relevance > 0.8 {
			score += 0.15
		}
	case model.AnalysisMonitoring:
		if s.Recency >= 0.8 {
			score += 0.1
		}
	}
	return clamp01(score)
}

// recency buckets the publication age. Unknown dates score 0.5.
func recency(published *time.Time, now time.Time) float64 {
	if published == nil || published.IsZero() {
		return 0.5
	}
	age := now.Sub(*published)
	const day = 24 * time.Hour
	switch {
	case age <= 7*day:
		return 1.0
	case age <= 30*day:
		return 0.8
	case age <= 90*day:
		return 0.6
	case age <= 365*day:
		return 0.4
	default:
		return 0.2
	}
}

// Dedup keeps the first of any items sharing a normalized URL, and drops
// items whose title is more than 80% similar to a kept title. Applying it
// twice gives the same result as applying it once.
func Dedup(items []model.ScoredItem) []model.ScoredItem {
	seenURL := make(map[string]bool)
	var keptTitles []map[string]struct{}
	out := make([]model.ScoredItem, 0, len(items))

	for _, it := range items {
		if u := normalizeURL(it.URL); u != "" {
			if seenURL[u] {
				continue
			}
		}
		title := textutil.TokenSet(it.Title)
		dup := false
		for _, kt := range keptTitles {
			if textutil.Jaccard(title, kt) > titleSimilarityLimit {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if u := normalizeURL(it.URL); u != "" {
			seenURL[u] = true
		}
		keptTitles = append(keptTitles, title)
		out = append(out, it)
	}
	return out
}

// normalizeURL lower-cases the host, drops "www.", the fragment, the
// scheme and any trailing slash.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.ToLower(raw), "/")
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	out := host + path
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}

func hostname(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}
