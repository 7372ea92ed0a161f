package pipeline

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/regintel/internal/model"
)

// analysisResult is one entry of a model reply. Its fields tolerate the
// usual model drift: numbers sent as strings, lists sent as a single
// string and the reverse.
type analysisResult struct {
	ItemIndex              flexInt    `json:"item_index"`
	Title                  flexString `json:"title"`
	Summary                flexString `json:"summary"`
	ImpactAssessment       flexString `json:"impact_assessment"`
	RiskLevel              flexString `json:"risk_level"`
	ConfidenceScore        flexString `json:"confidence_score"`
	ComplianceRequirements flexList   `json:"compliance_requirements"`
	ImplementationTimeline flexString `json:"implementation_timeline"`
	RelevantSections       flexList   `json:"relevant_sections"`
	AffectedAreas          flexList   `json:"affected_areas"`
	ActionItems            flexList   `json:"action_items"`
}

// parseResponse extracts the outermost JSON object of text and decodes it
// as either {"changes": [...]} or a single change.
func parseResponse(text string) ([]analysisResult, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, eris.New("pipeline: no JSON object in analysis response")
	}
	raw := []byte(text[start : end+1])

	var wrapper struct {
		Changes []analysisResult `json:"changes"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Changes) > 0 {
		return wrapper.Changes, nil
	}

	var single analysisResult
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode analysis response")
	}
	if single.Title == "" && single.Summary == "" {
		return nil, eris.New("pipeline: analysis response has no changes")
	}
	return []analysisResult{single}, nil
}

// assign maps parsed results onto the n prompt items. Results carrying a
// valid item_index go to that item; the rest fill uncovered items in order.
func assign(results []analysisResult, n int) []*analysisResult {
	out := make([]*analysisResult, n)
	var unindexed []*analysisResult
	for i := range results {
		r := &results[i]
		idx := int(r.ItemIndex) - 1
		if idx >= 0 && idx < n && out[idx] == nil {
			out[idx] = r
			continue
		}
		unindexed = append(unindexed, r)
	}
	for i := range out {
		if out[i] == nil && len(unindexed) > 0 {
			out[i], unindexed = unindexed[0], unindexed[1:]
		}
	}
	return out
}

// toChange converts a parsed result into a change for item. Empty fields
// are filled from the fallback so a partial reply still yields a complete
// record.
func (r *analysisResult) toChange(item model.ScoredItem, fb model.RegulatoryChange) model.RegulatoryChange {
	c := fb
	c.Fallback = false
	if s := strings.TrimSpace(string(r.Title)); s != "" {
		c.Title = s
	}
	if s := strings.TrimSpace(string(r.Summary)); s != "" {
		c.Summary = s
	}
	if s := strings.TrimSpace(string(r.ImpactAssessment)); s != "" {
		c.ImpactAssessment = s
	}
	if s := strings.TrimSpace(string(r.ImplementationTimeline)); s != "" {
		c.ImplementationTimeline = s
	}
	c.RiskLevel = model.RiskMedium
	if rl, ok := model.ParseRiskLevel(strings.ToLower(strings.TrimSpace(string(r.RiskLevel)))); ok {
		c.RiskLevel = rl
	}
	c.ConfidenceScore = 0.5
	if v, err := strconv.ParseFloat(strings.TrimSpace(string(r.ConfidenceScore)), 64); err == nil {
		c.ConfidenceScore = clamp01(v)
	}
	if len(r.ComplianceRequirements) > 0 {
		c.ComplianceRequirements = r.ComplianceRequirements
	}
	if len(r.RelevantSections) > 0 {
		c.RelevantSections = r.RelevantSections
	}
	if len(r.AffectedAreas) > 0 {
		c.AffectedAreas = r.AffectedAreas
	}
	if len(r.ActionItems) > 0 {
		c.ActionItems = r.ActionItems
	}
	c.SourceURL = item.URL
	c.SourceTitle = item.Title
	c.SourceType = item.SourceType
	return c
}

// flexString accepts a string, a number or a list of strings.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*f = flexString(strings.Join(list, "; "))
		return nil
	}
	*f = flexString(strings.Trim(string(b), `"`))
	return nil
}

// flexList accepts a list of strings or a single string.
type flexList []string

func (f *flexList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var list []flexString
	if err := json.Unmarshal(b, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, s := range list {
			if v := strings.TrimSpace(string(s)); v != "" {
				out = append(out, v)
			}
		}
		*f = out
		return nil
	}
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if v := strings.TrimSpace(string(s)); v != "" {
		*f = []string{v}
	}
	return nil
}

// flexInt accepts an integer or a numeric string. Unparsable values are 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(bytes.TrimSpace(b)), `"`))
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = flexInt(v)
	}
	return nil
}
