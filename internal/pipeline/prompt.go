package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/textutil"
)

// buildPrompt renders the analysis request for one or more items. Items
// are numbered from 1 so the reply can refer back to them by item_index.
func buildPrompt(items []model.ScoredItem, np model.NormalizedProfile, at model.AnalysisType, maxContent int) string {
	var b strings.Builder

	b.WriteString("You are a regulatory compliance analyst. Analyze the following regulatory content for its impact on the company below.\n\n")
	b.WriteString("Company Context:\n")
	fmt.Fprintf(&b, "- Company: %s\n", orDefault(np.CompanyName, "Unknown"))
	fmt.Fprintf(&b, "- Industry: %s\n", orDefault(np.Industry, "Unknown"))
	fmt.Fprintf(&b, "- Jurisdiction: %s\n", orDefault(np.Jurisdiction, "Unknown"))
	fmt.Fprintf(&b, "- Size: %s\n", np.CompanySize)
	if np.Description != "" {
		fmt.Fprintf(&b, "- Description: %s\n", np.Description)
	}
	fmt.Fprintf(&b, "- Analysis Type: %s\n\n", at)

	b.WriteString("Regulatory Content:\n")
	for i, it := range items {
		fmt.Fprintf(&b, "Item %d\n", i+1)
		fmt.Fprintf(&b, "Source: %s\n", it.Source)
		fmt.Fprintf(&b, "Title: %s\n", it.Title)
		fmt.Fprintf(&b, "Content: %s\n", textutil.Truncate(it.Content, maxContent))
		fmt.Fprintf(&b, "URL: %s\n", it.URL)
		b.WriteString("---\n")
	}

	b.WriteString(`
For each item provide:
1. title: a clear, concise title for the regulatory change
2. summary: a brief summary of the change
3. impact_assessment: how this change affects the company
4. risk_level: one of low, medium, high or critical
5. confidence_score: a number between 0 and 1
6. compliance_requirements: the specific obligations introduced
7. implementation_timeline: when the company must act
8. relevant_sections: the sections or articles that apply
9. affected_areas: the business areas affected
10. action_items: concrete next steps for the company

Respond with JSON only, in the form:
{"changes": [{"item_index": 1, "title": "...", "summary": "...", "impact_assessment": "...", "risk_level": "medium", "confidence_score": 0.8, "compliance_requirements": ["..."], "implementation_timeline": "...", "relevant_sections": ["..."], "affected_areas": ["..."], "action_items": ["..."]}]}
`)
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
