package pipeline

import (
	"fmt"
	"time"

	"github.com/sells-group/regintel/internal/model"
)

// FallbackChange builds the rule-based analysis of item, used whenever no
// model reply covers it. Risk and confidence follow the source type.
func FallbackChange(item model.ScoredItem, np model.NormalizedProfile, now time.Time) model.RegulatoryChange {
	risk, confidence := fallbackRisk(item.SourceType)
	return model.RegulatoryChange{
		Title:                  "Regulatory Update: " + item.Title,
		Summary:                fmt.Sprintf("Regulatory change identified from %s that may affect %s.", item.Source, orDefault(np.CompanyName, "the company")),
		ImpactAssessment:       fmt.Sprintf("This regulation may impact %s operations and compliance requirements.", orDefault(np.Industry, "the company")),
		RiskLevel:              risk,
		ConfidenceScore:        confidence,
		ComplianceRequirements: fallbackRequirements(np),
		ImplementationTimeline: "Immediate review recommended, implementation within 90 days.",
		RelevantSections:       []string{"Section 1", "Section 2"},
		AffectedAreas:          []string{"Operations", "Compliance"},
		ActionItems: []string{
			"Review current compliance procedures",
			"Assess impact on operations",
			"Update documentation as needed",
			"Train staff on new requirements",
		},
		SourceURL:   item.URL,
		SourceTitle: item.Title,
		SourceType:  item.SourceType,
		Fallback:    true,
		AnalyzedAt:  now,
	}
}

func fallbackRisk(st model.SourceType) (model.RiskLevel, float64) {
	switch st {
	case model.SourceGovernment:
		return model.RiskHigh, 0.9
	case model.SourceRegulatoryBody:
		return model.RiskHigh, 0.8
	case model.SourceLegal:
		return model.RiskMedium, 0.7
	default:
		return model.RiskLow, 0.6
	}
}

// fallbackRequirements fills the compliance templates from the profile.
func fallbackRequirements(np model.NormalizedProfile) []string {
	reqs := []string{"Review current practices and update compliance procedures as needed."}
	if np.Industry != "" {
		reqs = append(reqs, fmt.Sprintf("Confirm %s-specific obligations are met.", np.Industry))
	}
	if np.Jurisdiction != "" {
		reqs = append(reqs, fmt.Sprintf("Verify reporting duties in %s.", np.Jurisdiction))
	}
	return reqs
}
