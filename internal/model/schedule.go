package model

import "time"

// Frequency is how often a scheduled analysis repeats.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// Interval returns the spacing between runs. Months are 30 days and
// quarters 90 days. Unknown values fall back to weekly.
func (f Frequency) Interval() time.Duration {
	const day = 24 * time.Hour
	switch f {
	case FrequencyDaily:
		return day
	case FrequencyMonthly:
		return 30 * day
	case FrequencyQuarterly:
		return 90 * day
	default:
		return 7 * day
	}
}

// Schedule triggers a recurring analysis for a company profile.
type Schedule struct {
	ID               string       `json:"id"`
	UserID           string       `json:"user_id,omitempty"`
	CompanyProfileID string       `json:"company_profile_id"`
	Name             string       `json:"name"`
	Frequency        Frequency    `json:"frequency"`
	AnalysisType     AnalysisType `json:"analysis_type"`
	Active           bool         `json:"active"`
	LastRun          *time.Time   `json:"last_run,omitempty"`
	NextRun          time.Time    `json:"next_run"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Advance returns the next run time after a run at t.
func (s Schedule) Advance(t time.Time) time.Time {
	return t.Add(s.Frequency.Interval())
}
