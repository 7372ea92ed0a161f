package model

import (
	"fmt"
	"sort"
	"time"
)

// Timeline event types.
const (
	EventReportCreated   = "report_created"
	EventAnalysisStarted = "analysis_started"
	EventChangeFound     = "regulatory_change_found"
	EventAnalysisDone    = "analysis_completed"
	EventAnalysisFailed  = "analysis_failed"
)

// TimelineEvent is one dated step in the history of a report.
type TimelineEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   string         `json:"event_type"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data"`
}

// Timeline orders the lifecycle of r and the changes it found by time.
// Events with equal timestamps keep lifecycle order.
func Timeline(r *Report, changes []RegulatoryChange) []TimelineEvent {
	reportData := func() map[string]any {
		return map[string]any{"report_id": r.ID, "status": r.Status}
	}

	events := []TimelineEvent{{
		Timestamp:   r.CreatedAt,
		EventType:   EventReportCreated,
		Description: fmt.Sprintf("Analysis '%s' was created", r.Title),
		Data:        reportData(),
	}}
	if r.StartedAt != nil {
		events = append(events, TimelineEvent{
			Timestamp:   *r.StartedAt,
			EventType:   EventAnalysisStarted,
			Description: fmt.Sprintf("Analysis '%s' started", r.Title),
			Data:        reportData(),
		})
	}
	for _, c := range changes {
		events = append(events, TimelineEvent{
			Timestamp:   c.AnalyzedAt,
			EventType:   EventChangeFound,
			Description: "New regulatory change: " + c.Title,
			Data: map[string]any{
				"change_id":        c.ID,
				"risk_level":       c.RiskLevel,
				"confidence_score": c.ConfidenceScore,
			},
		})
	}
	if r.CompletedAt != nil {
		ev := TimelineEvent{
			Timestamp:   *r.CompletedAt,
			EventType:   EventAnalysisDone,
			Description: fmt.Sprintf("Analysis '%s' was completed", r.Title),
			Data:        reportData(),
		}
		if r.Status == ReportFailed {
			ev.EventType = EventAnalysisFailed
			ev.Description = fmt.Sprintf("Analysis '%s' failed", r.Title)
			ev.Data["error"] = r.Error
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}
