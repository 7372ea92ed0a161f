package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/store"
)

// changeHistory lists regulatory changes across reports, newest first.
func (s *Server) changeHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ChangeFilter{
		UserID:    q.Get("user_id"),
		ProfileID: q.Get("company_profile_id"),
	}
	if raw := q.Get("risk_level"); raw != "" {
		level, ok := model.ParseRiskLevel(raw)
		if !ok {
			badRequest(w, "risk_level must be low, medium, high or critical")
			return
		}
		filter.RiskLevel = level
	}

	days, ok := intParam(w, q.Get("days"), "days")
	if !ok {
		return
	}
	if days > 0 {
		since := s.now().UTC().AddDate(0, 0, -days)
		filter.Since = &since
	}
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	changes, err := s.store.ListChangeHistory(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if changes == nil {
		changes = []model.RegulatoryChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(w, r.URL.Query().Get("days"), "days")
	if !ok {
		return
	}
	stats, err := s.store.AnalysisStats(r.Context(), r.URL.Query().Get("user_id"), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type timelineResponse struct {
	ReportID    string                `json:"report_id"`
	Timeline    []model.TimelineEvent `json:"timeline"`
	TotalEvents int                   `json:"total_events"`
}

func (s *Server) reportTimeline(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	changes, err := s.store.ListChanges(r.Context(), report.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	events := model.Timeline(report, changes)
	writeJSON(w, http.StatusOK, timelineResponse{
		ReportID:    report.ID,
		Timeline:    events,
		TotalEvents: len(events),
	})
}
