package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/scheduler"
)

type createScheduleRequest struct {
	CompanyProfileID string `json:"company_profile_id"`
	UserID           string `json:"user_id"`
	Name             string `json:"name"`
	Frequency        string `json:"frequency"`
	AnalysisType     string `json:"analysis_type"`
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CompanyProfileID) == "" {
		badRequest(w, "company_profile_id is required")
		return
	}
	freq := model.Frequency(strings.ToLower(req.Frequency))
	switch freq {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly, model.FrequencyQuarterly:
	case "":
		freq = model.FrequencyWeekly
	default:
		badRequest(w, fmt.Sprintf("unknown frequency %q", req.Frequency))
		return
	}

	profile, err := s.store.GetProfile(r.Context(), req.CompanyProfileID)
	if err != nil {
		writeError(w, err)
		return
	}

	sched := &model.Schedule{
		UserID:           req.UserID,
		CompanyProfileID: profile.ID,
		Name:             req.Name,
		Frequency:        freq,
		AnalysisType:     model.AnalysisType(strings.ToLower(req.AnalysisType)),
		Active:           true,
	}
	if sched.Name == "" {
		sched.Name = fmt.Sprintf("%s %s monitoring", profile.CompanyName, freq)
	}
	if err := s.store.CreateSchedule(r.Context(), sched); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.store.ListSchedules(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		writeError(w, err)
		return
	}
	if schedules == nil {
		schedules = []model.Schedule{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (s *Server) setScheduleActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Active == nil {
		badRequest(w, "active is required")
		return
	}
	if err := s.store.SetScheduleActive(r.Context(), chi.URLParam(r, "id"), *req.Active); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.store.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// runSchedule starts the schedule now and pushes its next run out by one
// period.
func (s *Server) runSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.store.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !sched.Active {
		badRequest(w, "schedule is not active")
		return
	}
	now := s.now().UTC()
	if err := scheduler.Trigger(r.Context(), s.store, s.runner, *sched, now); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"schedule_id": sched.ID,
		"next_run":    sched.Advance(now),
	})
}
