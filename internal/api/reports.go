package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/export"
	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/runner"
	"github.com/sells-group/regintel/internal/store"
)

type createReportRequest struct {
	CompanyProfileID string   `json:"company_profile_id"`
	UserID           string   `json:"user_id"`
	Title            string   `json:"title"`
	AnalysisType     string   `json:"analysis_type"`
	Scope            string   `json:"scope"`
	Keywords         []string `json:"keywords"`
}

func (s *Server) createReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CompanyProfileID) == "" {
		badRequest(w, "company_profile_id is required")
		return
	}
	if req.AnalysisType != "" && !model.AnalysisType(req.AnalysisType).Valid() {
		badRequest(w, fmt.Sprintf("unknown analysis_type %q", req.AnalysisType))
		return
	}

	profile, err := s.store.GetProfile(r.Context(), req.CompanyProfileID)
	if err != nil {
		writeError(w, err)
		return
	}

	report := &model.Report{
		UserID:           req.UserID,
		CompanyProfileID: profile.ID,
		Title:            req.Title,
		AnalysisType:     model.ParseAnalysisType(req.AnalysisType),
		Scope:            strings.TrimSpace(req.Scope),
		Keywords:         req.Keywords,
	}
	if report.Title == "" {
		report.Title = fmt.Sprintf("%s %s analysis", profile.CompanyName, report.AnalysisType)
	}
	s.launch(r.Context(), w, report)
}

// launch stores and submits report, answering 202 with the pending report.
func (s *Server) launch(ctx context.Context, w http.ResponseWriter, report *model.Report) {
	if err := runner.Launch(ctx, s.store, s.runner, report); err != nil {
		writeError(w, err)
		return
	}
	zap.L().Info("api: analysis submitted",
		zap.String("report_id", report.ID),
		zap.String("analysis_type", string(report.AnalysisType)),
	)
	writeJSON(w, http.StatusAccepted, report)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type progressResponse struct {
	ReportID           string             `json:"report_id"`
	Status             model.ReportStatus `json:"status"`
	ProgressPercentage int                `json:"progress_percentage"`
	CurrentStage       string             `json:"current_stage"`
	Error              string             `json:"error,omitempty"`
}

func (s *Server) reportProgress(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{
		ReportID:           report.ID,
		Status:             report.Status,
		ProgressPercentage: report.ProgressPercentage,
		CurrentStage:       report.CurrentStage,
		Error:              report.Error,
	})
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ReportFilter{
		UserID:    q.Get("user_id"),
		ProfileID: q.Get("company_profile_id"),
	}
	for _, st := range q["status"] {
		filter.Statuses = append(filter.Statuses, model.ReportStatus(st))
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	reports, err := s.store.ListReports(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) activeReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListReports(r.Context(), store.ReportFilter{
		Statuses: []model.ReportStatus{model.ReportPending, model.ReportInProgress},
		UserID:   r.URL.Query().Get("user_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(reports), "reports": reports})
}

func (s *Server) deleteReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	// A running analysis would write into a deleted report.
	if report.Status == model.ReportInProgress {
		writeError(w, store.ErrInvalidTransition)
		return
	}
	if err := s.store.DeleteReport(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reportChanges(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetReport(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	changes, err := s.store.ListChanges(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if changes == nil {
		changes = []model.RegulatoryChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) exportReport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
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

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report-%s.%s"`, report.ID, format))
	if err := export.Write(w, format, *report, changes); err != nil {
		zap.L().Error("api: export report", zap.String("report_id", report.ID), zap.Error(err))
	}
}

// retryReport re-submits a failed report as a new pending report with the
// same parameters. The failed report is left untouched.
func (s *Server) retryReport(w http.ResponseWriter, r *http.Request) {
	prev, err := s.store.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	next, ok := prev.Retry()
	if !ok {
		writeError(w, store.ErrInvalidTransition)
		return
	}
	s.launch(r.Context(), w, next)
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
