package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ErrMissingCompanyName is returned when a profile has no company name.
var ErrMissingCompanyName = eris.New("model: company name is required")

// ReportStatus represents the lifecycle state of an analysis report.
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportInProgress ReportStatus = "in_progress"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
)

// Terminal reports whether s is an absorbing state.
func (s ReportStatus) Terminal() bool {
	return s == ReportCompleted || s == ReportFailed
}

// CanTransition reports whether a report in state s may move to next.
func (s ReportStatus) CanTransition(next ReportStatus) bool {
	switch s {
	case ReportPending:
		return next == ReportInProgress || next == ReportFailed
	case ReportInProgress:
		return next == ReportCompleted || next == ReportFailed
	default:
		return false
	}
}

// Stage names used for progress checkpoints.
const (
	StageQueued           = "queued"
	StageStarting         = "starting"
	StageQueryGeneration  = "query_generation"
	StageDataAcquisition  = "data_acquisition"
	StageContentFiltering = "content_filtering"
	StageAIAnalysis       = "ai_analysis"
	StageCompleted        = "completed"
	StageFailed           = "failed"
)

// Report is a single analysis run and the owner of its regulatory changes.
type Report struct {
	ID                 string       `json:"id"`
	UserID             string       `json:"user_id,omitempty"`
	CompanyProfileID   string       `json:"company_profile_id"`
	Title              string       `json:"title"`
	Status             ReportStatus `json:"status"`
	AnalysisType       AnalysisType `json:"analysis_type"`
	Scope              string       `json:"scope,omitempty"`
	Keywords           []string     `json:"keywords,omitempty"`
	ProgressPercentage int          `json:"progress_percentage"`
	CurrentStage       string       `json:"current_stage,omitempty"`
	Error              string       `json:"error,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	StartedAt          *time.Time   `json:"started_at,omitempty"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
}

// Retry returns a new report carrying the parameters of r. Only failed
// reports can be retried; r itself stays failed.
func (r *Report) Retry() (*Report, bool) {
	if r.Status != ReportFailed {
		return nil, false
	}
	return &Report{
		UserID:           r.UserID,
		CompanyProfileID: r.CompanyProfileID,
		Title:            r.Title + " (retry)",
		AnalysisType:     r.AnalysisType,
		Scope:            r.Scope,
		Keywords:         append([]string(nil), r.Keywords...),
	}, true
}

// RiskLevel is the assessed impact of a regulatory change.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel returns the risk level named by s and whether it was known.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch r := RiskLevel(s); r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return r, true
	}
	return "", false
}

// RegulatoryChange is one detected regulatory update and its assessed
// impact on a company. Immutable once written.
type RegulatoryChange struct {
	ID                     string     `json:"id"`
	ReportID               string     `json:"report_id"`
	Title                  string     `json:"title"`
	Summary                string     `json:"summary"`
	ImpactAssessment       string     `json:"impact_assessment,omitempty"`
	RiskLevel              RiskLevel  `json:"risk_level"`
	ConfidenceScore        float64    `json:"confidence_score"`
	ComplianceRequirements []string   `json:"compliance_requirements"`
	ImplementationTimeline string     `json:"implementation_timeline,omitempty"`
	RelevantSections       []string   `json:"relevant_sections,omitempty"`
	AffectedAreas          []string   `json:"affected_areas"`
	ActionItems            []string   `json:"action_items"`
	SourceURL              string     `json:"source_url,omitempty"`
	SourceTitle            string     `json:"source_title,omitempty"`
	SourceType             SourceType `json:"source_type,omitempty"`
	Fallback               bool       `json:"fallback"`
	AnalyzedAt             time.Time  `json:"analyzed_at"`
}

// ProgressEvent is an ephemeral progress notification for a report.
type ProgressEvent struct {
	ReportID   string    `json:"report_id"`
	Percentage int       `json:"percentage"`
	Stage      string    `json:"stage"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// CompletionSummary is sent when a report finishes successfully.
type CompletionSummary struct {
	ReportID    string       `json:"report_id"`
	Status      ReportStatus `json:"status"`
	ChangeCount int          `json:"change_count"`
	CompletedAt time.Time    `json:"completed_at"`
	Message     string       `json:"message"`
}
