package store

import (
	"context"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/sells-group/regintel/internal/model"
)

var (
	// ErrNotFound is returned when a referenced profile, report or schedule
	// does not exist.
	ErrNotFound = eris.New("store: not found")

	// ErrInvalidTransition is returned when a report status change is not
	// allowed from its current state.
	ErrInvalidTransition = eris.New("store: invalid report status transition")

	// ErrProfileInUse is returned when deleting a profile that still has
	// pending or in-progress reports.
	ErrProfileInUse = eris.New("store: profile has active reports")
)

// ReportFilter specifies criteria for listing reports.
type ReportFilter struct {
	Statuses      []model.ReportStatus `json:"statuses,omitempty"`
	UserID        string               `json:"user_id,omitempty"`
	ProfileID     string               `json:"company_profile_id,omitempty"`
	StartedBefore *time.Time           `json:"started_before,omitempty"`
	Limit         int                  `json:"limit,omitempty"`
	Offset        int                  `json:"offset,omitempty"`
}

// ChangeFilter specifies criteria for listing regulatory changes across
// reports. Since bounds analyzed_at.
type ChangeFilter struct {
	UserID    string          `json:"user_id,omitempty"`
	ProfileID string          `json:"company_profile_id,omitempty"`
	RiskLevel model.RiskLevel `json:"risk_level,omitempty"`
	Since     *time.Time      `json:"since,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// AnalysisStats summarizes reports and changes over a trailing window.
type AnalysisStats struct {
	PeriodDays            int                     `json:"period_days"`
	TotalReports          int                     `json:"total_reports"`
	CompletedReports      int                     `json:"completed_reports"`
	CompletionRate        float64                 `json:"completion_rate"`
	TotalChanges          int                     `json:"total_regulatory_changes"`
	RiskLevelDistribution map[model.RiskLevel]int `json:"risk_level_distribution"`
	AverageConfidence     float64                 `json:"average_confidence_score"`
	ReportsPerDay         float64                 `json:"reports_per_day"`
	ChangesPerReport      float64                 `json:"changes_per_report"`

	confidenceSum float64
	scored        int
}

// Store defines the persistence gateway for profiles, reports, regulatory
// changes and schedules.
type Store interface {
	// Profiles
	CreateProfile(ctx context.Context, p *model.CompanyProfile) error
	UpsertProfiles(ctx context.Context, profiles []model.CompanyProfile) (int64, error)
	GetProfile(ctx context.Context, id string) (*model.CompanyProfile, error)
	ListProfiles(ctx context.Context, userID string) ([]model.CompanyProfile, error)
	UpdateProfile(ctx context.Context, p *model.CompanyProfile) error
	// DeleteProfile removes a profile with its schedules, finished reports
	// and their changes. It refuses while any report is still active.
	DeleteProfile(ctx context.Context, id string) error

	// Reports
	CreateReport(ctx context.Context, r *model.Report) error
	GetReport(ctx context.Context, id string) (*model.Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error)
	CountReportsSince(ctx context.Context, since time.Time) (map[model.ReportStatus]int, error)
	DeleteReport(ctx context.Context, id string) error
	DeleteReportsBefore(ctx context.Context, cutoff time.Time, statuses []model.ReportStatus) (int, error)

	// Report lifecycle. StartReport is the atomic pending -> in_progress
	// transition; CompleteReport writes every change and the completed state
	// in one transaction.
	StartReport(ctx context.Context, id string) error
	UpdateReportProgress(ctx context.Context, id string, pct int, stage string) error
	CompleteReport(ctx context.Context, id string, changes []model.RegulatoryChange) error
	FailReport(ctx context.Context, id string, message string) error

	// Regulatory changes
	ListChanges(ctx context.Context, reportID string) ([]model.RegulatoryChange, error)
	ListChangeHistory(ctx context.Context, filter ChangeFilter) ([]model.RegulatoryChange, error)

	// Statistics over the last days days, optionally for one user.
	AnalysisStats(ctx context.Context, userID string, days int) (*AnalysisStats, error)

	// Schedules
	CreateSchedule(ctx context.Context, s *model.Schedule) error
	GetSchedule(ctx context.Context, id string) (*model.Schedule, error)
	ListSchedules(ctx context.Context, activeOnly bool) ([]model.Schedule, error)
	DueSchedules(ctx context.Context, now time.Time) ([]model.Schedule, error)
	MarkScheduleRun(ctx context.Context, id string, ranAt, nextRun time.Time) error
	SetScheduleActive(ctx context.Context, id string, active bool) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// activeStatuses are the non-terminal report states.
var activeStatuses = []string{string(model.ReportPending), string(model.ReportInProgress)}

func statusStrings(in []model.ReportStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func defaultLimit(n int) uint64 {
	if n <= 0 {
		return 100
	}
	return uint64(n)
}

func clampPercent(pct int) int {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// DefaultStatsDays is the statistics window when none is given.
const DefaultStatsDays = 30

func statsDays(days int) int {
	if days <= 0 {
		return DefaultStatsDays
	}
	return days
}

// reportStatsQuery counts reports by status created since the window start.
func reportStatsQuery(b sq.StatementBuilderType, userID string, since time.Time) sq.SelectBuilder {
	q := b.Select("status", "count(*)").From("reports").
		Where(sq.GtOrEq{"created_at": since}).
		GroupBy("status")
	if userID != "" {
		q = q.Where(sq.Eq{"user_id": userID})
	}
	return q
}

// changeStatsQuery aggregates changes per risk level. Zero confidence
// scores are left out of the average.
func changeStatsQuery(b sq.StatementBuilderType, userID string, since time.Time) sq.SelectBuilder {
	q := b.Select("c.risk_level", "count(*)",
		"coalesce(sum(c.confidence_score), 0)",
		"coalesce(sum(CASE WHEN c.confidence_score > 0 THEN 1 ELSE 0 END), 0)").
		From("regulatory_changes c").
		Join("reports r ON r.id = c.report_id").
		Where(sq.GtOrEq{"c.analyzed_at": since}).
		GroupBy("c.risk_level")
	if userID != "" {
		q = q.Where(sq.Eq{"r.user_id": userID})
	}
	return q
}

func (st *AnalysisStats) addStatus(status model.ReportStatus, n int) {
	st.TotalReports += n
	if status == model.ReportCompleted {
		st.CompletedReports += n
	}
}

func (st *AnalysisStats) addRisk(risk string, n int, sum float64, scored int) {
	level := model.RiskLevel(risk)
	if level == "" {
		level = "unknown"
	}
	st.RiskLevelDistribution[level] += n
	st.TotalChanges += n
	st.confidenceSum += sum
	st.scored += scored
}

// finish derives the rates from the raw counts.
func (st *AnalysisStats) finish() {
	if st.TotalReports > 0 {
		st.CompletionRate = round2(float64(st.CompletedReports) / float64(st.TotalReports) * 100)
		st.ChangesPerReport = round2(float64(st.TotalChanges) / float64(st.TotalReports))
	}
	if st.scored > 0 {
		st.AverageConfidence = round2(st.confidenceSum / float64(st.scored))
	}
	st.ReportsPerDay = round2(float64(st.TotalReports) / float64(st.PeriodDays))
}

func newAnalysisStats(days int) *AnalysisStats {
	return &AnalysisStats{PeriodDays: days, RiskLevelDistribution: make(map[model.RiskLevel]int)}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// changeHistoryQuery selects changes joined to their report for filter.
func changeHistoryQuery(b sq.StatementBuilderType, filter ChangeFilter) sq.SelectBuilder {
	cols := make([]string, len(changeColumns))
	for i, c := range changeColumns {
		cols[i] = "c." + c
	}
	q := b.Select(cols...).From("regulatory_changes c").
		Join("reports r ON r.id = c.report_id").
		OrderBy("c.analyzed_at DESC", "c.id").
		Limit(defaultLimit(filter.Limit))
	if filter.UserID != "" {
		q = q.Where(sq.Eq{"r.user_id": filter.UserID})
	}
	if filter.ProfileID != "" {
		q = q.Where(sq.Eq{"r.company_profile_id": filter.ProfileID})
	}
	if filter.RiskLevel != "" {
		q = q.Where(sq.Eq{"c.risk_level": string(filter.RiskLevel)})
	}
	if filter.Since != nil {
		q = q.Where(sq.GtOrEq{"c.analyzed_at": filter.Since.UTC()})
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}
