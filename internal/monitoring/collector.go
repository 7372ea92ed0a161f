package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/store"
)

// MetricsSnapshot holds a point-in-time view of analysis health.
type MetricsSnapshot struct {
	// Reports created within the lookback window.
	ReportsTotal      int     `json:"reports_total"`
	ReportsCompleted  int     `json:"reports_completed"`
	ReportsFailed     int     `json:"reports_failed"`
	ReportsPending    int     `json:"reports_pending"`
	ReportsInProgress int     `json:"reports_in_progress"`
	FailureRate       float64 `json:"failure_rate"`

	// In-progress reports started before the stuck cutoff, at any age.
	StuckReports []string `json:"stuck_reports,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Active returns the number of pending and in-progress reports.
func (s *MetricsSnapshot) Active() int {
	return s.ReportsPending + s.ReportsInProgress
}

// ReportReader is the slice of store.Store the collector reads.
type ReportReader interface {
	CountReportsSince(ctx context.Context, since time.Time) (map[model.ReportStatus]int, error)
	ListReports(ctx context.Context, filter store.ReportFilter) ([]model.Report, error)
}

// Collector gathers report metrics from the store.
type Collector struct {
	store      ReportReader
	stuckAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a metrics collector. Runs in progress for longer
// than stuckAfter are reported as stuck; zero disables the check.
func NewCollector(st ReportReader, stuckAfter time.Duration) *Collector {
	return &Collector{store: st, stuckAfter: stuckAfter, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{LookbackHours: lookbackHours, CollectedAt: now}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	counts, err := c.store.CountReportsSince(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count reports")
	}
	snap.ReportsCompleted = counts[model.ReportCompleted]
	snap.ReportsFailed = counts[model.ReportFailed]
	snap.ReportsPending = counts[model.ReportPending]
	snap.ReportsInProgress = counts[model.ReportInProgress]
	snap.ReportsTotal = snap.ReportsCompleted + snap.ReportsFailed + snap.Active()
	if finished := snap.ReportsCompleted + snap.ReportsFailed; finished > 0 {
		snap.FailureRate = float64(snap.ReportsFailed) / float64(finished)
	}

	if c.stuckAfter > 0 {
		startedBefore := now.Add(-c.stuckAfter)
		stuck, err := c.store.ListReports(ctx, store.ReportFilter{
			Statuses:      []model.ReportStatus{model.ReportInProgress},
			StartedBefore: &startedBefore,
			Limit:         1000,
		})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list stuck reports")
		}
		for _, r := range stuck {
			snap.StuckReports = append(snap.StuckReports, r.ID)
		}
	}
	return snap, nil
}
