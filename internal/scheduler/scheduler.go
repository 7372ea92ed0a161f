// Package scheduler starts due recurring analyses and removes expired
// reports.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/runner"
	"github.com/sells-group/regintel/internal/store"
)

// Scheduler polls for due schedules and expired reports on a fixed
// interval.
type Scheduler struct {
	store     store.Store
	runner    runner.Runner
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// New creates a Scheduler. A zero retention disables cleanup.
func New(st store.Store, r runner.Runner, cfg config.SchedulerConfig) *Scheduler {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		store:     st,
		runner:    r,
		interval:  interval,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// Run ticks until ctx is cancelled. The first tick runs immediately.
func (s *Scheduler) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "scheduler"))
	log.Info("starting scheduler",
		zap.Duration("interval", s.interval),
		zap.Duration("retention", s.retention),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick runs due schedules and the retention cleanup once. Errors are
// logged.
func (s *Scheduler) Tick(ctx context.Context) {
	if n, err := s.RunDue(ctx); err != nil {
		zap.L().Error("scheduler: run due schedules", zap.Error(err))
	} else if n > 0 {
		zap.L().Info("scheduler: scheduled analyses submitted", zap.Int("count", n))
	}
	if s.retention > 0 {
		if n, err := s.Cleanup(ctx); err != nil {
			zap.L().Error("scheduler: cleanup", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("scheduler: expired reports deleted", zap.Int("count", n))
		}
	}
}

// RunDue creates and submits a report for every due schedule and advances
// its next run. A schedule whose report cannot be submitted is left due
// and retried on the next tick. When the runner reports no free slots the
// remaining schedules are left due without creating reports.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.DueSchedules(ctx, now)
	if err != nil {
		return 0, eris.Wrap(err, "scheduler: list due schedules")
	}

	capacity, bounded := s.runner.(runner.Capacity)
	started := 0
	for i, sched := range due {
		if ctx.Err() != nil {
			return started, ctx.Err()
		}
		if bounded && capacity.Free() == 0 {
			zap.L().Info("scheduler: runner full, deferring schedules",
				zap.Int("deferred", len(due)-i),
			)
			break
		}
		if err := s.start(ctx, sched, now); err != nil {
			zap.L().Warn("scheduler: schedule not started",
				zap.String("schedule_id", sched.ID),
				zap.Error(err),
			)
			continue
		}
		started++
	}
	return started, nil
}

func (s *Scheduler) start(ctx context.Context, sched model.Schedule, now time.Time) error {
	return Trigger(ctx, s.store, s.runner, sched, now)
}

// Trigger starts one run of sched as of now and advances its next run.
func Trigger(ctx context.Context, st store.Store, r runner.Runner, sched model.Schedule, now time.Time) error {
	report := &model.Report{
		UserID:           sched.UserID,
		CompanyProfileID: sched.CompanyProfileID,
		Title:            fmt.Sprintf("%s (%s)", sched.Name, now.Format("2006-01-02")),
		AnalysisType:     model.ParseAnalysisType(string(sched.AnalysisType)),
	}
	if err := runner.Launch(ctx, st, r, report); err != nil {
		return eris.Wrap(err, "scheduler: start report")
	}
	if err := st.MarkScheduleRun(ctx, sched.ID, now, sched.Advance(now)); err != nil {
		return eris.Wrap(err, "scheduler: mark schedule run")
	}
	return nil
}

// Cleanup deletes completed and failed reports older than the retention
// period. Active reports are never removed.
func (s *Scheduler) Cleanup(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.retention)
	n, err := s.store.DeleteReportsBefore(ctx, cutoff, []model.ReportStatus{model.ReportCompleted, model.ReportFailed})
	if err != nil {
		return 0, eris.Wrap(err, "scheduler: delete expired reports")
	}
	return n, nil
}
