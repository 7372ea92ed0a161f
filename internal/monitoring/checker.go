package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/store"
)

// ReportFailer marks a report failed. store.Store satisfies it.
type ReportFailer interface {
	FailReport(ctx context.Context, id string, message string) error
}

// Checker collects metrics on an interval, sends alerts and, when given a
// ReportFailer, fails reports that have been in progress past the stuck
// cutoff so they stop counting as active.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	failer    ReportFailer
	cfg       config.MonitoringConfig

	mu   sync.RWMutex
	last *MetricsSnapshot
}

// NewChecker creates a background checker. A nil failer leaves stuck
// reports untouched.
func NewChecker(collector *Collector, alerter *Alerter, failer ReportFailer, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		failer:    failer,
		cfg:       cfg,
	}
}

// Run checks immediately, then on every interval, until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting report checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
		zap.Bool("fail_stuck", c.failer != nil),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			c.Check(ctx)
		}
		select {
		case <-ctx.Done():
			log.Info("report checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects one snapshot, sends the alerts it triggers and fails stuck
// reports. It returns the number of alerts sent.
func (c *Checker) Check(ctx context.Context) int {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		zap.L().Error("monitoring: collect metrics", zap.Error(err))
		return 0
	}
	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()

	sent := 0
	if alerts := c.alerter.Evaluate(snap); len(alerts) > 0 {
		sent = c.alerter.SendAlerts(ctx, alerts)
		zap.L().Info("monitoring: alerts triggered",
			zap.Int("alerts_triggered", len(alerts)),
			zap.Int("alerts_sent", sent),
		)
	}

	if c.failer != nil && len(snap.StuckReports) > 0 {
		c.failStuck(ctx, snap.StuckReports)
	}
	return sent
}

func (c *Checker) failStuck(ctx context.Context, ids []string) {
	msg := fmt.Sprintf("analysis did not finish within %d minutes", c.cfg.StuckAfterMins)
	for _, id := range ids {
		err := c.failer.FailReport(ctx, id, msg)
		switch {
		case err == nil:
			zap.L().Warn("monitoring: failed stuck report", zap.String("report_id", id))
		case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrNotFound):
			// Finished or deleted since the snapshot.
		default:
			zap.L().Error("monitoring: fail stuck report", zap.String("report_id", id), zap.Error(err))
		}
	}
}

// Last returns the most recent snapshot, or nil before the first check.
func (c *Checker) Last() *MetricsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
