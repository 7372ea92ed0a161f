package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/store"
)

type recordingFailer struct {
	mu     sync.Mutex
	failed map[string]string
	errFor map[string]error
}

func (f *recordingFailer) FailReport(_ context.Context, id, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errFor[id]; err != nil {
		return err
	}
	if f.failed == nil {
		f.failed = make(map[string]string)
	}
	f.failed[id] = msg
	return nil
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	st := &mockStore{}
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24, FailureRateThreshold: 0.10}
	checker := NewChecker(NewCollector(st, 0), NewAlerter(cfg, fastPolicy), nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return checker.Last() != nil }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_CancelledBeforeStart(t *testing.T) {
	checker := NewChecker(NewCollector(&mockStore{}, 0), NewAlerter(config.MonitoringConfig{}, fastPolicy), nil, config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
	assert.Nil(t, checker.Last())
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	st := &mockStore{counts: map[model.ReportStatus]int{model.ReportCompleted: 2, model.ReportFailed: 8}}
	cfg := config.MonitoringConfig{WebhookURL: ts.URL, LookbackWindowHours: 24, FailureRateThreshold: 0.25}
	checker := NewChecker(NewCollector(st, 0), NewAlerter(cfg, fastPolicy), nil, cfg)

	assert.Equal(t, 1, checker.Check(context.Background()))
	assert.Equal(t, int32(1), received.Load())
	require.NotNil(t, checker.Last())
	assert.InDelta(t, 0.8, checker.Last().FailureRate, 1e-9)
}

func TestChecker_FailsStuckReports(t *testing.T) {
	started := collectorNow.Add(-3 * time.Hour)
	st := &mockStore{reports: []model.Report{
		{ID: "stuck", Status: model.ReportInProgress, StartedAt: &started},
		{ID: "finished", Status: model.ReportInProgress, StartedAt: &started},
	}}
	failer := &recordingFailer{errFor: map[string]error{
		"finished": eris.Wrap(store.ErrInvalidTransition, "sqlite: fail report"),
	}}
	cfg := config.MonitoringConfig{LookbackWindowHours: 24, StuckAfterMins: 90}
	checker := NewChecker(newTestCollector(st, 90*time.Minute), NewAlerter(cfg, fastPolicy), failer, cfg)

	checker.Check(context.Background())

	assert.Equal(t, map[string]string{"stuck": "analysis did not finish within 90 minutes"}, failer.failed)
}
