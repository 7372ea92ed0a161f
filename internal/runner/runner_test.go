package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/model"
)

type fakeAnalyzer struct {
	mu      sync.Mutex
	reports []string
	calls   atomic.Int32
	block   chan struct{}
	err     error
	sawDone atomic.Bool
}

func (f *fakeAnalyzer) RunAnalysis(ctx context.Context, req model.AnalysisRequest) error {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			f.sawDone.Store(true)
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.reports = append(f.reports, req.ReportID)
	f.mu.Unlock()
	return f.err
}

func (f *fakeAnalyzer) Reports() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reports...)
}

func TestLocal_RunsSubmitted(t *testing.T) {
	t.Parallel()
	a := &fakeAnalyzer{}
	r, err := NewLocal(a, 2, time.Minute)
	require.NoError(t, err)

	for _, id := range []string{"r1", "r2", "r3"} {
		require.Eventually(t, func() bool {
			return r.Submit(context.Background(), model.AnalysisRequest{ReportID: id}) == nil
		}, time.Second, 5*time.Millisecond)
	}
	require.NoError(t, r.Close(context.Background()))
	assert.ElementsMatch(t, []string{"r1", "r2", "r3"}, a.Reports())
}

func TestLocal_BusyWhenFull(t *testing.T) {
	t.Parallel()
	a := &fakeAnalyzer{block: make(chan struct{})}
	r, err := NewLocal(a, 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, r.Submit(context.Background(), model.AnalysisRequest{ReportID: "r1"}))
	require.Eventually(t, func() bool { return a.calls.Load() == 1 }, time.Second, time.Millisecond)

	err = r.Submit(context.Background(), model.AnalysisRequest{ReportID: "r2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, r.Running())

	close(a.block)
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, []string{"r1"}, a.Reports())
}

func TestLocal_RunTimeout(t *testing.T) {
	t.Parallel()
	a := &fakeAnalyzer{block: make(chan struct{})}
	r, err := NewLocal(a, 1, 20*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, r.Submit(context.Background(), model.AnalysisRequest{ReportID: "slow"}))
	require.NoError(t, r.Close(context.Background()))
	assert.True(t, a.sawDone.Load())
}

func TestLocal_CloseCancelsAfterDeadline(t *testing.T) {
	t.Parallel()
	a := &fakeAnalyzer{block: make(chan struct{})}
	r, err := NewLocal(a, 1, time.Hour)
	require.NoError(t, err)
	require.NoError(t, r.Submit(context.Background(), model.AnalysisRequest{ReportID: "stuck"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = r.Close(ctx)
	require.Error(t, err)
	assert.True(t, a.sawDone.Load())

	assert.ErrorIs(t, r.Submit(context.Background(), model.AnalysisRequest{ReportID: "late"}), ErrClosed)
}

func TestLocal_SubmitRacingClose(t *testing.T) {
	t.Parallel()
	a := &fakeAnalyzer{}
	r, err := NewLocal(a, 4, time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var accepted atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := r.Submit(context.Background(), model.AnalysisRequest{ReportID: "r"})
				if err == nil {
					accepted.Add(1)
				} else if errors.Is(err, ErrClosed) {
					return
				}
			}
		}()
	}
	require.NoError(t, r.Close(context.Background()))
	wg.Wait()

	assert.Equal(t, accepted.Load(), a.calls.Load())
	assert.ErrorIs(t, r.Submit(context.Background(), model.AnalysisRequest{ReportID: "late"}), ErrClosed)
}

func TestLocal_Free(t *testing.T) {
	t.Parallel()
	a := &fakeAnalyzer{block: make(chan struct{})}
	r, err := NewLocal(a, 2, time.Minute)
	require.NoError(t, err)
	var c Capacity = r
	assert.Equal(t, 2, c.Free())

	require.NoError(t, r.Submit(context.Background(), model.AnalysisRequest{ReportID: "r1"}))
	require.Eventually(t, func() bool { return r.Free() == 1 }, time.Second, time.Millisecond)

	close(a.block)
	require.NoError(t, r.Close(context.Background()))
}

func TestNew_Modes(t *testing.T) {
	t.Parallel()
	r, err := New(&config.Config{}, &fakeAnalyzer{})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, r)
	require.NoError(t, r.Close(context.Background()))

	_, err = New(&config.Config{Runner: config.RunnerConfig{Mode: "cron"}}, &fakeAnalyzer{})
	assert.Error(t, err)
}

func TestAnalysisWorkflow_Success(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	a := &fakeAnalyzer{}
	env.RegisterActivity(&Activities{Analyzer: a})

	env.ExecuteWorkflow(AnalysisWorkflow, WorkflowInput{Request: model.AnalysisRequest{ReportID: "r1"}, RunTimeout: time.Minute})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, []string{"r1"}, a.Reports())
}

func TestAnalysisWorkflow_FailureNotRetried(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	a := &fakeAnalyzer{err: errors.New("pipeline failed")}
	env.RegisterActivity(&Activities{Analyzer: a})

	env.ExecuteWorkflow(AnalysisWorkflow, WorkflowInput{Request: model.AnalysisRequest{ReportID: "r1"}})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestAnalysisWorkflow_PassesRequest(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterActivity(&Activities{Analyzer: &fakeAnalyzer{}})

	req := model.AnalysisRequest{ReportID: "r9", ProfileID: "p1", AnalysisType: model.AnalysisTargeted, Keywords: []string{"AI"}}
	env.OnActivity(ActivityName, mock.Anything, req).Return(nil).Once()

	env.ExecuteWorkflow(AnalysisWorkflow, WorkflowInput{Request: req})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestWorkflowID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "regintel-report-abc", WorkflowID("abc"))
}
