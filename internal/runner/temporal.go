package runner

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/model"
)

// Workflow and activity names registered with Temporal.
const (
	WorkflowName = "RegulatoryAnalysis"
	ActivityName = "RunAnalysis"
)

// WorkflowInput is the payload of one analysis workflow.
type WorkflowInput struct {
	Request    model.AnalysisRequest `json:"request"`
	RunTimeout time.Duration         `json:"run_timeout"`
}

// AnalysisWorkflow runs the analysis activity once. Failed runs are not
// retried; the activity has already marked the report failed.
func AnalysisWorkflow(ctx workflow.Context, in WorkflowInput) error {
	timeout := in.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	workflow.GetLogger(ctx).Info("analysis workflow started", "report_id", in.Request.ReportID)
	return workflow.ExecuteActivity(ctx, ActivityName, in.Request).Get(ctx, nil)
}

// Activities exposes the orchestrator to Temporal workers.
type Activities struct {
	Analyzer Analyzer
}

// RunAnalysis executes the pipeline for req.
func (a *Activities) RunAnalysis(ctx context.Context, req model.AnalysisRequest) error {
	return a.Analyzer.RunAnalysis(ctx, req)
}

// Temporal submits analyses as workflows to a Temporal cluster.
type Temporal struct {
	client    client.Client
	taskQueue string
	timeout   time.Duration
}

// NewTemporal creates a Temporal runner over c.
func NewTemporal(c client.Client, taskQueue string, runTimeout time.Duration) *Temporal {
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	return &Temporal{client: c, taskQueue: taskQueue, timeout: runTimeout}
}

// WorkflowID is the workflow ID used for a report. One report maps to at
// most one running workflow.
func WorkflowID(reportID string) string {
	return "regintel-report-" + reportID
}

// Submit starts the analysis workflow for req.
func (t *Temporal) Submit(ctx context.Context, req model.AnalysisRequest) error {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(req.ReportID),
		TaskQueue: t.taskQueue,
		// Extra time for the workflow to schedule the activity.
		WorkflowExecutionTimeout: t.timeout + time.Minute,
	}
	run, err := t.client.ExecuteWorkflow(ctx, opts, WorkflowName, WorkflowInput{Request: req, RunTimeout: t.timeout})
	if err != nil {
		return eris.Wrapf(err, "runner: start workflow for report %s", req.ReportID)
	}
	zap.L().Info("runner: workflow started",
		zap.String("report_id", req.ReportID),
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
	)
	return nil
}

// Close closes the Temporal client.
func (t *Temporal) Close(context.Context) error {
	t.client.Close()
	return nil
}

// Dial connects to the Temporal frontend described by cfg.
func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    zapLogger{zap.L().Sugar()},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "runner: dial temporal %s", cfg.HostPort)
	}
	return c, nil
}

// NewWorker registers the analysis workflow and activity on taskQueue.
func NewWorker(c client.Client, taskQueue string, a Analyzer) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(AnalysisWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivity(&Activities{Analyzer: a})
	return w
}

// zapLogger adapts the global zap logger to Temporal's key-value logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Debug(msg string, keyvals ...any) { l.s.Debugw(msg, keyvals...) }
func (l zapLogger) Info(msg string, keyvals ...any)  { l.s.Infow(msg, keyvals...) }
func (l zapLogger) Warn(msg string, keyvals ...any)  { l.s.Warnw(msg, keyvals...) }
func (l zapLogger) Error(msg string, keyvals ...any) { l.s.Errorw(msg, keyvals...) }
