// Package pipeline implements the regulatory analysis run: query
// generation, tiered acquisition, filtering, model analysis and the
// orchestrator that drives a report through them.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/llm"
	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/notify"
	"github.com/sells-group/regintel/internal/source"
	"github.com/sells-group/regintel/internal/store"
)

// Progress checkpoints persisted and emitted at the start of each stage.
const (
	pctQueryGeneration  = 10
	pctDataAcquisition  = 30
	pctContentFiltering = 60
	pctAIAnalysis       = 80
	pctCompleted        = 100
)

// Orchestrator drives one report through the pipeline stages. It keeps no
// per-run state, so one instance serves any number of concurrent runs.
type Orchestrator struct {
	store    store.Store
	notifier notify.Notifier
	queries  *QueryGenerator
	acquirer *DataAcquirer
	filter   *ContentFilter
	analyst  *AIAnalyst
	now      func() time.Time
}

// New wires the pipeline stages. A nil notifier is replaced by the log
// notifier; a nil analyzer makes the analysis rule-based.
func New(cfg *config.Config, st store.Store, router *source.Router, analyzer llm.TextAnalyzer, n notify.Notifier) *Orchestrator {
	if n == nil {
		n = notify.Log{}
	}
	return &Orchestrator{
		store:    st,
		notifier: n,
		queries:  NewQueryGenerator(),
		acquirer: NewDataAcquirer(router, cfg.Pipeline),
		filter:   NewContentFilter(cfg.Pipeline),
		analyst:  NewAIAnalyst(analyzer, cfg.Analyst),
		now:      time.Now,
	}
}

// RunAnalysis executes the pipeline for req.ReportID. The report must be
// pending. On success its changes and completed state are written in one
// transaction. Once the report has started, any failure marks it failed
// and returns a *PipelineFailure.
func (o *Orchestrator) RunAnalysis(ctx context.Context, req model.AnalysisRequest) error {
	log := zap.L().With(zap.String("report_id", req.ReportID))

	report, err := o.store.GetReport(ctx, req.ReportID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load report %s", req.ReportID)
	}

	profileID := req.ProfileID
	if profileID == "" {
		profileID = report.CompanyProfileID
	}
	profile, err := o.store.GetProfile(ctx, profileID)
	if err != nil {
		msg := fmt.Sprintf("company profile %s not found", profileID)
		if !eris.Is(err, store.ErrNotFound) {
			msg = fmt.Sprintf("load company profile %s: %v", profileID, err)
		}
		o.fail(ctx, req.ReportID, msg)
		return eris.Wrapf(err, "pipeline: load profile %s", profileID)
	}

	if err := o.store.StartReport(ctx, req.ReportID); err != nil {
		return eris.Wrapf(err, "pipeline: start report %s", req.ReportID)
	}
	log.Info("pipeline: analysis started", zap.String("analysis_type", string(req.AnalysisType)))
	start := o.now()

	changes, stage, err := o.run(ctx, req, *profile)
	if err == nil {
		if err = o.store.CompleteReport(ctx, req.ReportID, changes); err == nil {
			o.complete(ctx, req.ReportID, len(changes))
			log.Info("pipeline: analysis completed",
				zap.Int("changes", len(changes)),
				zap.Duration("elapsed", o.now().Sub(start)),
			)
			return nil
		}
		stage = model.StageCompleted
	}

	o.fail(ctx, req.ReportID, err.Error())
	log.Error("pipeline: analysis failed", zap.String("stage", stage), zap.Error(err))
	return &PipelineFailure{ReportID: req.ReportID, Stage: stage, Err: err}
}

// run executes the stages and returns the changes, or the stage that
// failed. Panics inside a stage are returned as errors.
func (o *Orchestrator) run(ctx context.Context, req model.AnalysisRequest, profile model.CompanyProfile) (changes []model.RegulatoryChange, stage string, err error) {
	defer func() {
		if r := recover(); r != nil {
			changes, err = nil, eris.Errorf("pipeline: panic: %v", r)
		}
	}()

	stage = model.StageQueryGeneration
	if err = o.checkpoint(ctx, req.ReportID, pctQueryGeneration, stage, "Generating search queries"); err != nil {
		return nil, stage, err
	}
	queries := o.queries.Generate(profile, req.AnalysisType, req.Scope, req.Keywords)

	stage = model.StageDataAcquisition
	if err = o.checkpoint(ctx, req.ReportID, pctDataAcquisition, stage, fmt.Sprintf("Searching %d queries", len(queries))); err != nil {
		return nil, stage, err
	}
	raw, err := o.acquirer.Acquire(ctx, queries)
	if err != nil {
		return nil, stage, err
	}

	stage = model.StageContentFiltering
	if err = o.checkpoint(ctx, req.ReportID, pctContentFiltering, stage, fmt.Sprintf("Filtering %d items", len(raw))); err != nil {
		return nil, stage, err
	}
	scored := o.filter.Filter(raw, profile, req.AnalysisType)

	stage = model.StageAIAnalysis
	if err = o.checkpoint(ctx, req.ReportID, pctAIAnalysis, stage, fmt.Sprintf("Analyzing %d items", len(scored))); err != nil {
		return nil, stage, err
	}
	changes = o.analyst.Analyze(ctx, scored, profile, req.AnalysisType)
	for i := range changes {
		changes[i].ReportID = req.ReportID
	}
	return changes, stage, ctx.Err()
}

// checkpoint persists the stage and emits a progress event. A checkpoint
// that cannot be persisted fails the run.
func (o *Orchestrator) checkpoint(ctx context.Context, reportID string, pct int, stage, msg string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "pipeline: cancelled before %s", stage)
	}
	if err := o.store.UpdateReportProgress(ctx, reportID, pct, stage); err != nil {
		return eris.Wrapf(err, "pipeline: checkpoint %s", stage)
	}
	o.progress(ctx, reportID, pct, stage, msg)
	return nil
}

func (o *Orchestrator) progress(ctx context.Context, reportID string, pct int, stage, msg string) {
	ev := model.ProgressEvent{ReportID: reportID, Percentage: pct, Stage: stage, Message: msg, Timestamp: o.now().UTC()}
	if err := o.notifier.Progress(ctx, ev); err != nil {
		zap.L().Warn("pipeline: progress notification failed", zap.String("report_id", reportID), zap.Error(err))
	}
}

func (o *Orchestrator) complete(ctx context.Context, reportID string, count int) {
	o.progress(ctx, reportID, pctCompleted, model.StageCompleted, "Analysis completed")
	s := model.CompletionSummary{
		ReportID:    reportID,
		Status:      model.ReportCompleted,
		ChangeCount: count,
		CompletedAt: o.now().UTC(),
		Message:     fmt.Sprintf("Analysis completed with %d regulatory changes", count),
	}
	if err := o.notifier.Complete(ctx, s); err != nil {
		zap.L().Warn("pipeline: completion notification failed", zap.String("report_id", reportID), zap.Error(err))
	}
}

// fail marks the report failed and sends the error notification. It runs
// detached from ctx so a cancelled run is still recorded.
func (o *Orchestrator) fail(ctx context.Context, reportID, msg string) {
	ctx = context.WithoutCancel(ctx)
	if err := o.store.FailReport(ctx, reportID, msg); err != nil {
		zap.L().Error("pipeline: mark report failed", zap.String("report_id", reportID), zap.Error(err))
	}
	if err := o.notifier.Error(ctx, reportID, msg); err != nil {
		zap.L().Warn("pipeline: error notification failed", zap.String("report_id", reportID), zap.Error(err))
	}
}
