package runner

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/model"
)

// ReportWriter is the slice of store.Store that Launch needs.
type ReportWriter interface {
	CreateReport(ctx context.Context, r *model.Report) error
	FailReport(ctx context.Context, id string, message string) error
}

// Launch stores report as pending and submits it to r. When the submit is
// refused the report is marked failed so it never lingers as pending, and
// the submit error is returned.
func Launch(ctx context.Context, st ReportWriter, r Runner, report *model.Report) error {
	if err := st.CreateReport(ctx, report); err != nil {
		return eris.Wrap(err, "runner: create report")
	}
	if err := r.Submit(ctx, model.RequestFor(report)); err != nil {
		msg := "analysis could not be started: " + err.Error()
		if ferr := st.FailReport(context.WithoutCancel(ctx), report.ID, msg); ferr != nil {
			zap.L().Error("runner: mark unsubmitted report failed",
				zap.String("report_id", report.ID),
				zap.Error(ferr),
			)
		}
		return err
	}
	return nil
}
