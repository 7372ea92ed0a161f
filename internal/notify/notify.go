// Package notify delivers report progress, completion and failure events
// to interested clients.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/model"
)

// Notifier is the outbound notification channel for report runs.
// Implementations must be safe for concurrent use.
type Notifier interface {
	Progress(ctx context.Context, ev model.ProgressEvent) error
	Complete(ctx context.Context, s model.CompletionSummary) error
	Error(ctx context.Context, reportID, message string) error
}

// Event kinds carried in the Envelope.
const (
	KindProgress = "progress"
	KindComplete = "completed"
	KindError    = "error"
)

// Envelope is the wire form shared by the webhook and Redis channels.
type Envelope struct {
	Kind      string    `json:"kind"`
	ReportID  string    `json:"report_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type errorData struct {
	Message string `json:"message"`
}

func progressEnvelope(ev model.ProgressEvent) Envelope {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Envelope{Kind: KindProgress, ReportID: ev.ReportID, Timestamp: ts, Data: ev}
}

func completeEnvelope(s model.CompletionSummary) Envelope {
	ts := s.CompletedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Envelope{Kind: KindComplete, ReportID: s.ReportID, Timestamp: ts, Data: s}
}

func errorEnvelope(reportID, message string) Envelope {
	return Envelope{Kind: KindError, ReportID: reportID, Timestamp: time.Now().UTC(), Data: errorData{Message: message}}
}

// Log writes every event to the global zap logger.
type Log struct{}

func (Log) Progress(_ context.Context, ev model.ProgressEvent) error {
	zap.L().Info("report progress",
		zap.String("report_id", ev.ReportID),
		zap.Int("percentage", ev.Percentage),
		zap.String("stage", ev.Stage),
		zap.String("message", ev.Message),
	)
	return nil
}

func (Log) Complete(_ context.Context, s model.CompletionSummary) error {
	zap.L().Info("report completed",
		zap.String("report_id", s.ReportID),
		zap.Int("changes", s.ChangeCount),
	)
	return nil
}

func (Log) Error(_ context.Context, reportID, message string) error {
	zap.L().Error("report failed",
		zap.String("report_id", reportID),
		zap.String("error", message),
	)
	return nil
}

// Multi fans each event out to every notifier. All notifiers are called
// even when some fail; the failures are joined.
type Multi []Notifier

func (m Multi) Progress(ctx context.Context, ev model.ProgressEvent) error {
	return m.each(func(n Notifier) error { return n.Progress(ctx, ev) })
}

func (m Multi) Complete(ctx context.Context, s model.CompletionSummary) error {
	return m.each(func(n Notifier) error { return n.Complete(ctx, s) })
}

func (m Multi) Error(ctx context.Context, reportID, message string) error {
	return m.each(func(n Notifier) error { return n.Error(ctx, reportID, message) })
}

func (m Multi) each(fn func(Notifier) error) error {
	var errs []error
	for _, n := range m {
		if err := fn(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
