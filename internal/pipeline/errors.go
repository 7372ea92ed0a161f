package pipeline

import (
	"fmt"
)

// SourceFetchError records a failed (query, source) fetch. It is logged by
// the DataAcquirer and never returned past it.
type SourceFetchError struct {
	Query  string
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("pipeline: fetch %q from %s: %v", e.Query, e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// AnalysisInterfaceError records a failed or unparsable text-analysis call.
// The AIAnalyst recovers from it with the rule-based fallback.
type AnalysisInterfaceError struct {
	Items int
	Err   error
}

func (e *AnalysisInterfaceError) Error() string {
	return fmt.Sprintf("pipeline: analysis of %d item(s): %v", e.Items, e.Err)
}

func (e *AnalysisInterfaceError) Unwrap() error { return e.Err }

// PipelineFailure is returned by RunAnalysis when a run fails after it has
// started. The report has already been marked failed when it is returned.
type PipelineFailure struct {
	ReportID string
	Stage    string
	Err      error
}

func (e *PipelineFailure) Error() string {
	return fmt.Sprintf("pipeline: report %s failed during %s: %v", e.ReportID, e.Stage, e.Err)
}

func (e *PipelineFailure) Unwrap() error { return e.Err }
