// Package runner executes analysis runs in the background, either on an
// in-process worker pool or as Temporal workflows.
package runner

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/model"
)

// ErrBusy is returned by Submit when every worker slot is taken.
var ErrBusy = eris.New("runner: all analysis slots are busy")

// ErrClosed is returned by Submit after the runner has been closed.
var ErrClosed = eris.New("runner: closed")

// Capacity is implemented by runners with a fixed number of slots.
type Capacity interface {
	// Free returns the number of idle slots.
	Free() int
}

// Analyzer runs one analysis to completion. *pipeline.Orchestrator
// satisfies it.
type Analyzer interface {
	RunAnalysis(ctx context.Context, req model.AnalysisRequest) error
}

// Runner accepts analysis requests for background execution. Submit
// returns once the run is accepted, not when it finishes.
type Runner interface {
	Submit(ctx context.Context, req model.AnalysisRequest) error
	Close(ctx context.Context) error
}

const (
	defaultMaxConcurrent = 5
	defaultRunTimeout    = 60 * time.Minute
)

// New builds the runner selected by cfg.Runner.Mode.
func New(cfg *config.Config, a Analyzer) (Runner, error) {
	switch cfg.Runner.Mode {
	case "", "local":
		return NewLocal(a, cfg.Runner.MaxConcurrent, cfg.Pipeline.RunTimeout())
	case "temporal":
		c, err := Dial(cfg.Temporal)
		if err != nil {
			return nil, err
		}
		return NewTemporal(c, cfg.Temporal.TaskQueue, cfg.Pipeline.RunTimeout()), nil
	default:
		return nil, eris.Errorf("runner: unknown mode %q", cfg.Runner.Mode)
	}
}
