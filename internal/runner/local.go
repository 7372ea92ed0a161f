package runner

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/model"
)

// Local runs analyses on a bounded ants pool inside the current process.
// Each run gets its own timeout and is cancelled when the runner closes.
type Local struct {
	analyzer Analyzer
	pool     *ants.Pool
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add in Submit before wg.Wait in Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocal creates a Local runner with maxConcurrent worker slots.
func NewLocal(a Analyzer, maxConcurrent int, runTimeout time.Duration) (*Local, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	pool, err := ants.NewPool(maxConcurrent,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			zap.L().Error("runner: analysis panicked", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, eris.Wrap(err, "runner: create pool")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{analyzer: a, pool: pool, timeout: runTimeout, ctx: ctx, cancel: cancel}, nil
}

// Submit schedules req on a free worker. It returns ErrBusy when the pool
// is full.
func (l *Local) Submit(_ context.Context, req model.AnalysisRequest) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return eris.Wrapf(ErrClosed, "report %s", req.ReportID)
	}
	l.wg.Add(1)
	l.mu.Unlock()

	err := l.pool.Submit(func() {
		defer l.wg.Done()
		l.run(req)
	})
	if err != nil {
		l.wg.Done()
		if eris.Is(err, ants.ErrPoolOverload) {
			return eris.Wrapf(ErrBusy, "report %s", req.ReportID)
		}
		return eris.Wrapf(err, "runner: submit report %s", req.ReportID)
	}
	zap.L().Debug("runner: analysis submitted", zap.String("report_id", req.ReportID))
	return nil
}

func (l *Local) run(req model.AnalysisRequest) {
	ctx, cancel := context.WithTimeout(l.ctx, l.timeout)
	defer cancel()
	if err := l.analyzer.RunAnalysis(ctx, req); err != nil {
		zap.L().Error("runner: analysis failed", zap.String("report_id", req.ReportID), zap.Error(err))
	}
}

// Running returns the number of analyses in flight.
func (l *Local) Running() int {
	return l.pool.Running()
}

// Free returns the number of idle worker slots.
func (l *Local) Free() int {
	return l.pool.Free()
}

// Close waits for in-flight runs until ctx is done, then cancels the rest
// and releases the pool.
func (l *Local) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = eris.Wrap(ctx.Err(), "runner: close")
	}
	l.cancel()
	<-done
	l.pool.Release()
	return err
}
