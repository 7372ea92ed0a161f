package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/model"
)

// ErrQueueFull is returned when an Async notifier drops an event.
var ErrQueueFull = eris.New("notify: delivery queue full")

type delivery struct {
	ctx  context.Context
	kind string
	send func(ctx context.Context) error
}

// Async delivers events to next from a single background worker, in the
// order they were accepted. Callers never wait on delivery; each event
// gets its own deadline detached from the caller's cancellation.
type Async struct {
	next    Notifier
	timeout time.Duration
	queue   chan delivery
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts the delivery worker. A full queue drops new events.
func NewAsync(next Notifier, queueSize int, timeout time.Duration) *Async {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		queue:   make(chan delivery, queueSize),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Progress(ctx context.Context, ev model.ProgressEvent) error {
	return a.enqueue(ctx, KindProgress, func(ctx context.Context) error { return a.next.Progress(ctx, ev) })
}

func (a *Async) Complete(ctx context.Context, s model.CompletionSummary) error {
	return a.enqueue(ctx, KindComplete, func(ctx context.Context) error { return a.next.Complete(ctx, s) })
}

func (a *Async) Error(ctx context.Context, reportID, message string) error {
	return a.enqueue(ctx, KindError, func(ctx context.Context) error { return a.next.Error(ctx, reportID, message) })
}

func (a *Async) enqueue(ctx context.Context, kind string, send func(context.Context) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return eris.New("notify: async notifier closed")
	}
	select {
	case a.queue <- delivery{ctx: context.WithoutCancel(ctx), kind: kind, send: send}:
		return nil
	default:
		return eris.Wrapf(ErrQueueFull, "drop %s event", kind)
	}
}

func (a *Async) run() {
	defer close(a.done)
	for d := range a.queue {
		ctx, cancel := context.WithTimeout(d.ctx, a.timeout)
		if err := d.send(ctx); err != nil {
			zap.L().Warn("notify: async delivery failed", zap.String("kind", d.kind), zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}
