package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/evaluation"
)

// Dispatcher delivers each result to every sink in parallel through a
// bounded goroutine pool.
type Dispatcher struct {
	sinks   []Sink
	pool    chan struct{} // semaphore-based pool
	timeout time.Duration
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher. Each delivery gets its own timeout.
func NewDispatcher(poolSize int, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if poolSize <= 0 {
		poolSize = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		pool:    make(chan struct{}, poolSize),
		timeout: timeout,
		logger:  logger,
	}
}

// Add registers a sink.
func (d *Dispatcher) Add(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Len is the number of sinks.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sinks)
}

// Dispatch sends res to all sinks and waits. Failures are logged and
// returned; they never stop the run.
func (d *Dispatcher) Dispatch(ctx context.Context, runID string, res evaluation.Result) []error {
	d.mu.RLock()
	sinks := append([]Sink(nil), d.sinks...)
	d.mu.RUnlock()

	errs := make([]error, len(sinks))
	var wg sync.WaitGroup
	for i, s := range sinks {
		wg.Add(1)
		go func(i int, s Sink) {
			defer wg.Done()
			d.pool <- struct{}{}        // acquire slot
			defer func() { <-d.pool }() // release slot

			sctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			if err := s.Record(sctx, runID, res); err != nil {
				errs[i] = fmt.Errorf("%T: %w", s, err)
				d.logger.Warn("sink failed",
					zap.String("sink", fmt.Sprintf("%T", s)),
					zap.String("task", res.TaskID),
					zap.Error(err))
			}
		}(i, s)
	}
	wg.Wait()

	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
