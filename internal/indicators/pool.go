package indicators

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/errs"
)

// task is one symbol's computation request.
type task struct {
	symbol string
	fn     func()
}

// pool is the indicator engine's bounded worker pool: sized
// min(2*NumCPU, 16) with a floor of 4. A worker waits at most the task
// timeout for each task; on expiry it counts the task as timed out, logs it
// and moves on. The task's goroutine is not cancelled, and no error reaches
// the submitter.
type pool struct {
	logger  *zap.Logger
	queue   chan task
	workers int
	timeout time.Duration

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	timedOut  atomic.Int64
	panics    atomic.Int64
}

// workerCount applies the spec's sizing rule to the host's parallelism.
func workerCount() int {
	n := runtime.NumCPU() * 2
	if n > 16 {
		n = 16
	}
	if n < 4 {
		n = 4
	}
	return n
}

func newPool(logger *zap.Logger, queueDepth int, taskTimeout time.Duration) *pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &pool{
		logger:  logger,
		queue:   make(chan task, queueDepth),
		workers: workerCount(),
		timeout: taskTimeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (p *pool) start() {
	if p.running.Swap(true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
	p.logger.Info("indicator worker pool started", zap.Int("workers", p.workers))
}

func (p *pool) runWorker(id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker_id", id))

	for {
		select {
		case <-p.ctx.Done():
			return
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.execute(log, t)
		}
	}
}

func (p *pool) execute(log *zap.Logger, t task) {
	done := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				log.Error("indicator task panic", zap.String("symbol", t.symbol), zap.Any("recovered", r))
			}
			close(done)
		}()
		t.fn()
	}()

	select {
	case <-done:
		p.completed.Add(1)
	case <-time.After(p.timeout):
		p.timedOut.Add(1)
		log.Warn("indicator task timed out", zap.String("symbol", t.symbol))
	}
}

// submit enqueues fn for symbol, returning errs.Overloaded if the queue is
// full rather than blocking the caller.
func (p *pool) submit(symbol string, fn func()) error {
	if !p.running.Load() {
		return errs.Overloaded(len(p.queue))
	}
	select {
	case p.queue <- task{symbol: symbol, fn: fn}:
		p.submitted.Add(1)
		return nil
	default:
		return errs.Overloaded(len(p.queue))
	}
}

func (p *pool) stop(shutdownTimeout time.Duration) {
	if !p.running.Swap(false) {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		p.logger.Warn("indicator worker pool shutdown timed out")
	}
}

// queueDepth returns the current number of queued-but-undispatched tasks.
func (p *pool) queueDepth() int {
	return len(p.queue)
}

type poolStats struct {
	ActiveWorkers int
	QueueDepth    int
	Submitted     int64
	Completed     int64
	TimedOut      int64
}

func (p *pool) stats() poolStats {
	return poolStats{
		ActiveWorkers: p.workers,
		QueueDepth:    p.queueDepth(),
		Submitted:     p.submitted.Load(),
		Completed:     p.completed.Load(),
		TimedOut:      p.timedOut.Load(),
	}
}
