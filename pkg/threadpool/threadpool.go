// Package threadpool implements the submission-and-drain worker pool
// described in spec.md 4.1, ported from the lazy-start / external
// in-flight-counter contract of original_source/include/common/GThreadPool.hpp,
// in the naming and doc-comment idiom of the teacher's pkg/common/workers
// pool (Config, Stats, Submit/Wait/Shutdown).
package threadpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
)

// Future carries the eventual result of one scheduled task: either a value
// of type R or the error the task produced.
type Future[R any] struct {
	done  chan struct{}
	value R
	err   error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

func (f *Future[R]) complete(value R, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Get blocks until the task completes (or ctx is done) and returns its
// value or error.
func (f *Future[R]) Get(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Ready reports whether the future has completed without blocking.
func (f *Future[R]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Pool is a fixed worker-count goroutine pool with lazy start and a
// submission-blocking Wait barrier. The in-flight counter is incremented at
// submission time, not at execution time, matching the original's
// "submit-then-run" accounting so Wait() cannot race a task that hasn't
// started running yet.
type Pool struct {
	mu          sync.Mutex
	started     bool
	n           int
	tasks       chan func()
	workerDone  chan struct{}
	inFlight    int64
	drainedCond *sync.Cond
	submitLock  sync.RWMutex // held for read during Submit, for write during Wait/SetNThreads
	logger      *logging.Logger

	shutdown bool
}

// New returns a Pool configured for n worker goroutines. Workers are not
// started until the first successful submission.
func New(n int, logger *logging.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	p := &Pool{
		n:      n,
		tasks:  make(chan func(), n*4),
		logger: logger.WithComponent("threadpool"),
	}
	p.drainedCond = sync.NewCond(&p.mu)
	return p
}

// ensureStarted performs the lazy start. The started flag is checked once,
// under the pool mutex, on every call; there is no lock-free first check.
func (p *Pool) ensureStarted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.startLocked()
}

func (p *Pool) startLocked() {
	p.workerDone = make(chan struct{})
	p.started = true
	for i := 0; i < p.n; i++ {
		go p.worker()
	}
}

func (p *Pool) worker() {
	for task := range p.tasks {
		task()
	}
}

// AsyncSchedule enqueues f for execution and returns immediately with a
// Future that will carry its value or error. The in-flight counter is
// incremented here, before f has necessarily started running.
func AsyncSchedule[R any](p *Pool, f func() (R, error)) (*Future[R], error) {
	p.submitLock.RLock()
	defer p.submitLock.RUnlock()

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, fmt.Errorf("threadpool: pool is shut down")
	}
	p.mu.Unlock()

	p.ensureStarted()

	fut := newFuture[R]()
	atomic.AddInt64(&p.inFlight, 1)

	task := func() {
		defer p.taskFinished()
		value, err := safeCall(f)
		if err != nil {
			p.logger.Debug("task failed", map[string]interface{}{"error": err.Error()})
		}
		fut.complete(value, err)
	}

	p.tasks <- task
	return fut, nil
}

func safeCall[R any](f func() (R, error)) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("threadpool: task panicked: %v", r)
		}
	}()
	return f()
}

func (p *Pool) taskFinished() {
	n := atomic.AddInt64(&p.inFlight, -1)
	if n == 0 {
		p.mu.Lock()
		p.drainedCond.Broadcast()
		p.mu.Unlock()
	}
}

// Wait blocks new submissions, then waits until the in-flight counter
// reaches zero. It must not be called from inside a pool task (doing so
// deadlocks, matching the original's documented restriction).
func (p *Pool) Wait() {
	p.submitLock.Lock()
	defer p.submitLock.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	for atomic.LoadInt64(&p.inFlight) != 0 {
		p.drainedCond.Wait()
	}
}

// InFlight returns the current in-flight task count.
func (p *Pool) InFlight() int64 {
	return atomic.LoadInt64(&p.inFlight)
}

// SetNThreads blocks new submissions, drains, then tears down and recreates
// the worker set at size n. Must not be called from inside a pool task.
func (p *Pool) SetNThreads(n int) {
	if n < 1 {
		n = 1
	}
	p.submitLock.Lock()
	defer p.submitLock.Unlock()

	p.mu.Lock()
	for atomic.LoadInt64(&p.inFlight) != 0 {
		p.drainedCond.Wait()
	}
	wasStarted := p.started
	p.mu.Unlock()

	if wasStarted {
		close(p.tasks)
		p.tasks = make(chan func(), n*4)
	}

	p.mu.Lock()
	p.n = n
	if wasStarted {
		p.startLocked()
	}
	p.mu.Unlock()
}

// Shutdown blocks submissions, drains, and releases worker goroutines. The
// pool must not be reused after Shutdown.
func (p *Pool) Shutdown() {
	p.submitLock.Lock()
	defer p.submitLock.Unlock()

	p.mu.Lock()
	for atomic.LoadInt64(&p.inFlight) != 0 {
		p.drainedCond.Wait()
	}
	started := p.started
	p.shutdown = true
	p.mu.Unlock()

	if started {
		close(p.tasks)
	}
}
