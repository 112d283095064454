// Package workerpool implements a bounded-concurrency task queue with a
// fixed concurrency ceiling, priority-aware scheduling, retry with
// backoff, per-pool metrics, and a bounded shutdown drain. A single
// dispatcher spawns one goroutine per task, with
// golang.org/x/sync/semaphore's Weighted primitive capping in-flight
// work at the pool size instead of a set of permanently-parked worker
// goroutines.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/log"
	"golang.org/x/sync/semaphore"
)

// Priority distinguishes high-priority tasks, which are front-loaded
// ahead of normal ones.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// Task is one unit of work submitted to the pool.
type Task struct {
	ID            string
	Payload       any
	Processor     func(ctx context.Context, payload any) error
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Priority      Priority

	result chan error
}

// Metrics is a point-in-time snapshot of a Pool's counters.
type Metrics struct {
	Queued            int64
	Active            int64
	Completed         int64
	Errored           int64
	TotalProcessingNs int64
	PeakConcurrency   int64
	WorkersSpawned    int64
}

// Pool is a dispatcher bounding task concurrency at size via a weighted
// semaphore, draining a priority-ordered in-memory queue.
type Pool struct {
	size int64
	sem  *semaphore.Weighted

	mu      sync.Mutex
	highQ   []*Task
	normalQ []*Task
	cond    *sync.Cond

	wg       sync.WaitGroup
	closed   bool
	dispatch sync.WaitGroup

	queued    int64
	active    int64
	completed int64
	errored   int64
	procNs    int64
	peak      int64
	spawned   int64
}

// New constructs a Pool with concurrency ceiling size and starts its
// dispatcher loop.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
	p.cond = sync.NewCond(&p.mu)
	p.dispatch.Add(1)
	go p.dispatchLoop()
	return p
}

// Submit enqueues task and returns a channel that receives its terminal
// error (nil on success) once the retry budget is exhausted or the task
// completes.
func (p *Pool) Submit(task *Task) <-chan error {
	task.result = make(chan error, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		task.result <- context.Canceled
		return task.result
	}
	if task.Priority == PriorityHigh {
		p.highQ = append(p.highQ, task)
	} else {
		p.normalQ = append(p.normalQ, task)
	}
	atomic.AddInt64(&p.queued, 1)
	p.cond.Signal()
	p.mu.Unlock()

	return task.result
}

func (p *Pool) dispatchLoop() {
	defer p.dispatch.Done()
	for {
		// Reserve a slot before taking a task off the queue, so a task
		// waiting for capacity stays queued and Shutdown can reject it.
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		p.mu.Lock()
		for len(p.highQ) == 0 && len(p.normalQ) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed && len(p.highQ) == 0 && len(p.normalQ) == 0 {
			p.mu.Unlock()
			p.sem.Release(1)
			return
		}
		var task *Task
		if len(p.highQ) > 0 {
			task = p.highQ[0]
			p.highQ = p.highQ[1:]
		} else {
			task = p.normalQ[0]
			p.normalQ = p.normalQ[1:]
		}
		p.mu.Unlock()

		atomic.AddInt64(&p.queued, -1)
		p.wg.Add(1)
		atomic.AddInt64(&p.spawned, 1)
		go p.runTask(task)
	}
}

func (p *Pool) runTask(task *Task) {
	defer p.wg.Done()
	defer p.sem.Release(1)

	active := atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)
	for {
		peak := atomic.LoadInt64(&p.peak)
		if active <= peak || atomic.CompareAndSwapInt64(&p.peak, peak, active) {
			break
		}
	}

	start := time.Now()
	err := p.attempt(task)
	atomic.AddInt64(&p.procNs, time.Since(start).Nanoseconds())

	if err != nil {
		atomic.AddInt64(&p.errored, 1)
	} else {
		atomic.AddInt64(&p.completed, 1)
	}
	task.result <- err
}

func (p *Pool) attempt(task *Task) error {
	delay := task.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	attempts := task.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}

	var lastErr error
	for i := 0; i <= attempts; i++ {
		ctx := context.Background()
		var cancel context.CancelFunc
		if task.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		}
		lastErr = task.Processor(ctx, task.Payload)
		if cancel != nil {
			cancel()
		}
		if lastErr == nil {
			return nil
		}
		if i < attempts {
			log.Warn("workerpool: task %s failed (attempt %d/%d): %v", task.ID, i+1, attempts+1, lastErr)
			time.Sleep(backoff(delay, i))
		}
	}
	return lastErr
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	const capDelay = 60 * time.Second
	if d > capDelay {
		d = capDelay
	}
	return d
}

// Shutdown stops accepting new submissions, waits up to t for the queue
// to drain and in-flight tasks to finish, then rejects anything still
// queued, rejecting its waiters.
func (p *Pool) Shutdown(t time.Duration) {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.dispatch.Wait()
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(t):
	}

	p.mu.Lock()
	remaining := append(p.highQ, p.normalQ...)
	p.highQ, p.normalQ = nil, nil
	p.mu.Unlock()

	for _, task := range remaining {
		atomic.AddInt64(&p.errored, 1)
		atomic.AddInt64(&p.queued, -1)
		task.result <- context.Canceled
	}
}

// Snapshot returns a point-in-time copy of the pool's metrics.
func (p *Pool) Snapshot() Metrics {
	return Metrics{
		Queued:            atomic.LoadInt64(&p.queued),
		Active:            atomic.LoadInt64(&p.active),
		Completed:         atomic.LoadInt64(&p.completed),
		Errored:           atomic.LoadInt64(&p.errored),
		TotalProcessingNs: atomic.LoadInt64(&p.procNs),
		PeakConcurrency:   atomic.LoadInt64(&p.peak),
		WorkersSpawned:    atomic.LoadInt64(&p.spawned),
	}
}
