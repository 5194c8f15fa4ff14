// Package workerpool runs event listeners on a fixed set of goroutines.
// A burst of order placements queues work instead of spawning a goroutine
// per listener; once the queue is full, TrySubmit refuses and the caller
// decides whether to drop or wait.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrFull   = errors.New("workerpool: queue is full")
	ErrClosed = errors.New("workerpool: closed")
)

// Task is one unit of work. A panicking task is recovered and counted.
type Task func()

type Pool struct {
	queue   chan Task
	workers sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	stop   sync.Once

	running atomic.Int64
	done    atomic.Int64
	panics  atomic.Int64
	onPanic func(any)
	depth   int
}

type Option func(*Pool)

// WithQueueDepth sets how many tasks may wait for a worker. The default is
// twice the worker count.
func WithQueueDepth(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.depth = n
		}
	}
}

func WithPanicHandler(fn func(v any)) Option {
	return func(p *Pool) { p.onPanic = fn }
}

// New starts workers goroutines (at least one).
func New(workers int, opts ...Option) *Pool {
	workers = max(workers, 1)
	p := &Pool{depth: workers * 2}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = make(chan Task, p.depth)

	p.workers.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

// TrySubmit queues t without blocking.
func (p *Pool) TrySubmit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- t:
		return nil
	default:
		return ErrFull
	}
}

// Submit queues t, waiting for room until ctx is done.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Queued    int
	Running   int64
	Completed int64
	Panics    int64
}

func (p *Pool) Stats() Stats {
	return Stats{
		Queued:    len(p.queue),
		Running:   p.running.Load(),
		Completed: p.done.Load(),
		Panics:    p.panics.Load(),
	}
}

// Close refuses new work, lets queued tasks finish and waits for the
// workers to exit. Calling it again is a no-op.
func (p *Pool) Close() {
	p.stop.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		p.workers.Wait()
	})
}

func (p *Pool) work() {
	defer p.workers.Done()
	for t := range p.queue {
		p.run(t)
	}
}

func (p *Pool) run(t Task) {
	p.running.Add(1)
	defer func() {
		p.running.Add(-1)
		p.done.Add(1)
		if v := recover(); v != nil {
			p.panics.Add(1)
			if p.onPanic != nil {
				p.onPanic(v)
			}
		}
	}()
	t()
}
