// Package stage runs the per-image decode, transform and persist stages on a
// fixed pool of worker goroutines.
package stage

import (
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("stage pool closed")

type job struct {
	fn   func(worker int)
	done chan struct{}
}

// Pool is a fixed set of worker goroutines with stable 1-based identities.
// Submit hands a function to whichever worker is free and blocks until it
// has run.
type Pool struct {
	jobs    chan job
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// ResolveWorkers returns n, or runtime.NumCPU() when n < 1.
func ResolveWorkers(n int) int {
	if n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// NewPool starts workers goroutines. Values < 1 use runtime.NumCPU().
func NewPool(workers int) *Pool {
	workers = ResolveWorkers(workers)
	p := &Pool{
		jobs:    make(chan job),
		workers: workers,
	}
	p.wg.Add(workers)
	for id := 1; id <= workers; id++ {
		go p.work(id)
	}
	return p
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		j.fn(id)
		close(j.done)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.workers
}

// Submit runs fn on a pool worker and waits for it to return.
// fn receives the worker identity. Panics in fn are not recovered.
func (p *Pool) Submit(fn func(worker int)) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	j := job{fn: fn, done: make(chan struct{})}
	p.jobs <- j
	p.mu.RUnlock()

	<-j.done
	return nil
}

// Close stops accepting work, lets queued jobs finish and waits for all
// workers to exit. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
