// Package pool runs units of work that may be submitted while the pool is
// already busy, such as sub-directories discovered during a walk.
package pool

import (
	"runtime"
	"sync"
)

const (
	chanCap     = 100
	worklistCap = 1000
)

// Pool executes submitted tasks on a fixed number of workers. Tasks are
// handed out from an unbounded worklist, so a task may submit further tasks
// without blocking on busy workers.
//
// A Pool is single-use: after Wait returns, Submit must not be called again.
type Pool struct {
	workers int

	dch  chan func() // dispatcher channel, feeds the worklist
	wch  chan func() // worker channel, drained by the workers
	done chan struct{}

	wg    sync.WaitGroup
	start sync.Once
}

// New creates a pool with the given number of workers. Zero or a negative
// value uses one worker per logical CPU. A single worker makes the pool
// sequential: Submit runs the task inline, so recursive submission is
// depth-first and everything else runs in submission order.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers}
}

// Workers returns the number of workers.
func (p *Pool) Workers() int {
	return p.workers
}

// Sequential reports whether tasks run inline on the submitting goroutine.
func (p *Pool) Sequential() bool {
	return p.workers == 1
}

// Submit schedules task. It is safe to call from inside a running task.
func (p *Pool) Submit(task func()) {
	if p.Sequential() {
		task()
		return
	}

	p.start.Do(p.run)
	p.wg.Add(1)
	p.dch <- task
}

// Wait blocks until every submitted task, including tasks submitted by other
// tasks, has finished, and then releases the workers.
func (p *Pool) Wait() {
	if p.Sequential() {
		return
	}

	p.start.Do(p.run)
	p.wg.Wait()
	close(p.done)
}

func (p *Pool) run() {
	p.dch = make(chan func(), chanCap)
	p.wch = make(chan func(), chanCap)
	p.done = make(chan struct{})

	go p.dispatch()
	for i := 0; i < p.workers; i++ {
		go p.work()
	}
}

// dispatch keeps the worklist. Incoming tasks are forwarded to an idle
// worker or parked in the worklist, which is drained last-in-first-out to
// keep the slice small.
func (p *Pool) dispatch() {
	worklist := make([]func(), 0, worklistCap)
	for {
		if len(worklist) == 0 {
			select {
			case task := <-p.dch:
				worklist = append(worklist, task)
			case <-p.done:
				close(p.wch)
				return
			}
			continue
		}

		select {
		case task := <-p.dch:
			worklist = append(worklist, task)
		case p.wch <- worklist[len(worklist)-1]:
			worklist[len(worklist)-1] = nil
			worklist = worklist[:len(worklist)-1]
		}
	}
}

func (p *Pool) work() {
	for task := range p.wch {
		task()
		p.wg.Done()
	}
}
