package parallel

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned when work is submitted to a closed pool.
var ErrPoolClosed = errors.New("parallel: worker pool is closed")

// Task is a unit of work. It receives the index of the worker goroutine
// executing it, in [0, Workers()), so callers can keep per-worker scratch
// state without locking.
type Task func(worker int) error

// job pairs a task with its completion callback.
type job struct {
	fn   Task
	done func(error)
}

// WorkerPool is a pool of goroutines for parallel block rendering.
//
// Each worker has its own queue. Workers steal from other queues when their
// own queue is empty, which balances load when blocks differ in cost.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan job
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// The pool starts immediately and workers begin waiting for work.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan job, workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan job, queueSize)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]

	for {
		select {
		case <-p.done:
			p.drainQueue(id, myQueue)
			return

		case j := <-myQueue:
			run(id, j)

		default:
			if stolen, ok := p.steal(id); ok {
				run(id, stolen)
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(id, myQueue)
				return
			case j := <-myQueue:
				run(id, j)
			}
		}
	}
}

// run executes j on worker id, converting a panic into an error.
func run(id int, j job) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("parallel: worker %d panicked: %v", id, r)
			}
		}()
		err = j.fn(id)
	}()
	if j.done != nil {
		j.done(err)
	}
}

func (p *WorkerPool) drainQueue(id int, queue chan job) {
	for {
		select {
		case j := <-queue:
			run(id, j)
		default:
			return
		}
	}
}

// steal attempts to take work from another worker's queue.
func (p *WorkerPool) steal(myID int) (job, bool) {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case j := <-p.workQueues[i]:
			return j, true
		default:
		}
	}
	return job{}, false
}

// ExecuteAll distributes tasks across workers, waits for all of them, and
// returns the errors they produced joined with errors.Join.
// It returns ErrPoolClosed if the pool is closed.
func (p *WorkerPool) ExecuteAll(tasks []Task) error {
	if !p.running.Load() {
		return ErrPoolClosed
	}
	if len(tasks) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	wg.Add(len(tasks))
	done := func(err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
		wg.Done()
	}

	for i, fn := range tasks {
		if fn == nil {
			wg.Done()
			continue
		}
		select {
		case p.workQueues[i%p.workers] <- job{fn: fn, done: done}:
		case <-p.done:
			done(ErrPoolClosed)
		}
	}

	wg.Wait()
	return errors.Join(errs...)
}

// Broadcast runs fn once on every worker slot and waits for completion.
// This is the shape of a block render loop: each worker repeatedly pulls
// blocks from a shared scheduler until it is exhausted.
func (p *WorkerPool) Broadcast(fn Task) error {
	tasks := make([]Task, p.workers)
	for i := range tasks {
		tasks[i] = fn
	}
	return p.ExecuteAll(tasks)
}

// Submit sends a single task to the worker with the shortest queue.
// done, if non-nil, is called with the task's error after it runs.
func (p *WorkerPool) Submit(fn Task, done func(error)) error {
	if fn == nil {
		return nil
	}
	if !p.running.Load() {
		return ErrPoolClosed
	}

	minLen := len(p.workQueues[0])
	minIdx := 0
	for i := 1; i < p.workers; i++ {
		if qLen := len(p.workQueues[i]); qLen < minLen {
			minLen = qLen
			minIdx = i
		}
	}

	select {
	case p.workQueues[minIdx] <- job{fn: fn, done: done}:
		return nil
	case <-p.done:
		return ErrPoolClosed
	}
}

// Close stops accepting work, waits for queued work to complete, and stops
// all workers. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork returns the approximate number of tasks currently queued.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.workQueues {
		total += len(q)
	}
	return total
}
