//go:build !drawsched_nothreads

package worker

import (
	"sync"
	"sync/atomic"
)

// Threaded reports whether jobs run on a dedicated goroutine.
const Threaded = true

// Worker is a single goroutine that executes one job at a time.
//
// Thread safety: Post and Close are safe for concurrent use.
type Worker struct {
	name string

	// jobs holds at most one job: the owner hands over a job only while
	// the worker is idle.
	jobs chan Job

	// done signals the goroutine to stop.
	done chan struct{}

	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.Mutex // serializes Post against Close
}

// New starts a worker goroutine.
func New(name string) *Worker {
	w := &Worker{
		name: name,
		jobs: make(chan Job, 1),
		done: make(chan struct{}),
	}
	w.running.Store(true)
	w.wg.Add(1)
	go w.loop()
	return w
}

// Name returns the name the worker was created with.
func (w *Worker) Name() string {
	return w.name
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			// Finish a job handed over just before Close.
			select {
			case job := <-w.jobs:
				job()
			default:
			}
			return
		case job := <-w.jobs:
			job()
		}
	}
}

// Post hands job to the worker and returns immediately.
// It returns ErrBusy if a job is still waiting to be picked up.
func (w *Worker) Post(job Job) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running.Load() {
		return ErrClosed
	}
	select {
	case w.jobs <- job:
		return nil
	default:
		return ErrBusy
	}
}

// Close stops the goroutine after the current job completes.
// Close is safe to call multiple times.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.running.CompareAndSwap(true, false) {
		w.mu.Unlock()
		return
	}
	close(w.done)
	w.mu.Unlock()
	w.wg.Wait()
}

// IsRunning reports whether the worker accepts jobs.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}
