//go:build drawsched_nothreads

package worker

import "sync/atomic"

// Threaded reports whether jobs run on a dedicated goroutine.
const Threaded = false

// Worker executes jobs synchronously on the posting goroutine.
type Worker struct {
	name    string
	running atomic.Bool
	active  atomic.Bool
}

// New returns an inline worker.
func New(name string) *Worker {
	w := &Worker{name: name}
	w.running.Store(true)
	return w
}

// Name returns the name the worker was created with.
func (w *Worker) Name() string {
	return w.name
}

// Post runs job before returning. A job that posts to its own worker
// gets ErrBusy.
func (w *Worker) Post(job Job) error {
	if !w.running.Load() {
		return ErrClosed
	}
	if !w.active.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer w.active.Store(false)
	job()
	return nil
}

// Close stops accepting jobs.
func (w *Worker) Close() {
	w.running.Store(false)
}

// IsRunning reports whether the worker accepts jobs.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}
