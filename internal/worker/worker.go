// Package worker runs the jobs of one draw unit.
//
// With OS threads available (the default build) every [Worker] owns a
// goroutine that blocks until a job is handed over and then executes it.
// Building with the drawsched_nothreads tag removes the goroutine: Post
// executes the job inline on the caller's goroutine. The choice is made at
// compile time; [Threaded] reports which variant is linked.
package worker

import "errors"

// ErrBusy is returned by Post when the worker already holds a job.
var ErrBusy = errors.New("worker: busy")

// ErrClosed is returned by Post after Close.
var ErrClosed = errors.New("worker: closed")

// Job is a unit of work. It runs to completion; there is no cancellation.
type Job func()
