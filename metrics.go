package drawsched

import "time"

// Metrics receives scheduler events. Implementations must be safe for
// concurrent use; observability/prometheus provides one.
type Metrics interface {
	// TaskDispatched is called when unit claims a task.
	TaskDispatched(unit string)
	// TaskCompleted is called when a task executed by unit is Ready.
	TaskCompleted(unit string, d time.Duration)
	// TaskFailed is called when unit's backend rejected a claimed task.
	TaskFailed(unit string)
	// TaskClipped is called for each task dropped at submission.
	TaskClipped()
	// DispatchBusy is called when unit refuses a dispatch.
	DispatchBusy(unit string)
	// AllocationFailed is called when a layer buffer cannot be allocated.
	AllocationFailed()
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) TaskDispatched(string)               {}
func (NopMetrics) TaskCompleted(string, time.Duration) {}
func (NopMetrics) TaskFailed(string)                   {}
func (NopMetrics) TaskClipped()                        {}
func (NopMetrics) DispatchBusy(string)                 {}
func (NopMetrics) AllocationFailed()                   {}

var _ Metrics = NopMetrics{}

// Stats is a snapshot of RenderContext counters.
type Stats struct {
	Submitted   uint64
	Clipped     uint64
	Dispatched  uint64
	Completed   uint64
	Failed      uint64
	Busy        uint64
	AllocFailed uint64
}
