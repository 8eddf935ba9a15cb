package drawsched

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// Evaluate
// =============================================================================

func TestUnitEvaluateOrder(t *testing.T) {
	sw := newFake("sw", everything(100))
	hw := newFake("hw", map[TaskKind]int{TaskFill: 70})
	img := newFake("img", map[TaskKind]int{TaskImage: 50})
	rc := newTestContext(t, syncConfig(), WithBackends(sw, hw, img))

	fill := solidFill(image.Rect(0, 0, 10, 10))
	units := rc.Units()
	for _, u := range units {
		u.Evaluate(fill)
	}
	assert.Equal(t, 70, fill.Score())
	assert.Equal(t, units[1].ID(), fill.PreferredUnit())
}

func TestUnitEvaluateRejectKeepsScore(t *testing.T) {
	hw := newFake("hw", map[TaskKind]int{TaskImage: 10})
	rc := newTestContext(t, syncConfig(), WithBackends(hw))

	fill := solidFill(image.Rect(0, 0, 10, 10))
	assert.False(t, rc.Units()[0].Evaluate(fill))
	assert.Equal(t, ScoreUnclaimed, fill.Score())
	assert.Equal(t, NoUnit, fill.PreferredUnit())
}

// =============================================================================
// Dispatch
// =============================================================================

// A busy unit refuses a second dispatch and nothing changes.
func TestUnitDispatchBusyHasNoSideEffects(t *testing.T) {
	hw := newFake("hw", everything(50))
	hw.gate = make(chan struct{})
	rc := newTestContext(t, DefaultConfig(), WithBackends(hw))
	u := rc.Units()[0]

	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)
	first := solidFill(image.Rect(0, 0, 20, 20))
	second := solidFill(image.Rect(50, 50, 70, 70))
	require.NoError(t, l.Submit(first))
	require.NoError(t, l.Submit(second))

	require.Equal(t, DispatchClaimed, u.Dispatch(l))
	require.Same(t, first, u.Current())
	assert.True(t, u.Busy())

	assert.Equal(t, DispatchBusy, u.Dispatch(l))
	assert.Same(t, first, u.Current(), "taskAct unchanged")
	assert.Equal(t, StateInProgress, first.State())
	assert.Equal(t, StateQueued, second.State())
	assert.Equal(t, 2, l.Outstanding())
	assert.EqualValues(t, 1, rc.Stats().Busy)

	close(hw.gate)
	require.NoError(t, rc.Wait(testCtx(t), l))
	assert.Equal(t, StateReady, first.State())
	assert.Equal(t, StateReady, second.State())
	assert.False(t, u.Busy())
	assert.Nil(t, u.Current())
}

func TestUnitDispatchIdle(t *testing.T) {
	rc := newTestContext(t, syncConfig(), WithBackends(newFake("hw", everything(50))))
	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)

	assert.Equal(t, DispatchIdle, rc.Units()[0].Dispatch(l))
	assert.Nil(t, l.Buffer(), "no buffer without work")
}

func TestUnitDispatchSynchronous(t *testing.T) {
	hw := newFake("hw", everything(50))
	rc := newTestContext(t, syncConfig(), WithBackends(hw))
	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)

	task := solidFill(image.Rect(0, 0, 10, 10))
	require.NoError(t, l.Submit(task))

	assert.Equal(t, DispatchClaimed, rc.Units()[0].Dispatch(l))
	assert.Equal(t, StateReady, task.State(), "synchronous unit completes before returning")
	assert.Equal(t, red, l.Buffer().Image.RGBAAt(5, 5))
	assert.Equal(t, 1, hw.invalid)
	assert.Equal(t, 1, hw.cleaned)
}

// A failed allocation leaves the task Queued and the unit Idle.
func TestUnitDispatchAllocationFailure(t *testing.T) {
	hw := newFake("hw", everything(50))
	alloc := NewHeapAllocator(100, 0)
	rc := newTestContext(t, syncConfig(), WithBackends(hw), WithAllocator(alloc))
	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)

	task := solidFill(image.Rect(0, 0, 10, 10))
	require.NoError(t, l.Submit(task))

	u := rc.Units()[0]
	assert.Equal(t, DispatchFailed, u.Dispatch(l))
	assert.Equal(t, StateQueued, task.State())
	assert.False(t, u.Busy())
	assert.Nil(t, l.Buffer())
	assert.Zero(t, hw.calls.Load())
	assert.EqualValues(t, 1, rc.Stats().AllocFailed)

	// Retried on the next dispatch.
	assert.Equal(t, DispatchFailed, u.Dispatch(l))
}

// =============================================================================
// Execution
// =============================================================================

func TestUnitBackendFailureUsesFallback(t *testing.T) {
	sw := newFake("sw", everything(100))
	hw := newFake("hw", everything(50))
	hw.err = errFake
	rc := newTestContext(t, syncConfig(), WithBackends(sw, hw), WithFallback(sw))
	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)

	task := solidFill(image.Rect(0, 0, 10, 10))
	require.NoError(t, l.Submit(task))
	require.NoError(t, rc.Wait(testCtx(t), l))

	assert.Equal(t, StateReady, task.State())
	assert.True(t, task.Failed())
	assert.EqualValues(t, 1, sw.calls.Load(), "fallback refilled the pixels")
	assert.Equal(t, red, l.Buffer().Image.RGBAAt(5, 5))
	assert.EqualValues(t, 1, rc.Stats().Failed)
}

func TestUnitBackendPanicIsContained(t *testing.T) {
	hw := newFake("hw", everything(50))
	hw.panicOn = true
	rc := newTestContext(t, syncConfig(), WithBackends(hw))
	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)

	task := solidFill(image.Rect(0, 0, 10, 10))
	require.NoError(t, l.Submit(task))

	assert.NotPanics(t, func() { rc.DispatchAll() })
	assert.Equal(t, StateReady, task.State())
	assert.True(t, task.Failed())
	assert.False(t, rc.Units()[0].Busy())
}

// The clip is re-read at execution time.
func TestUnitExecutionUsesCurrentClip(t *testing.T) {
	hw := newFake("hw", everything(50))
	hw.gate = make(chan struct{})
	hw.started = make(chan image.Rectangle, 4)
	rc := newTestContext(t, DefaultConfig(), WithBackends(hw))
	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)

	blocker := solidFill(image.Rect(0, 0, 10, 10))
	narrowed := solidFill(image.Rect(0, 0, 100, 100))
	hidden := solidFill(image.Rect(150, 150, 200, 200))
	require.NoError(t, l.Submit(blocker))
	require.NoError(t, l.Submit(narrowed))
	require.NoError(t, l.Submit(hidden))

	require.Equal(t, DispatchClaimed, rc.Units()[0].Dispatch(l))
	<-hw.started
	l.NotifyBoundsChanged(image.Rect(0, 0, 50, 50))
	close(hw.gate)

	require.NoError(t, rc.Wait(testCtx(t), l))
	clips := hw.drawnClips()
	require.Len(t, clips, 2, "hidden task never reaches the backend")
	assert.Contains(t, clips, image.Rect(0, 0, 50, 50))
	assert.True(t, hidden.Clipped())
	assert.Equal(t, StateReady, hidden.State())
}

func TestUnitCloseClosesBackend(t *testing.T) {
	hw := newFake("hw", everything(50))
	hw.closeErr = errors.New("boom")
	rc, err := New(WithBackends(hw))
	require.NoError(t, err)

	err = rc.Close()
	assert.ErrorContains(t, err, "boom")
	assert.True(t, hw.closed.Load())
	assert.NoError(t, rc.Close(), "second close is a no-op")
}
