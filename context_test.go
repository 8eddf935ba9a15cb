package drawsched

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBackend(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, ErrNoBackend)

	_, err = New(WithBackends(nil))
	assert.ErrorIs(t, err, ErrNilBackend)

	cfg := DefaultConfig()
	cfg.MemoryBudget = -1
	_, err = New(WithConfig(cfg), WithBackends(newFake("sw", everything(100))))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewPropagatesLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hw := newFake("hw", everything(50))
	newTestContext(t, syncConfig(), WithBackends(hw), WithLogger(logger))

	assert.Same(t, logger, hw.logger)
	assert.Contains(t, buf.String(), "unit registered")
}

func TestUnitIDsFollowRegistrationOrder(t *testing.T) {
	rc := newTestContext(t, syncConfig(), WithBackends(
		newFake("a", nil), newFake("b", nil), newFake("c", nil)))

	var names []string
	for i, u := range rc.Units() {
		assert.Equal(t, i+1, u.ID())
		names = append(names, u.Name())
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

// A fully clipped task never reaches a backend and ends Ready.
func TestSubmitFullyClipped(t *testing.T) {
	hw := newFake("hw", everything(50))
	rc := newTestContext(t, syncConfig(), WithBackends(hw))
	l, err := rc.NewLayer("l", image.Rect(0, 0, 100, 100))
	require.NoError(t, err)

	outside := NewFillTask(image.Rect(200, 200, 300, 300), image.Rect(0, 0, 1000, 1000), FillParams{Color: red})
	disjoint := NewFillTask(image.Rect(0, 0, 10, 10), image.Rect(20, 20, 30, 30), FillParams{Color: red})
	require.NoError(t, l.Submit(outside))
	require.NoError(t, l.Submit(disjoint))

	rc.DispatchAll()
	for _, task := range []*DrawTask{outside, disjoint} {
		assert.Equal(t, StateReady, task.State())
		assert.True(t, task.Clipped())
	}
	assert.Zero(t, hw.calls.Load())
	assert.Zero(t, l.QueueLen())
	assert.EqualValues(t, 2, rc.Stats().Clipped)
	assert.True(t, l.Done())
}

func TestSubmitTwice(t *testing.T) {
	rc := newTestContext(t, syncConfig(), WithBackends(newFake("sw", everything(100))))
	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)

	task := solidFill(image.Rect(0, 0, 10, 10))
	require.NoError(t, l.Submit(task))
	assert.ErrorIs(t, l.Submit(task), ErrTaskSubmitted)
}

func TestSubmitTwiceConcurrently(t *testing.T) {
	rc := newTestContext(t, syncConfig(), WithBackends(newFake("sw", everything(100))))
	a, err := rc.NewLayer("a", full)
	require.NoError(t, err)
	b, err := rc.NewLayer("b", full)
	require.NoError(t, err)

	for range 50 {
		task := solidFill(image.Rect(0, 0, 10, 10))
		errs := make(chan error, 2)
		var wg sync.WaitGroup
		for _, l := range []*Layer{a, b} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- l.Submit(task)
			}()
		}
		wg.Wait()
		close(errs)

		var ok, dup int
		for err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrTaskSubmitted):
				dup++
			default:
				t.Fatalf("Submit() error = %v", err)
			}
		}
		require.Equal(t, 1, ok)
		require.Equal(t, 1, dup)
		require.NotNil(t, task.Layer())
	}
	assert.Equal(t, 50, a.Outstanding()+b.Outstanding())
}

func TestSubmitRejectsLayerCycle(t *testing.T) {
	rc := newTestContext(t, syncConfig(), WithBackends(newFake("sw", everything(100))))
	a, err := rc.NewLayer("a", full)
	require.NoError(t, err)
	b, err := rc.NewLayer("b", full)
	require.NoError(t, err)

	self := NewLayerTask(full, full, LayerParams{Source: a, Opacity: OpacityCover})
	assert.ErrorIs(t, a.Submit(self), ErrLayerCycle)
	assert.Nil(t, self.Layer(), "rejected task can be submitted elsewhere")

	require.NoError(t, b.Submit(solidFill(image.Rect(0, 0, 10, 10))))
	require.NoError(t, a.Submit(NewLayerTask(full, full, LayerParams{Source: b, Opacity: OpacityCover})))
	assert.ErrorIs(t, b.Submit(NewLayerTask(full, full, LayerParams{Source: a, Opacity: OpacityCover})), ErrLayerCycle)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rc.FinishLayer(ctx, b))
	require.NoError(t, rc.FinishLayer(ctx, a))
}

func TestDispatchAllRoutesByScore(t *testing.T) {
	sw := newFake("sw", everything(100))
	hw := newFake("hw", map[TaskKind]int{TaskImage: 60})
	rc := newTestContext(t, syncConfig(), WithBackends(sw, hw), WithFallback(sw))
	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)

	fill := solidFill(image.Rect(0, 0, 10, 10))
	blit := NewImageTask(image.Rect(50, 50, 80, 80), full, ImageParams{})
	require.NoError(t, l.Submit(fill))
	require.NoError(t, l.Submit(blit))

	assert.Equal(t, 2, rc.DispatchAll())
	assert.EqualValues(t, 1, sw.calls.Load())
	assert.EqualValues(t, 1, hw.calls.Load())
	assert.True(t, l.Done())
}

func TestLayerComposeWaitsForSource(t *testing.T) {
	sw := newFake("sw", everything(100))
	rc := newTestContext(t, syncConfig(), WithBackends(sw))
	parent, err := rc.NewLayer("parent", full)
	require.NoError(t, err)
	child, err := rc.NewLayer("child", image.Rect(0, 0, 50, 50))
	require.NoError(t, err)

	compose := NewLayerTask(image.Rect(0, 0, 50, 50), full, LayerParams{Source: child, Opacity: OpacityCover})
	require.NoError(t, parent.Submit(compose))
	require.NoError(t, child.Submit(solidFill(image.Rect(0, 0, 50, 50))))

	require.NoError(t, rc.Wait(testCtx(t), parent))
	assert.True(t, child.Done())
	assert.Equal(t, StateReady, compose.State())
}

func TestRunDrainsLayers(t *testing.T) {
	sw := newFake("sw", everything(100))
	hw := newFake("hw", everything(50))
	rc := newTestContext(t, DefaultConfig(), WithBackends(sw, hw))

	ctx, cancel := context.WithCancel(testCtx(t))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.ErrorIs(t, rc.Run(ctx), context.Canceled)
	}()

	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)
	var tasks []*DrawTask
	for i := range 20 {
		task := solidFill(image.Rect(i*10, 0, i*10+10, 10))
		tasks = append(tasks, task)
		require.NoError(t, l.Submit(task))
	}
	for _, task := range tasks {
		require.NoError(t, task.Wait(ctx))
	}
	cancel()
	wg.Wait()

	assert.EqualValues(t, 20, rc.Stats().Completed)
	assert.EqualValues(t, 20, hw.calls.Load()+sw.calls.Load())
}

func TestFinishLayerSyncsBackends(t *testing.T) {
	sw := newFake("sw", everything(100))
	hw := newFake("hw", everything(50))
	rc := newTestContext(t, DefaultConfig(), WithBackends(sw, hw))
	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)
	require.NoError(t, l.Submit(solidFill(image.Rect(0, 0, 10, 10))))

	require.NoError(t, rc.FinishLayer(testCtx(t), l))
	assert.Equal(t, []*Layer{l}, hw.syncs)
	assert.Equal(t, []*Layer{l}, sw.syncs)
	assert.Equal(t, red, l.Buffer().Image.RGBAAt(1, 1))
}

func TestWaitHonorsContext(t *testing.T) {
	hw := newFake("hw", everything(50))
	rc := newTestContext(t, syncConfig(), WithBackends(hw), WithAllocator(NewHeapAllocator(1, 0)))
	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)
	require.NoError(t, l.Submit(solidFill(image.Rect(0, 0, 10, 10))))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rc.Wait(ctx, l), context.DeadlineExceeded)
}

func TestReleaseLayer(t *testing.T) {
	alloc := NewHeapAllocator(0, 0)
	hw := newFake("hw", everything(50))
	hw.gate = make(chan struct{})
	rc := newTestContext(t, DefaultConfig(), WithBackends(hw), WithAllocator(alloc))
	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)
	require.NoError(t, l.Submit(solidFill(image.Rect(0, 0, 10, 10))))
	rc.DispatchAll()

	assert.ErrorIs(t, rc.ReleaseLayer(l), ErrLayerBusy)

	close(hw.gate)
	require.NoError(t, rc.Wait(testCtx(t), l))
	require.NoError(t, rc.ReleaseLayer(l))
	assert.Zero(t, alloc.Used())
	assert.ErrorIs(t, l.Submit(solidFill(image.Rect(0, 0, 10, 10))), ErrLayerReleased)
}

func TestClosedContext(t *testing.T) {
	rc, err := New(WithBackends(newFake("sw", everything(100))))
	require.NoError(t, err)
	l, err := rc.NewLayer("l", full)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	_, err = rc.NewLayer("late", full)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, l.Submit(solidFill(image.Rect(0, 0, 1, 1))), ErrLayerReleased)
	assert.Zero(t, rc.DispatchAll())
	assert.ErrorIs(t, rc.Run(context.Background()), ErrClosed)
}

func TestNewLayerEmptyBounds(t *testing.T) {
	rc := newTestContext(t, syncConfig(), WithBackends(newFake("sw", everything(100))))
	_, err := rc.NewLayer("empty", image.Rectangle{})
	assert.Error(t, err)
}
