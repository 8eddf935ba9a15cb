package drawsched

import (
	"errors"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeBackend accepts the kinds listed in scores and records every call.
type fakeBackend struct {
	name   string
	scores map[TaskKind]int

	// gate, when set, blocks each drawing call until it is closed or
	// receives a value.
	gate chan struct{}
	// started receives the task area when a drawing call begins.
	started chan image.Rectangle

	err     error
	panicOn bool

	mu       sync.Mutex
	clips    []image.Rectangle
	syncs    []*Layer
	invalid  int
	cleaned  int
	logger   *slog.Logger
	closed   atomic.Bool
	closeErr error
	calls    atomic.Int32
}

func newFake(name string, scores map[TaskKind]int) *fakeBackend {
	return &fakeBackend{name: name, scores: scores}
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Evaluate(t *DrawTask) (int, bool) {
	s, ok := f.scores[t.Kind()]
	return s, ok
}

func (f *fakeBackend) draw(dst *Buffer, area, clip image.Rectangle, c color.RGBA) error {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- area
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.clips = append(f.clips, clip)
	f.mu.Unlock()
	if f.panicOn {
		panic("fake backend exploded")
	}
	if f.err != nil {
		return f.err
	}
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			dst.Image.SetRGBA(x, y, c)
		}
	}
	return nil
}

func (f *fakeBackend) Fill(dst *Buffer, area, clip image.Rectangle, p *FillParams) error {
	return f.draw(dst, area, clip, p.Color)
}

func (f *fakeBackend) Blit(dst *Buffer, area, clip image.Rectangle, _ *ImageParams) error {
	return f.draw(dst, area, clip, color.RGBA{G: 0xff, A: 0xff})
}

func (f *fakeBackend) Compose(dst *Buffer, area, clip image.Rectangle, p *LayerParams) error {
	return f.draw(dst, area, clip, color.RGBA{B: 0xff, A: 0xff})
}

func (f *fakeBackend) InvalidateRegion(*Buffer, image.Rectangle) {
	f.mu.Lock()
	f.invalid++
	f.mu.Unlock()
}

func (f *fakeBackend) CleanRegion(*Buffer, image.Rectangle) {
	f.mu.Lock()
	f.cleaned++
	f.mu.Unlock()
}

func (f *fakeBackend) SyncLayer(l *Layer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs = append(f.syncs, l)
	return nil
}

func (f *fakeBackend) SetLogger(l *slog.Logger) {
	f.mu.Lock()
	f.logger = l
	f.mu.Unlock()
}

func (f *fakeBackend) Close() error {
	f.closed.Store(true)
	return f.closeErr
}

func (f *fakeBackend) drawnClips() []image.Rectangle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]image.Rectangle(nil), f.clips...)
}

var errFake = errors.New("fake: device lost")

// everything is the score table of a backend accepting every kind.
func everything(score int) map[TaskKind]int {
	return map[TaskKind]int{TaskFill: score, TaskImage: score, TaskLayer: score}
}

func newTestContext(t *testing.T, cfg Config, opts ...Option) *RenderContext {
	t.Helper()
	rc, err := New(append([]Option{WithConfig(cfg)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func syncConfig() Config {
	cfg := DefaultConfig()
	cfg.Synchronous = true
	return cfg
}

var (
	red  = color.RGBA{R: 0xff, A: 0xff}
	full = image.Rect(0, 0, 200, 200)
)

func solidFill(area image.Rectangle) *DrawTask {
	return NewFillTask(area, full, FillParams{Color: red, Opacity: OpacityCover})
}
