package blit2d

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/gogpu/drawsched"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red    = color.RGBA{R: 0xff, A: 0xff}
	screen = image.Rect(0, 0, 400, 400)
)

func newBackend(t *testing.T, cfg drawsched.Blit2DConfig) (*Backend, *EmulatedDevice) {
	t.Helper()
	dev := NewEmulatedDevice()
	b, err := New(cfg, dev)
	require.NoError(t, err)
	return b, dev
}

func newSource(size int) *drawsched.ImageSource {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return drawsched.NewImageSource(img, gputypes.TextureFormatRGBA8Unorm)
}

func TestNewRequiresDevice(t *testing.T) {
	_, err := New(drawsched.DefaultConfig().Blit2D, nil)
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	b, _ := newBackend(t, drawsched.DefaultConfig().Blit2D)
	src := newSource(200)

	tests := []struct {
		name string
		task *drawsched.DrawTask
		want bool
	}{
		{
			// Too small to be worth offloading.
			name: "small opaque fill",
			task: drawsched.NewFillTask(image.Rect(0, 0, 10, 10), screen, drawsched.FillParams{Color: red, Opacity: drawsched.OpacityCover}),
		},
		{
			name: "large opaque fill",
			task: drawsched.NewFillTask(image.Rect(0, 0, 110, 110), screen, drawsched.FillParams{Color: red, Opacity: drawsched.OpacityCover}),
			want: true,
		},
		{
			name: "translucent fill above its threshold",
			task: drawsched.NewFillTask(image.Rect(0, 0, 60, 60), screen, drawsched.FillParams{Color: red, Opacity: 0x80}),
			want: true,
		},
		{
			name: "opaque fill clipped below threshold",
			task: drawsched.NewFillTask(image.Rect(0, 0, 200, 200), image.Rect(0, 0, 50, 50), drawsched.FillParams{Color: red, Opacity: drawsched.OpacityCover}),
		},
		{
			name: "rounded fill",
			task: drawsched.NewFillTask(image.Rect(0, 0, 200, 200), screen, drawsched.FillParams{Color: red, Opacity: drawsched.OpacityCover, Radius: 8}),
		},
		{
			name: "gradient fill",
			task: drawsched.NewFillTask(image.Rect(0, 0, 200, 200), screen, drawsched.FillParams{Opacity: drawsched.OpacityCover, Gradient: &drawsched.Gradient{}}),
		},
		{
			name: "plain blit",
			task: drawsched.NewImageTask(image.Rect(0, 0, 200, 200), screen, drawsched.ImageParams{Source: src, Opacity: drawsched.OpacityCover}),
			want: true,
		},
		{
			name: "scaled blit",
			task: drawsched.NewImageTask(image.Rect(0, 0, 400, 400), screen, drawsched.ImageParams{Source: src, ScaleX: 2, ScaleY: 2, Opacity: drawsched.OpacityCover}),
			want: true,
		},
		{
			name: "rotated blit",
			task: drawsched.NewImageTask(image.Rect(0, 0, 200, 200), screen, drawsched.ImageParams{Source: src, Rotation: 45, Opacity: drawsched.OpacityCover}),
		},
		{
			name: "recolored blit",
			task: drawsched.NewImageTask(image.Rect(0, 0, 200, 200), screen, drawsched.ImageParams{Source: src, RecolorOpacity: 0x80, Opacity: drawsched.OpacityCover}),
		},
		{
			name: "large compose",
			task: drawsched.NewLayerTask(image.Rect(0, 0, 200, 200), screen, drawsched.LayerParams{Opacity: drawsched.OpacityCover}),
			want: true,
		},
		{
			name: "small compose",
			task: drawsched.NewLayerTask(image.Rect(0, 0, 20, 20), screen, drawsched.LayerParams{Opacity: drawsched.OpacityCover}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, ok := b.Evaluate(tt.task)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, 70, score)
			}
		})
	}
}

func TestEvaluateRejectsUnsupportedSurface(t *testing.T) {
	b, _ := newBackend(t, drawsched.DefaultConfig().Blit2D)
	require.NoError(t, b.SetDevice(surface{format: gputypes.TextureFormatR8Unorm}))

	task := drawsched.NewFillTask(image.Rect(0, 0, 200, 200), screen, drawsched.FillParams{Color: red, Opacity: drawsched.OpacityCover})
	_, ok := b.Evaluate(task)
	assert.False(t, ok)
}

// The second blit of the same source is served from cache.
func TestBlitMapCacheHit(t *testing.T) {
	b, dev := newBackend(t, drawsched.DefaultConfig().Blit2D)
	dst := drawsched.NewBuffer(screen, gputypes.TextureFormatRGBA8Unorm)
	src := newSource(200)
	p := &drawsched.ImageParams{Source: src, Opacity: drawsched.OpacityCover}

	area := image.Rect(0, 0, 200, 200)
	require.NoError(t, b.Blit(dst, area, area, p))
	require.NoError(t, b.Blit(dst, area, area, p))

	st := b.CacheStats()
	assert.EqualValues(t, 1, st.Misses)
	assert.EqualValues(t, 1, st.Hits)
	assert.Equal(t, 1, dev.Stats().Maps, "one upload for two blits")
	assert.Equal(t, 2, dev.Stats().Blits)
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, dst.Image.RGBAAt(100, 100))
	assert.Zero(t, b.maps.PendingLen(), "synchronous blits release pending maps")
}

// Sources built as literals still get distinct cache entries.
func TestBlitLiteralSourcesAreDistinct(t *testing.T) {
	b, dev := newBackend(t, drawsched.DefaultConfig().Blit2D)
	dst := drawsched.NewBuffer(screen, gputypes.TextureFormatRGBA8Unorm)
	area := image.Rect(0, 0, 100, 100)
	blue := color.RGBA{B: 0xff, A: 0xff}

	for _, c := range []color.RGBA{red, blue} {
		img := image.NewRGBA(area)
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
		}
		src := &drawsched.ImageSource{Image: img, Format: gputypes.TextureFormatRGBA8Unorm}
		require.NoError(t, b.Blit(dst, area, area, &drawsched.ImageParams{Source: src, Opacity: drawsched.OpacityCover}))
		assert.Equal(t, c, dst.Image.RGBAAt(50, 50))
	}
	assert.Equal(t, 2, dev.Stats().Maps)
	assert.EqualValues(t, 2, b.CacheStats().Misses)
}

func TestBlitEvictionNeverUnmapsInFlight(t *testing.T) {
	cfg := drawsched.DefaultConfig().Blit2D
	cfg.MapCacheSize = 1
	b, dev := newBackend(t, cfg)
	dst := drawsched.NewBuffer(screen, gputypes.TextureFormatRGBA8Unorm)
	area := image.Rect(0, 0, 100, 100)

	for range 4 {
		p := &drawsched.ImageParams{Source: newSource(100), Opacity: drawsched.OpacityCover}
		require.NoError(t, b.Blit(dst, area, area, p))
	}

	st := dev.Stats()
	assert.Equal(t, 4, st.Maps)
	assert.Equal(t, 3, st.Unmaps)
	assert.Zero(t, st.Violations)

	require.NoError(t, b.Close())
	assert.Zero(t, dev.Stats().Mapped)
}

func TestFillRejectsUnsupported(t *testing.T) {
	b, dev := newBackend(t, drawsched.DefaultConfig().Blit2D)
	dst := drawsched.NewBuffer(screen, gputypes.TextureFormatRGBA8Unorm)

	err := b.Fill(dst, screen, screen, &drawsched.FillParams{Radius: 4})
	assert.ErrorIs(t, err, drawsched.ErrNotSupported)
	assert.Zero(t, dev.Stats().Fills)
}

func TestRenderThroughContext(t *testing.T) {
	b, dev := newBackend(t, drawsched.DefaultConfig().Blit2D)
	cfg := drawsched.DefaultConfig()
	cfg.Synchronous = true
	rc, err := drawsched.New(drawsched.WithConfig(cfg), drawsched.WithBackends(b))
	require.NoError(t, err)
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	child, err := rc.NewLayer("child", image.Rect(0, 0, 200, 200))
	require.NoError(t, err)
	require.NoError(t, child.Submit(drawsched.NewFillTask(image.Rect(0, 0, 200, 200), screen,
		drawsched.FillParams{Color: red, Opacity: drawsched.OpacityCover})))
	require.NoError(t, rc.FinishLayer(ctx, child))

	root, err := rc.NewLayer("root", screen)
	require.NoError(t, err)
	require.NoError(t, root.Submit(drawsched.NewLayerTask(image.Rect(0, 0, 200, 200), screen,
		drawsched.LayerParams{Source: child, Opacity: drawsched.OpacityCover})))
	require.NoError(t, rc.FinishLayer(ctx, root))

	assert.Equal(t, red, root.Buffer().Image.RGBAAt(50, 50))
	assert.Equal(t, color.RGBA{}, root.Buffer().Image.RGBAAt(300, 300))
	st := dev.Stats()
	assert.Equal(t, 1, st.Fills)
	assert.Equal(t, 1, st.Blits)
	assert.Zero(t, st.Violations)
	assert.Zero(t, st.Mapped, "layer mappings are per operation")
}

// surface is a host device exposing only a surface format.
type surface struct {
	drawsched.NullDevice
	format gputypes.TextureFormat
}

func (s surface) SurfaceFormat() gputypes.TextureFormat { return s.format }
