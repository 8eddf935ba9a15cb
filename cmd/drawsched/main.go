// Command drawsched renders a demo scene through every enabled backend and
// writes it as PNG.
package main

import (
	"context"
	"errors"
	"flag"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gogpu/drawsched"
	"github.com/gogpu/drawsched/backend"
	_ "github.com/gogpu/drawsched/backend/all"
	"github.com/gogpu/drawsched/observability/prometheus"
	"github.com/gogpu/gputypes"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		width       = flag.Int("width", 800, "image width")
		height      = flag.Int("height", 600, "image height")
		output      = flag.String("output", "drawsched.png", "output file")
		configPath  = flag.String("config", "", "TOML or YAML config file")
		verbose     = flag.Bool("v", false, "log scheduler events")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address after rendering")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	drawsched.SetLogger(logger)

	if err := run(logger, *width, *height, *output, *configPath, *metricsAddr); err != nil {
		logger.Error("drawsched failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, width, height int, output, configPath, metricsAddr string) error {
	cfg := drawsched.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = drawsched.LoadConfig(configPath); err != nil {
			return err
		}
	}

	reg := prom.NewRegistry()
	exporter, err := prometheus.NewMetricsExporter("drawsched", reg, prometheus.ExporterOptions{})
	if err != nil {
		return err
	}

	rc, err := backend.NewContext(cfg, drawsched.WithLogger(logger), drawsched.WithMetrics(exporter))
	if err != nil {
		return err
	}
	defer rc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	g.Go(func() error {
		if err := rc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	var img *image.RGBA
	g.Go(func() error {
		defer cancelRun()
		start := time.Now()
		var err error
		img, err = drawScene(gctx, rc, image.Rect(0, 0, width, height))
		if err != nil {
			return err
		}
		logger.Info("scene rendered", "elapsed", time.Since(start).String(), "stats", rc.Stats())
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := writePNG(output, img); err != nil {
		return err
	}
	logger.Info("scene saved", "output", output, "width", width, "height", height)

	if metricsAddr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	logger.Info("serving metrics", "addr", metricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// drawScene draws a card layer and composes it onto a root layer with a
// mix of fills and images that spread across the backends.
func drawScene(ctx context.Context, rc *drawsched.RenderContext, screen image.Rectangle) (*image.RGBA, error) {
	card := image.Rect(screen.Dx()/8, screen.Dy()/8, screen.Dx()/2, screen.Dy()/2)
	cardLayer, err := rc.NewLayer("card", card)
	if err != nil {
		return nil, err
	}
	cardTasks := []*drawsched.DrawTask{
		drawsched.NewFillTask(card, card, drawsched.FillParams{
			Opacity: drawsched.OpacityCover,
			Radius:  16,
			Gradient: &drawsched.Gradient{
				Kind:  drawsched.GradientLinear,
				Stops: []drawsched.ColorStop{{Offset: 0, Color: rgb(0x2b, 0x59, 0xc3)}, {Offset: 1, Color: rgb(0x8e, 0x2d, 0xe2)}},
				Start: card.Min,
				End:   image.Pt(card.Max.X, card.Min.Y),
			},
		}),
		drawsched.NewFillTask(image.Rect(card.Min.X+16, card.Min.Y+16, card.Min.X+40, card.Min.Y+40), card,
			drawsched.FillParams{Color: rgb(0xff, 0xff, 0xff), Opacity: 0xc0, Radius: 12}),
	}
	for _, t := range cardTasks {
		if err := cardLayer.Submit(t); err != nil {
			return nil, err
		}
	}
	if err := rc.FinishLayer(ctx, cardLayer); err != nil {
		return nil, err
	}

	root, err := rc.NewLayer("root", screen)
	if err != nil {
		return nil, err
	}
	icon := checkerboard(64)
	iconArea := image.Rect(screen.Dx()*5/8, screen.Dy()/8, screen.Dx()*5/8+128, screen.Dy()/8+128)
	tasks := []*drawsched.DrawTask{
		drawsched.NewFillTask(screen, screen, drawsched.FillParams{Color: rgb(0x1e, 0x1e, 0x24), Opacity: drawsched.OpacityCover}),
		drawsched.NewFillTask(image.Rect(0, screen.Dy()*3/4, screen.Dx(), screen.Dy()), screen, drawsched.FillParams{
			Opacity: drawsched.OpacityCover,
			Gradient: &drawsched.Gradient{
				Kind:   drawsched.GradientRadial,
				Stops:  []drawsched.ColorStop{{Offset: 0, Color: rgb(0xf5, 0xa6, 0x23)}, {Offset: 1, Color: rgb(0x1e, 0x1e, 0x24)}},
				Center: image.Pt(screen.Dx()/2, screen.Dy()),
				Radius: screen.Dy() / 3,
			},
		}),
		drawsched.NewLayerTask(card, screen, drawsched.LayerParams{Source: cardLayer, Opacity: drawsched.OpacityCover}),
		drawsched.NewImageTask(iconArea, screen, drawsched.ImageParams{Source: icon, ScaleX: 2, ScaleY: 2, Opacity: drawsched.OpacityCover}),
		drawsched.NewImageTask(image.Rect(iconArea.Min.X, iconArea.Max.Y+32, iconArea.Max.X, iconArea.Max.Y+160), screen,
			drawsched.ImageParams{Source: icon, Rotation: 15, ScaleX: 2, ScaleY: 2, Pivot: image.Pt(32, 32), Opacity: drawsched.OpacityCover}),
		drawsched.NewImageTask(image.Rect(iconArea.Max.X+32, iconArea.Min.Y, iconArea.Max.X+96, iconArea.Min.Y+64), screen,
			drawsched.ImageParams{Source: icon, Recolor: rgb(0x2e, 0xcc, 0x71), RecolorOpacity: 0xa0, Opacity: drawsched.OpacityCover}),
		drawsched.NewFillTask(image.Rect(8, 8, 16, 16), screen, drawsched.FillParams{Color: rgb(0xe7, 0x4c, 0x3c), Opacity: drawsched.OpacityCover}),
	}
	for _, t := range tasks {
		if err := root.Submit(t); err != nil {
			return nil, err
		}
	}
	if err := rc.FinishLayer(ctx, root); err != nil {
		return nil, err
	}

	out := image.NewRGBA(screen)
	copy(out.Pix, root.Buffer().Image.Pix)
	if err := rc.ReleaseLayer(root); err != nil {
		return nil, err
	}
	if err := rc.ReleaseLayer(cardLayer); err != nil {
		return nil, err
	}
	return out, nil
}

func checkerboard(size int) *drawsched.ImageSource {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			c := rgb(0xec, 0xf0, 0xf1)
			if (x/8+y/8)%2 == 0 {
				c = rgb(0x34, 0x49, 0x5e)
			}
			img.SetRGBA(x, y, c)
		}
	}
	return drawsched.NewImageSource(img, gputypes.TextureFormatRGBA8Unorm)
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
