// Package drawsched schedules drawing operations across hardware
// accelerators and a software fallback.
//
// # Overview
//
// A renderer produces a stream of [DrawTask] values (fill, image blit,
// layer compose) and submits them to a [Layer]. Every [DrawUnit] of the
// [RenderContext] evaluates a task when it is submitted; the unit offering
// the lowest preference score is recorded on the task. The dispatcher then
// asks every idle unit to claim the best task addressed to it. A claimed task
// runs on the unit's worker goroutine and, once finished, requests another
// dispatch pass.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/drawsched"
//		"github.com/gogpu/drawsched/backend"
//		_ "github.com/gogpu/drawsched/backend/all"
//	)
//
//	rc, err := backend.NewContext(drawsched.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rc.Close()
//
//	layer, _ := rc.NewLayer("screen", image.Rect(0, 0, 800, 480))
//	layer.Submit(drawsched.NewFillTask(area, clip, drawsched.FillParams{
//		Color:   color.RGBA{R: 255, A: 255},
//		Opacity: drawsched.OpacityCover,
//	}))
//	if err := rc.FinishLayer(ctx, layer); err != nil {
//		log.Fatal(err)
//	}
//
// # Scheduling
//
// Software execution is always a valid fallback with a fixed baseline
// score. Hardware units lower the score only for tasks that meet their
// constraints and are large enough to be worth offloading. Ties keep the
// first unit that offered the lower score.
//
// At most one task is in flight per unit. Tasks dispatched to different
// units carry no ordering guarantee; with Config.PreserveOverlapOrder a task
// is held back while an earlier unfinished task of the same layer overlaps it.
//
// # Threads
//
// Each unit owns a worker goroutine. Building with the drawsched_nothreads
// tag executes every task inline on the dispatching goroutine instead.
package drawsched
