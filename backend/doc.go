// Package backend assembles drawing backends into a render context.
//
// # Backend Registration
//
// Backend packages register themselves from init() functions.
// Import the ones you need, or all of them:
//
//	import _ "github.com/gogpu/drawsched/backend/all"
//
// Each registration carries a priority that fixes the unit order, and the
// software backend is marked as the fallback that redraws tasks a
// hardware backend failed to execute.
//
// # Usage
//
//	cfg := drawsched.DefaultConfig()
//	cfg.GLPath.Enabled = false
//
//	rc, err := backend.NewContext(cfg, drawsched.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rc.Close()
//
// Use Get to create a single backend by name, for example in tests.
//
// # Available Backends
//
//   - software: CPU fallback, accepts every task
//   - blit2d: 2D blitter for large solid fills, plain blits and layer compose
//   - vector: vector GPU for gradients, rounded fills and transformed images
//   - glpath: OpenGL path renderer for layer compose and transformed images
package backend
