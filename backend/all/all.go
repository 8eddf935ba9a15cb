// Package all registers every drawing backend.
//
//	import _ "github.com/gogpu/drawsched/backend/all"
package all

import (
	// Registered in priority order by their init functions.
	_ "github.com/gogpu/drawsched/backend/blit2d"
	_ "github.com/gogpu/drawsched/backend/glpath"
	_ "github.com/gogpu/drawsched/backend/software"
	_ "github.com/gogpu/drawsched/backend/vector"
)
