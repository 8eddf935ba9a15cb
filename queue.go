package drawsched

// Queue is the ordered collection of a layer's draw tasks.
//
// Queue is not synchronized; it is guarded by the owning Layer.
type Queue struct {
	tasks []*DrawTask

	// preserveOrder holds back tasks overlapping an earlier unfinished one.
	preserveOrder bool
}

// Enqueue appends t. Insertion order is preserved.
func (q *Queue) Enqueue(t *DrawTask) {
	q.tasks = append(q.tasks, t)
}

// Len returns the number of tasks not yet pruned.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Tasks returns the queued tasks in insertion order. The slice must not be
// modified.
func (q *Queue) Tasks() []*DrawTask {
	return q.tasks
}

// NextAvailable returns the Queued task with the lowest preference score
// that unitID may run: addressed to unitID or to no unit. Ties keep the
// earliest task. It returns nil if nothing is available.
//
// A task is held back while a layer task's source layer is unfinished,
// and, when order is preserved, while an earlier task that is not Ready
// overlaps it.
func (q *Queue) NextAvailable(unitID int) *DrawTask {
	var best *DrawTask
	for i, t := range q.tasks {
		if t.State() != StateQueued {
			continue
		}
		if u := t.PreferredUnit(); u != unitID && u != NoUnit {
			continue
		}
		if best != nil && t.Score() >= best.Score() {
			continue
		}
		if !q.dependenciesDone(i) {
			continue
		}
		best = t
	}
	return best
}

// dependenciesDone reports whether the task at index i can start.
func (q *Queue) dependenciesDone(i int) bool {
	t := q.tasks[i]
	if p := t.LayerParams(); p != nil && p.Source != nil && !p.Source.Done() {
		return false
	}
	if !q.preserveOrder {
		return true
	}
	area := t.DrawArea()
	for _, prev := range q.tasks[:i] {
		if prev.State() == StateReady {
			continue
		}
		if prev.DrawArea().Overlaps(area) {
			return false
		}
	}
	return true
}

// Prune drops Ready tasks, keeping the order of the rest.
func (q *Queue) Prune() int {
	n := 0
	for _, t := range q.tasks {
		if t.State() != StateReady {
			q.tasks[n] = t
			n++
		}
	}
	removed := len(q.tasks) - n
	clear(q.tasks[n:])
	q.tasks = q.tasks[:n]
	return removed
}
