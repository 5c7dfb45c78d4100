package task

// isReady reports whether a task is pending with every dependency completed.
// Callers must hold r.mu.
func (r *Registry) isReady(task *Task) bool {
	if task.Status != StatusPending {
		return false
	}
	for _, depID := range task.Dependencies {
		dep, ok := r.tasks[depID]
		if !ok || dep.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// unblockedBy returns the IDs of pending tasks that depend on the given task
// and have become ready now that it is finished. Callers must hold r.mu.
func (r *Registry) unblockedBy(id string) []string {
	var unblocked []string
	for _, depID := range r.dependents[id] {
		if task, ok := r.tasks[depID]; ok && r.isReady(task) {
			unblocked = append(unblocked, depID)
		}
	}
	return unblocked
}

// createsCycle reports whether adding a task with the given ID and
// dependencies would introduce a dependency cycle. Existing tasks are
// acyclic, so any new cycle must pass through the candidate; a DFS from it
// suffices. Callers must hold r.mu.
func (r *Registry) createsCycle(id string, deps []string) bool {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	colors := make(map[string]int)

	edges := func(cur string) []string {
		if cur == id {
			return deps
		}
		if task, ok := r.tasks[cur]; ok {
			return task.Dependencies
		}
		return nil
	}

	var visit func(cur string) bool
	visit = func(cur string) bool {
		colors[cur] = gray
		for _, next := range edges(cur) {
			switch colors[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		colors[cur] = black
		return false
	}

	return visit(id)
}
