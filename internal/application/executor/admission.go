package executor

import "sync"

// Admission bounds the number of concurrently running tasks. It owns only
// the running set and the capacity; task state lives elsewhere.
type Admission struct {
	mu       sync.Mutex
	capacity int
	running  map[string]struct{}
}

// NewAdmission creates a controller with the given capacity. Capacities
// below one are raised to one.
func NewAdmission(capacity int) *Admission {
	if capacity < 1 {
		capacity = 1
	}
	return &Admission{
		capacity: capacity,
		running:  make(map[string]struct{}),
	}
}

// TryAcquire grants a slot iff the task is not already running and the
// running count is below capacity. There is no queueing; a refusal is
// surfaced to the caller as an attempt failure.
func (a *Admission) TryAcquire(taskID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.running[taskID]; ok {
		return false
	}
	if len(a.running) >= a.capacity {
		return false
	}
	a.running[taskID] = struct{}{}
	return true
}

// Release frees the task's slot. Releasing a task that was never acquired is
// a no-op.
func (a *Admission) Release(taskID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.running, taskID)
}

// RunningCount returns the number of occupied slots.
func (a *Admission) RunningCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.running)
}

// Capacity returns the configured maximum concurrency.
func (a *Admission) Capacity() int {
	return a.capacity
}
