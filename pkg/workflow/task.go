package workflow

import (
	"context"
	"time"
)

// WorkFunc is the unit of work carried by a task. It must honor ctx
// cancellation and return either an opaque result value or an error.
type WorkFunc func(ctx context.Context) (interface{}, error)

// Task is an immutable task descriptor submitted by the caller.
type Task struct {
	// ID uniquely identifies the task within a run.
	ID string

	// Work is the operation executed for this task.
	Work WorkFunc

	// Dependencies lists task IDs that must reach StatusCompleted before
	// this task may start. Referenced tasks must exist in the same run.
	Dependencies []string

	// Retries is the retry budget. Zero means a single attempt when set
	// explicitly; negative means "use the run default".
	Retries int

	// Timeout bounds a single attempt. Zero means "use the run default".
	Timeout time.Duration
}

// Status is the lifecycle status of a task within a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether the status is final. A terminal TaskState is
// never mutated again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// TaskState is the mutable per-task record for one run. It is owned
// exclusively by the runner; callers only see it embedded in a Result after
// the run has finished.
type TaskState struct {
	ID         string        `json:"id"`
	Status     Status        `json:"status"`
	Attempts   int           `json:"attempts"`
	MaxRetries int           `json:"max_retries"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
	Duration   time.Duration `json:"duration_ms,omitempty"`
	Error      string        `json:"error,omitempty"`
	Result     interface{}   `json:"result,omitempty"`

	Dependencies []string `json:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty"`
}

// RunStatus is the overall status of a finished run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Result summarizes a finished run. It is created once, after every task has
// reached a terminal status, and is immutable from then on.
type Result struct {
	Status    RunStatus             `json:"status"`
	Tasks     map[string]*TaskState `json:"tasks"`
	StartedAt time.Time             `json:"started_at"`
	EndedAt   time.Time             `json:"ended_at"`
	Duration  time.Duration         `json:"duration_ms"`

	CompletedTasks int `json:"completed_tasks"`
	FailedTasks    int `json:"failed_tasks"`
	SkippedTasks   int `json:"skipped_tasks"`
	TotalTasks     int `json:"total_tasks"`
}

// Defaults carries the run-level configuration the engine needs. Values come
// from the config layer; the engine never reads the environment itself.
type Defaults struct {
	// Timeout is applied to tasks that do not set one.
	Timeout time.Duration

	// MaxTimeout caps any per-task timeout.
	MaxTimeout time.Duration

	// Retries is applied to tasks with a negative retry budget.
	Retries int

	// RetryDelay is the fixed pause between a failed attempt and the next.
	RetryDelay time.Duration

	// MaxConcurrent bounds how many tasks may run simultaneously.
	MaxConcurrent int
}
