package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/taskrun/internal/application/events"
	"github.com/aescanero/taskrun/internal/application/executor"
	"github.com/aescanero/taskrun/pkg/workflow"
)

// Runner drives workflow runs. It owns the per-run task state map for the
// duration of a run; tasks whose dependencies have completed are handed to
// the executor, in parallel up to the admission capacity.
type Runner struct {
	validator *Validator
	metrics   workflow.MetricsCollector
	logger    *zap.Logger
	defaults  workflow.Defaults
}

// NewRunner creates a runner with the given collaborators and run defaults.
func NewRunner(
	validator *Validator,
	metrics workflow.MetricsCollector,
	logger *zap.Logger,
	defaults workflow.Defaults,
) *Runner {
	if defaults.Timeout <= 0 {
		defaults.Timeout = 30 * time.Second
	}
	if defaults.Retries < 0 {
		defaults.Retries = 0
	}
	if defaults.MaxConcurrent < 1 {
		defaults.MaxConcurrent = 1
	}
	return &Runner{
		validator: validator,
		metrics:   metrics,
		logger:    logger,
		defaults:  defaults,
	}
}

// Defaults returns the run defaults the runner was built with.
func (r *Runner) Defaults() workflow.Defaults {
	return r.defaults
}

// Run executes the task list and returns the aggregated result. It fails
// only when graph validation fails; individual task failures are reported in
// the result, never as an error. Observers receive every lifecycle event of
// the run in causal order.
func (r *Runner) Run(ctx context.Context, tasks []workflow.Task, observers ...workflow.EventHandler) (*workflow.Result, error) {
	if err := r.validator.Validate(tasks); err != nil {
		r.logger.Error("workflow validation failed", zap.Error(err))
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	publisher := events.NewPublisher()
	for _, obs := range observers {
		publisher.Subscribe(obs)
	}

	admission := executor.NewAdmission(r.defaults.MaxConcurrent)
	exec := executor.NewExecutor(admission, publisher, r.metrics, r.logger, r.defaults)

	states := r.initStates(tasks)
	start := time.Now()

	r.logger.Info("workflow run started",
		zap.Int("tasks", len(tasks)),
		zap.Int("max_concurrent", admission.Capacity()))

	r.schedule(ctx, tasks, states, exec, publisher)

	result := r.aggregate(states, start, len(tasks))
	r.metrics.RecordRunCompleted(string(result.Status), result.Duration)
	r.logger.Info("workflow run finished",
		zap.String("status", string(result.Status)),
		zap.Int("completed", result.CompletedTasks),
		zap.Int("failed", result.FailedTasks),
		zap.Int("skipped", result.SkippedTasks),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// initStates builds one TaskState per task and computes the reverse
// dependency edges used for skip propagation.
func (r *Runner) initStates(tasks []workflow.Task) map[string]*workflow.TaskState {
	states := make(map[string]*workflow.TaskState, len(tasks))
	for _, t := range tasks {
		retries := t.Retries
		if retries < 0 {
			retries = r.defaults.Retries
		}
		states[t.ID] = &workflow.TaskState{
			ID:           t.ID,
			Status:       workflow.StatusPending,
			MaxRetries:   retries,
			Dependencies: t.Dependencies,
		}
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			states[dep].Dependents = append(states[dep].Dependents, t.ID)
		}
	}
	return states
}

// schedule releases tasks for execution as their dependencies complete and
// applies skip propagation as failures surface. It returns once every task
// has reached a terminal status.
//
// The scheduler only reads the state of tasks it has not launched, or whose
// completion it has observed on doneCh; the channel receive orders those
// reads after the executor's writes.
func (r *Runner) schedule(
	ctx context.Context,
	tasks []workflow.Task,
	states map[string]*workflow.TaskState,
	exec *executor.Executor,
	publisher *events.Publisher,
) {
	launched := make(map[string]bool, len(tasks))
	finished := make(map[string]bool, len(tasks))
	doneCh := make(chan string)
	inFlight := 0

	scan := func() {
		for {
			progress := false
			for _, t := range tasks {
				if launched[t.ID] {
					continue
				}
				st := states[t.ID]
				if st.Status != workflow.StatusPending {
					continue
				}

				ready, blocker := readiness(st, states, launched, finished)
				if blocker != "" {
					r.skip(st, publisher, fmt.Sprintf("dependency %s not completed", blocker))
					progress = true
					continue
				}
				if !ready || ctx.Err() != nil {
					continue
				}

				launched[t.ID] = true
				inFlight++
				progress = true
				go func(task workflow.Task, state *workflow.TaskState) {
					exec.Execute(ctx, task, state)
					doneCh <- task.ID
				}(t, st)
			}
			if !progress {
				return
			}
		}
	}

	scan()
	for inFlight > 0 {
		id := <-doneCh
		inFlight--
		finished[id] = true
		scan()
	}

	// A canceled run stops launching; whatever is still pending is skipped so
	// every task ends in exactly one terminal status.
	for _, t := range tasks {
		if st := states[t.ID]; st.Status == workflow.StatusPending {
			r.skip(st, publisher, "run canceled")
		}
	}
}

// readiness reports whether every dependency has completed. A non-empty
// blocker names a dependency that terminally failed or was skipped, which
// dooms the task to a skip.
func readiness(
	st *workflow.TaskState,
	states map[string]*workflow.TaskState,
	launched, finished map[string]bool,
) (ready bool, blocker string) {
	ready = true
	for _, dep := range st.Dependencies {
		if launched[dep] && !finished[dep] {
			ready = false
			continue
		}
		switch states[dep].Status {
		case workflow.StatusCompleted:
		case workflow.StatusFailed, workflow.StatusSkipped:
			return false, dep
		default:
			ready = false
		}
	}
	return ready, ""
}

// skip marks a pending task terminally skipped and announces it with a
// failed-class event. Attempts are not incremented and no timing is
// recorded; the task never executed.
func (r *Runner) skip(st *workflow.TaskState, publisher *events.Publisher, reason string) {
	st.Status = workflow.StatusSkipped
	st.Error = reason

	r.metrics.RecordTaskExecuted(string(workflow.StatusSkipped), 0)
	publisher.Publish(workflow.Event{
		Type:      workflow.EventTaskFailed,
		TaskID:    st.ID,
		Timestamp: time.Now(),
		Error:     reason,
	})
}

// aggregate builds the immutable run result once all tasks are terminal.
func (r *Runner) aggregate(states map[string]*workflow.TaskState, start time.Time, total int) *workflow.Result {
	end := time.Now()
	result := &workflow.Result{
		Status:     workflow.RunCompleted,
		Tasks:      states,
		StartedAt:  start,
		EndedAt:    end,
		Duration:   end.Sub(start),
		TotalTasks: total,
	}
	for _, st := range states {
		switch st.Status {
		case workflow.StatusCompleted:
			result.CompletedTasks++
		case workflow.StatusFailed:
			result.FailedTasks++
		case workflow.StatusSkipped:
			result.SkippedTasks++
		}
	}
	if result.FailedTasks > 0 {
		result.Status = workflow.RunFailed
	}
	return result
}
