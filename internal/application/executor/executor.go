package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/taskrun/internal/application/events"
	"github.com/aescanero/taskrun/pkg/workflow"
)

// Executor executes a single task with retry and timeout handling, mutating
// the task's state entry and publishing lifecycle events. One Executor is
// shared by all tasks of a run; the per-task state entry is only ever
// touched by the one in-flight Execute call for that task.
type Executor struct {
	admission *Admission
	publisher *events.Publisher
	metrics   workflow.MetricsCollector
	logger    *zap.Logger
	defaults  workflow.Defaults
}

// NewExecutor creates an executor bound to a run's admission controller and
// publisher.
func NewExecutor(
	admission *Admission,
	publisher *events.Publisher,
	metrics workflow.MetricsCollector,
	logger *zap.Logger,
	defaults workflow.Defaults,
) *Executor {
	return &Executor{
		admission: admission,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		defaults:  defaults,
	}
}

// attemptOutcome carries the settlement of one attempt's work goroutine.
type attemptOutcome struct {
	value interface{}
	err   error
}

// Execute runs the task until it completes or its retry budget is exhausted.
// It returns true on completion. Attempts are pre-incremented, so a task
// with N retries performs at most N+1 tries. Calling Execute on a terminal
// state is a programmer error; the runner never does it.
func (e *Executor) Execute(ctx context.Context, task workflow.Task, state *workflow.TaskState) bool {
	timeout := e.effectiveTimeout(task)

	for state.Attempts <= state.MaxRetries {
		state.Attempts++
		now := time.Now()
		if state.StartedAt == nil {
			state.StartedAt = &now
		}
		state.Status = workflow.StatusRunning

		e.publisher.Publish(workflow.Event{
			Type:      workflow.EventTaskStarted,
			TaskID:    task.ID,
			Timestamp: now,
			Attempt:   state.Attempts,
		})

		value, err := e.attempt(ctx, task, state.Attempts, timeout)
		if err == nil {
			e.complete(task.ID, state, value)
			return true
		}

		state.Error = err.Error()
		e.logger.Debug("task attempt failed",
			zap.String("task_id", task.ID),
			zap.Int("attempt", state.Attempts),
			zap.Error(err))

		// A canceled run does not retry.
		if ctx.Err() == nil && state.Attempts <= state.MaxRetries {
			e.metrics.RecordTaskRetry()
			e.publisher.Publish(workflow.Event{
				Type:      workflow.EventTaskRetry,
				TaskID:    task.ID,
				Timestamp: time.Now(),
				Attempt:   state.Attempts,
				Error:     state.Error,
			})
			if !e.pause(ctx) {
				break
			}
			continue
		}
		break
	}

	e.fail(task.ID, state)
	return false
}

// attempt performs one admission-gated, timeout-raced execution of the work
// function. The slot is released once the attempt settles, whatever the
// outcome; a timed-out work goroutine is abandoned and its eventual result
// discarded via the buffered channel.
func (e *Executor) attempt(ctx context.Context, task workflow.Task, attempt int, timeout time.Duration) (interface{}, error) {
	if !e.admission.TryAcquire(task.ID) {
		return nil, &workflow.ExecutionError{
			Kind:    workflow.ExecAdmissionRefused,
			TaskID:  task.ID,
			Attempt: attempt,
		}
	}
	defer func() {
		e.admission.Release(task.ID)
		e.metrics.SetRunningTasks(e.admission.RunningCount())
	}()
	e.metrics.SetRunningTasks(e.admission.RunningCount())

	outcomeCh := make(chan attemptOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcomeCh <- attemptOutcome{err: fmt.Errorf("work panicked: %v", r)}
			}
		}()
		value, err := task.Work(ctx)
		outcomeCh <- attemptOutcome{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-outcomeCh:
		if out.err != nil {
			return nil, &workflow.ExecutionError{
				Kind:    workflow.ExecWorkFailed,
				TaskID:  task.ID,
				Attempt: attempt,
				Err:     out.err,
			}
		}
		return out.value, nil

	case <-timer.C:
		e.metrics.RecordTaskTimeout()
		return nil, &workflow.ExecutionError{
			Kind:    workflow.ExecTimeout,
			TaskID:  task.ID,
			Attempt: attempt,
		}

	case <-ctx.Done():
		return nil, &workflow.ExecutionError{
			Kind:    workflow.ExecCanceled,
			TaskID:  task.ID,
			Attempt: attempt,
			Err:     ctx.Err(),
		}
	}
}

func (e *Executor) complete(taskID string, state *workflow.TaskState, value interface{}) {
	now := time.Now()
	state.Status = workflow.StatusCompleted
	state.EndedAt = &now
	state.Duration = now.Sub(*state.StartedAt)
	state.Result = value
	state.Error = ""

	e.metrics.RecordTaskExecuted(string(workflow.StatusCompleted), state.Duration)
	e.publisher.Publish(workflow.Event{
		Type:      workflow.EventTaskCompleted,
		TaskID:    taskID,
		Timestamp: now,
		Attempt:   state.Attempts,
		Result:    value,
	})
}

func (e *Executor) fail(taskID string, state *workflow.TaskState) {
	now := time.Now()
	state.Status = workflow.StatusFailed
	state.EndedAt = &now
	if state.StartedAt != nil {
		state.Duration = now.Sub(*state.StartedAt)
	}

	e.metrics.RecordTaskExecuted(string(workflow.StatusFailed), state.Duration)
	e.publisher.Publish(workflow.Event{
		Type:      workflow.EventTaskFailed,
		TaskID:    taskID,
		Timestamp: now,
		Attempt:   state.Attempts,
		Error:     state.Error,
	})
}

// pause waits the configured inter-retry delay. It returns false if the run
// was canceled while waiting.
func (e *Executor) pause(ctx context.Context) bool {
	if e.defaults.RetryDelay <= 0 {
		return true
	}
	timer := time.NewTimer(e.defaults.RetryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// effectiveTimeout resolves the task timeout against the run defaults and
// the configured ceiling.
func (e *Executor) effectiveTimeout(task workflow.Task) time.Duration {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = e.defaults.Timeout
	}
	if e.defaults.MaxTimeout > 0 && timeout > e.defaults.MaxTimeout {
		timeout = e.defaults.MaxTimeout
	}
	return timeout
}
