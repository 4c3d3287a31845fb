package workflow

import (
	"fmt"
	"strings"
)

// ValidationKind classifies structural problems in a submitted task list.
type ValidationKind string

const (
	ValidationEmptyID           ValidationKind = "empty_id"
	ValidationNilWork           ValidationKind = "nil_work"
	ValidationDuplicateID       ValidationKind = "duplicate_id"
	ValidationMissingDependency ValidationKind = "missing_dependency"
	ValidationSelfReference     ValidationKind = "self_reference"
	ValidationCycle             ValidationKind = "cycle"
)

// ValidationError is returned when the dependency graph is malformed. It is
// fatal to the run and raised before any task executes.
type ValidationError struct {
	Kind       ValidationKind
	TaskID     string
	Dependency string
	// Cycle holds the offending path for ValidationCycle, starting and
	// ending at the revisited task.
	Cycle []string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ValidationEmptyID:
		return "workflow validation failed: task with empty id"
	case ValidationNilWork:
		return fmt.Sprintf("workflow validation failed: task %s has no work function", e.TaskID)
	case ValidationDuplicateID:
		return fmt.Sprintf("workflow validation failed: duplicate task id %s", e.TaskID)
	case ValidationMissingDependency:
		return fmt.Sprintf("workflow validation failed: task %s depends on unknown task %s", e.TaskID, e.Dependency)
	case ValidationSelfReference:
		return fmt.Sprintf("workflow validation failed: task %s depends on itself", e.TaskID)
	case ValidationCycle:
		return fmt.Sprintf("workflow validation failed: dependency cycle %s", strings.Join(e.Cycle, " -> "))
	default:
		return "workflow validation failed"
	}
}

// ExecutionErrorKind classifies why a single attempt failed. Execution errors
// are recovered by the retry loop and only surface in TaskState.Error once
// the retry budget is exhausted.
type ExecutionErrorKind string

const (
	ExecWorkFailed       ExecutionErrorKind = "work_failed"
	ExecTimeout          ExecutionErrorKind = "timeout"
	ExecAdmissionRefused ExecutionErrorKind = "admission_refused"
	ExecCanceled         ExecutionErrorKind = "canceled"
)

// ExecutionError wraps a single attempt failure with its kind.
type ExecutionError struct {
	Kind    ExecutionErrorKind
	TaskID  string
	Attempt int
	Err     error
}

func (e *ExecutionError) Error() string {
	switch e.Kind {
	case ExecTimeout:
		return fmt.Sprintf("task %s attempt %d: timeout exceeded", e.TaskID, e.Attempt)
	case ExecAdmissionRefused:
		return fmt.Sprintf("task %s attempt %d: concurrency limit reached, admission refused", e.TaskID, e.Attempt)
	case ExecCanceled:
		return fmt.Sprintf("task %s attempt %d: run canceled: %v", e.TaskID, e.Attempt, e.Err)
	default:
		return fmt.Sprintf("task %s attempt %d: %v", e.TaskID, e.Attempt, e.Err)
	}
}

func (e *ExecutionError) Unwrap() error { return e.Err }
