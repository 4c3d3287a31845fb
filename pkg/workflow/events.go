package workflow

import "time"

// EventType identifies a task lifecycle transition.
type EventType string

const (
	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskRetry     EventType = "task.retry"
)

// Event is an ephemeral lifecycle notification. Events are published to the
// run's subscribers in transition order and not retained.
type Event struct {
	Type      EventType   `json:"type"`
	TaskID    string      `json:"task_id"`
	Timestamp time.Time   `json:"timestamp"`
	Attempt   int         `json:"attempt,omitempty"`
	Error     string      `json:"error,omitempty"`
	Result    interface{} `json:"result,omitempty"`
}

// EventHandler receives lifecycle events. Handlers are invoked synchronously
// in subscription order; a slow handler delays the run.
type EventHandler func(Event)

// MetricsCollector is the consumer-side metrics interface the engine and the
// run manager report into.
type MetricsCollector interface {
	RecordRunSubmitted(status string)
	RecordRunCompleted(status string, duration time.Duration)
	RecordTaskExecuted(status string, duration time.Duration)
	RecordTaskRetry()
	RecordTaskTimeout()
	SetRunningTasks(count int)
	SetActiveRuns(count int)
}

// NopMetrics discards all measurements. Used in tests and the one-shot CLI
// mode.
type NopMetrics struct{}

func (NopMetrics) RecordRunSubmitted(string)                {}
func (NopMetrics) RecordRunCompleted(string, time.Duration) {}
func (NopMetrics) RecordTaskExecuted(string, time.Duration) {}
func (NopMetrics) RecordTaskRetry()                         {}
func (NopMetrics) RecordTaskTimeout()                       {}
func (NopMetrics) SetRunningTasks(int)                      {}
func (NopMetrics) SetActiveRuns(int)                        {}
