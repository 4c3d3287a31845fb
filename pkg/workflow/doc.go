// Package workflow defines the domain types shared across the task runner:
// task descriptors, per-task execution state, lifecycle events, run results
// and the structured error taxonomy.
//
// The types here carry no behavior beyond construction helpers; all mutation
// of TaskState happens inside the application layer for the duration of a
// single run.
package workflow
