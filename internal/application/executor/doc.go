// Package executor runs individual tasks.
//
// The Executor wraps a task's work function with a per-attempt timeout race
// and a bounded retry loop, publishing lifecycle events as it goes. The
// Admission controller bounds how many tasks hold an execution slot at once;
// a refused slot is treated as a failed attempt and re-tried through the
// normal retry mechanism.
package executor
