// Package orchestrator implements the core workflow execution engine.
//
// The runner coordinates a single workflow run by:
//   - Validating the dependency graph (duplicates, unknown references, cycles)
//   - Initializing per-task state with computed reverse edges
//   - Releasing tasks to the executor as their dependencies complete
//   - Propagating skips to the dependents of failed tasks
//   - Aggregating the final run result
//
// The validator ensures task lists are well-formed with no cycles before any
// work function executes.
package orchestrator
