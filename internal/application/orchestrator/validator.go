package orchestrator

import (
	"github.com/aescanero/taskrun/pkg/workflow"
)

// Validator validates workflow task lists.
type Validator struct{}

// NewValidator creates a new graph validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the task list for structural problems: empty or duplicate
// ids, missing work functions, references to unknown tasks, self-references
// and dependency cycles. It is a pure function over the task list; for a
// given input ordering the first problem found is the one reported.
func (v *Validator) Validate(tasks []workflow.Task) error {
	byID := make(map[string]workflow.Task, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return &workflow.ValidationError{Kind: workflow.ValidationEmptyID}
		}
		if t.Work == nil {
			return &workflow.ValidationError{Kind: workflow.ValidationNilWork, TaskID: t.ID}
		}
		if _, dup := byID[t.ID]; dup {
			return &workflow.ValidationError{Kind: workflow.ValidationDuplicateID, TaskID: t.ID}
		}
		byID[t.ID] = t
	}

	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				return &workflow.ValidationError{Kind: workflow.ValidationSelfReference, TaskID: t.ID}
			}
			if _, ok := byID[dep]; !ok {
				return &workflow.ValidationError{
					Kind:       workflow.ValidationMissingDependency,
					TaskID:     t.ID,
					Dependency: dep,
				}
			}
		}
	}

	return v.detectCycle(tasks, byID)
}

// detectCycle runs a depth-first traversal over the dependency edges with
// two per-node markers: visited (fully processed) and onStack (in the active
// traversal path). An edge back to a node still on the stack is a cycle; the
// offending path is the suffix of the current DFS path starting at the
// revisited node.
func (v *Validator) detectCycle(tasks []workflow.Task, byID map[string]workflow.Task) error {
	visited := make(map[string]bool, len(tasks))
	onStack := make(map[string]bool, len(tasks))
	var path []string

	var visit func(id string) *workflow.ValidationError
	visit = func(id string) *workflow.ValidationError {
		if onStack[id] {
			return &workflow.ValidationError{
				Kind:   workflow.ValidationCycle,
				TaskID: id,
				Cycle:  cyclePath(path, id),
			}
		}
		if visited[id] {
			return nil
		}

		onStack[id] = true
		path = append(path, id)

		for _, dep := range byID[id].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		delete(onStack, id)
		visited[id] = true
		return nil
	}

	for _, t := range tasks {
		if err := visit(t.ID); err != nil {
			return err
		}
	}
	return nil
}

// cyclePath extracts the cycle from the DFS path, closing it on the
// revisited node for diagnostics.
func cyclePath(path []string, revisited string) []string {
	for i, id := range path {
		if id == revisited {
			cycle := make([]string, 0, len(path)-i+1)
			cycle = append(cycle, path[i:]...)
			return append(cycle, revisited)
		}
	}
	return []string{revisited, revisited}
}
