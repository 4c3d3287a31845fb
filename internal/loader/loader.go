package loader

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aescanero/taskrun/internal/steps"
	"github.com/aescanero/taskrun/pkg/workflow"
)

// WorkflowDef is a declarative workflow definition.
type WorkflowDef struct {
	Name  string    `yaml:"name" json:"name"`
	Tasks []TaskDef `yaml:"tasks" json:"tasks" binding:"required"`
}

// TaskDef is one declarative task. Retries is a pointer so "absent" can fall
// back to the run default while an explicit 0 means a single attempt.
type TaskDef struct {
	ID        string                 `yaml:"id" json:"id" binding:"required"`
	Kind      string                 `yaml:"kind" json:"kind" binding:"required"`
	With      map[string]interface{} `yaml:"with" json:"with"`
	DependsOn []string               `yaml:"depends_on" json:"depends_on"`
	Retries   *int                   `yaml:"retries" json:"retries"`
	TimeoutMs int64                  `yaml:"timeout_ms" json:"timeout_ms"`
}

// LoadFile reads and parses a YAML workflow definition.
func LoadFile(path string) (*WorkflowDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var def WorkflowDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file: %w", err)
	}
	if len(def.Tasks) == 0 {
		return nil, fmt.Errorf("workflow file has no tasks")
	}
	return &def, nil
}

// Build turns the definition into an executable task list, resolving each
// task's kind against the registry. Structural graph validation is left to
// the engine.
func (d *WorkflowDef) Build(registry *steps.Registry) ([]workflow.Task, error) {
	tasks := make([]workflow.Task, 0, len(d.Tasks))
	for _, td := range d.Tasks {
		work, err := registry.Build(td.Kind, td.With)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", td.ID, err)
		}

		retries := -1
		if td.Retries != nil {
			retries = *td.Retries
			if retries < 0 {
				return nil, fmt.Errorf("task %s: retries must not be negative", td.ID)
			}
		}
		if td.TimeoutMs < 0 {
			return nil, fmt.Errorf("task %s: timeout_ms must not be negative", td.ID)
		}

		tasks = append(tasks, workflow.Task{
			ID:           td.ID,
			Work:         work,
			Dependencies: td.DependsOn,
			Retries:      retries,
			Timeout:      time.Duration(td.TimeoutMs) * time.Millisecond,
		})
	}
	return tasks, nil
}
