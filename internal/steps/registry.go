package steps

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/aescanero/taskrun/pkg/workflow"
)

// Builder turns a step's arguments into a runnable work function. Builders
// validate arguments eagerly so bad definitions fail at submission time, not
// mid-run.
type Builder func(with map[string]interface{}) (workflow.WorkFunc, error)

// Registry holds the known step kinds.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
	logger   *zap.Logger
}

// NewRegistry creates a registry with all built-in step kinds registered.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		builders: make(map[string]Builder),
		logger:   logger,
	}
	r.registerBuiltins()
	return r
}

// Register adds a step kind. Registering an existing kind is an error.
func (r *Registry) Register(kind string, builder Builder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if kind == "" {
		return fmt.Errorf("step kind is required")
	}
	if _, exists := r.builders[kind]; exists {
		return fmt.Errorf("step kind already registered: %s", kind)
	}
	r.builders[kind] = builder
	return nil
}

// Build constructs the work function for a step kind.
func (r *Registry) Build(kind string, with map[string]interface{}) (workflow.WorkFunc, error) {
	r.mu.RLock()
	builder, ok := r.builders[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown step kind: %s", kind)
	}
	work, err := builder(with)
	if err != nil {
		return nil, fmt.Errorf("step kind %s: %w", kind, err)
	}
	return work, nil
}

// Kinds lists the registered step kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.builders))
	for kind := range r.builders {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
