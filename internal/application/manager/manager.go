package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/taskrun/internal/application/events"
	"github.com/aescanero/taskrun/internal/application/orchestrator"
	"github.com/aescanero/taskrun/pkg/workflow"
)

// RunPhase is the registry-level phase of a run.
type RunPhase string

const (
	PhaseRunning   RunPhase = "running"
	PhaseCompleted RunPhase = "completed"
	PhaseFailed    RunPhase = "failed"
	PhaseCanceled  RunPhase = "canceled"
)

// Run holds the registry entry for a single workflow run. The publisher
// relays the run's lifecycle events to any observer attached while the run
// is in flight.
type Run struct {
	id        string
	publisher *events.Publisher
	cancel    context.CancelFunc

	mu          sync.RWMutex
	phase       RunPhase
	submittedAt time.Time
	completedAt *time.Time
	result      *workflow.Result
}

// RunInfo is the externally visible snapshot of a run.
type RunInfo struct {
	ID          string           `json:"id"`
	Phase       RunPhase         `json:"phase"`
	SubmittedAt time.Time        `json:"submitted_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Result      *workflow.Result `json:"result,omitempty"`
}

// Manager coordinates run submission and tracking.
type Manager struct {
	validator *orchestrator.Validator
	runner    *orchestrator.Runner
	metrics   workflow.MetricsCollector
	logger    *zap.Logger

	runs      sync.Map // map[string]*Run
	wg        sync.WaitGroup
	janitor   *janitor
	retention time.Duration

	// relayFactory, when set, builds an extra per-run event observer
	// (e.g. the Redis stream relay).
	relayFactory func(runID string) workflow.EventHandler
}

// NewManager creates a run manager. Finished runs are kept for the given
// retention window before the janitor drops them.
func NewManager(
	validator *orchestrator.Validator,
	runner *orchestrator.Runner,
	metrics workflow.MetricsCollector,
	logger *zap.Logger,
	retention time.Duration,
	pruneInterval time.Duration,
) *Manager {
	m := &Manager{
		validator: validator,
		runner:    runner,
		metrics:   metrics,
		logger:    logger,
		retention: retention,
	}
	m.janitor = newJanitor(m, pruneInterval, logger)
	return m
}

// Start launches the background janitor.
func (m *Manager) Start() {
	m.janitor.Start()
}

// SetEventRelay installs a factory building one extra observer per run,
// attached at submission time. Must be called before the first Submit.
func (m *Manager) SetEventRelay(factory func(runID string) workflow.EventHandler) {
	m.relayFactory = factory
}

// Submit validates the task list and starts it as a new run. Validation
// failures are returned immediately; execution failures only surface in the
// run's result.
func (m *Manager) Submit(tasks []workflow.Task, observers ...workflow.EventHandler) (string, error) {
	if err := m.validator.Validate(tasks); err != nil {
		m.metrics.RecordRunSubmitted("rejected")
		m.logger.Error("run rejected", zap.Error(err))
		return "", fmt.Errorf("validation failed: %w", err)
	}

	runID := uuid.New().String()
	runCtx, cancel := context.WithCancel(context.Background())

	run := &Run{
		id:          runID,
		publisher:   events.NewPublisher(),
		cancel:      cancel,
		phase:       PhaseRunning,
		submittedAt: time.Now(),
	}
	for _, obs := range observers {
		run.publisher.Subscribe(obs)
	}
	if m.relayFactory != nil {
		run.publisher.Subscribe(m.relayFactory(runID))
	}
	m.runs.Store(runID, run)
	m.metrics.RecordRunSubmitted("accepted")
	m.metrics.SetActiveRuns(m.activeCount())
	m.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.Int("tasks", len(tasks)))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.execute(runCtx, run, tasks)
	}()

	return runID, nil
}

// execute drives the run to completion and records its outcome.
func (m *Manager) execute(ctx context.Context, run *Run, tasks []workflow.Task) {
	result, err := m.runner.Run(ctx, tasks, run.publisher.Publish)

	now := time.Now()
	run.mu.Lock()
	run.completedAt = &now
	switch {
	case err != nil:
		// The manager validated before submitting, so this is unexpected.
		run.phase = PhaseFailed
		m.logger.Error("run aborted", zap.String("run_id", run.id), zap.Error(err))
	case ctx.Err() != nil:
		run.phase = PhaseCanceled
		run.result = result
	case result.Status == workflow.RunFailed:
		run.phase = PhaseFailed
		run.result = result
	default:
		run.phase = PhaseCompleted
		run.result = result
	}
	run.mu.Unlock()

	m.metrics.SetActiveRuns(m.activeCount())
}

// Get returns a snapshot of the run.
func (m *Manager) Get(runID string) (*RunInfo, error) {
	val, ok := m.runs.Load(runID)
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return val.(*Run).snapshot(), nil
}

// List returns snapshots of all known runs, newest first.
func (m *Manager) List() []*RunInfo {
	var infos []*RunInfo
	m.runs.Range(func(_, value interface{}) bool {
		infos = append(infos, value.(*Run).snapshot())
		return true
	})
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].SubmittedAt.After(infos[j].SubmittedAt)
	})
	return infos
}

// Cancel aborts an in-flight run. In-flight attempts fail with the context
// error; not-yet-started tasks end skipped.
func (m *Manager) Cancel(runID string) error {
	val, ok := m.runs.Load(runID)
	if !ok {
		return fmt.Errorf("run not found: %s", runID)
	}
	run := val.(*Run)

	run.mu.RLock()
	phase := run.phase
	run.mu.RUnlock()
	if phase != PhaseRunning {
		return fmt.Errorf("run already in terminal phase: %s", phase)
	}

	run.cancel()
	m.logger.Info("run canceled", zap.String("run_id", runID))
	return nil
}

// Subscribe attaches a live event handler to an in-flight run. Events
// published after subscription are delivered; there is no replay.
func (m *Manager) Subscribe(runID string, handler workflow.EventHandler) (events.Subscription, error) {
	val, ok := m.runs.Load(runID)
	if !ok {
		return 0, fmt.Errorf("run not found: %s", runID)
	}
	return val.(*Run).publisher.Subscribe(handler), nil
}

// Unsubscribe detaches a handler previously attached with Subscribe.
func (m *Manager) Unsubscribe(runID string, sub events.Subscription) {
	if val, ok := m.runs.Load(runID); ok {
		val.(*Run).publisher.Unsubscribe(sub)
	}
}

// Shutdown cancels all active runs and waits for them to settle.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down run manager")
	m.janitor.Stop()

	m.runs.Range(func(_, value interface{}) bool {
		value.(*Run).cancel()
		return true
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("run manager shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// prune drops finished runs older than the retention window. Returns how
// many were removed.
func (m *Manager) prune() int {
	cutoff := time.Now().Add(-m.retention)
	removed := 0
	m.runs.Range(func(key, value interface{}) bool {
		run := value.(*Run)
		run.mu.RLock()
		finished := run.phase != PhaseRunning && run.completedAt != nil && run.completedAt.Before(cutoff)
		run.mu.RUnlock()
		if finished {
			m.runs.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

func (m *Manager) activeCount() int {
	count := 0
	m.runs.Range(func(_, value interface{}) bool {
		run := value.(*Run)
		if run.phaseLocked() == PhaseRunning {
			count++
		}
		return true
	})
	return count
}

func (r *Run) phaseLocked() RunPhase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

func (r *Run) snapshot() *RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &RunInfo{
		ID:          r.id,
		Phase:       r.phase,
		SubmittedAt: r.submittedAt,
		CompletedAt: r.completedAt,
		Result:      r.result,
	}
}
