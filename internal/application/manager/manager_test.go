package manager

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aescanero/taskrun/internal/application/orchestrator"
	"github.com/aescanero/taskrun/pkg/workflow"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	defaults := workflow.Defaults{
		Timeout:       5 * time.Second,
		MaxTimeout:    time.Minute,
		Retries:       0,
		RetryDelay:    time.Millisecond,
		MaxConcurrent: 10,
	}
	validator := orchestrator.NewValidator()
	runner := orchestrator.NewRunner(validator, workflow.NopMetrics{}, zap.NewNop(), defaults)
	m := NewManager(validator, runner, workflow.NopMetrics{}, zap.NewNop(), time.Hour, time.Hour)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func waitForPhase(t *testing.T, m *Manager, runID string, want RunPhase) *RunInfo {
	t.Helper()
	var info *RunInfo
	require.Eventually(t, func() bool {
		var err error
		info, err = m.Get(runID)
		require.NoError(t, err)
		return info.Phase == want
	}, 5*time.Second, 5*time.Millisecond)
	return info
}

func okTask(id string, deps ...string) workflow.Task {
	return workflow.Task{
		ID:           id,
		Dependencies: deps,
		Work:         func(ctx context.Context) (interface{}, error) { return id, nil },
	}
}

func TestSubmitAndComplete(t *testing.T) {
	m := newTestManager(t)

	runID, err := m.Submit([]workflow.Task{okTask("a"), okTask("b", "a")})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	info := waitForPhase(t, m, runID, PhaseCompleted)
	require.NotNil(t, info.Result)
	assert.Equal(t, workflow.RunCompleted, info.Result.Status)
	assert.Equal(t, 2, info.Result.CompletedTasks)
	require.NotNil(t, info.CompletedAt)
}

func TestSubmitRejectsInvalidWorkflow(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Submit([]workflow.Task{
		{ID: "a", Dependencies: []string{"b"}, Work: func(ctx context.Context) (interface{}, error) { return nil, nil }},
		{ID: "b", Dependencies: []string{"a"}, Work: func(ctx context.Context) (interface{}, error) { return nil, nil }},
	})

	require.Error(t, err)
	assert.ErrorContains(t, err, "validation failed")
	assert.Empty(t, m.List())
}

func TestSubmitFailedRunPhase(t *testing.T) {
	m := newTestManager(t)

	runID, err := m.Submit([]workflow.Task{{
		ID:   "broken",
		Work: func(ctx context.Context) (interface{}, error) { return nil, fmt.Errorf("boom") },
	}})
	require.NoError(t, err)

	info := waitForPhase(t, m, runID, PhaseFailed)
	require.NotNil(t, info.Result)
	assert.Equal(t, workflow.RunFailed, info.Result.Status)
}

func TestCancelRun(t *testing.T) {
	m := newTestManager(t)

	started := make(chan struct{})
	var once sync.Once
	runID, err := m.Submit([]workflow.Task{{
		ID: "blocked",
		Work: func(ctx context.Context) (interface{}, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}})
	require.NoError(t, err)

	<-started
	require.NoError(t, m.Cancel(runID))

	info := waitForPhase(t, m, runID, PhaseCanceled)
	require.NotNil(t, info.Result)
	assert.Equal(t, workflow.StatusFailed, info.Result.Tasks["blocked"].Status)

	t.Run("second cancel fails", func(t *testing.T) {
		err := m.Cancel(runID)
		assert.ErrorContains(t, err, "terminal phase")
	})
}

func TestCancelUnknownRun(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorContains(t, m.Cancel("nope"), "run not found")
}

func TestGetUnknownRun(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Get("nope")
	assert.ErrorContains(t, err, "run not found")
}

func TestListNewestFirst(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Submit([]workflow.Task{okTask("a")})
	require.NoError(t, err)
	waitForPhase(t, m, first, PhaseCompleted)
	time.Sleep(5 * time.Millisecond)

	second, err := m.Submit([]workflow.Task{okTask("a")})
	require.NoError(t, err)
	waitForPhase(t, m, second, PhaseCompleted)

	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, second, infos[0].ID)
	assert.Equal(t, first, infos[1].ID)
}

func TestObserversReceiveRunEvents(t *testing.T) {
	m := newTestManager(t)

	var mu sync.Mutex
	var events []workflow.Event
	observer := func(ev workflow.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}

	runID, err := m.Submit([]workflow.Task{okTask("a")}, observer)
	require.NoError(t, err)
	waitForPhase(t, m, runID, PhaseCompleted)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, workflow.EventTaskStarted, events[0].Type)
	assert.Equal(t, workflow.EventTaskCompleted, events[1].Type)
}

func TestSubscribeToInFlightRun(t *testing.T) {
	m := newTestManager(t)

	gate := make(chan struct{})
	runID, err := m.Submit([]workflow.Task{
		{
			ID: "first",
			Work: func(ctx context.Context) (interface{}, error) {
				<-gate
				return nil, nil
			},
		},
		okTask("second", "first"),
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var taskIDs []string
	sub, err := m.Subscribe(runID, func(ev workflow.Event) {
		mu.Lock()
		defer mu.Unlock()
		taskIDs = append(taskIDs, ev.TaskID)
	})
	require.NoError(t, err)
	defer m.Unsubscribe(runID, sub)

	close(gate)
	waitForPhase(t, m, runID, PhaseCompleted)

	// The late subscriber misses nothing from the second task.
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, taskIDs, "second")
}

func TestSubscribeUnknownRun(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Subscribe("nope", func(ev workflow.Event) {})
	assert.ErrorContains(t, err, "run not found")
}

func TestEventRelayAttachedPerRun(t *testing.T) {
	m := newTestManager(t)

	var mu sync.Mutex
	relayed := make(map[string][]workflow.Event)
	m.SetEventRelay(func(runID string) workflow.EventHandler {
		return func(ev workflow.Event) {
			mu.Lock()
			defer mu.Unlock()
			relayed[runID] = append(relayed[runID], ev)
		}
	})

	runID, err := m.Submit([]workflow.Task{okTask("a")})
	require.NoError(t, err)
	waitForPhase(t, m, runID, PhaseCompleted)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, relayed, runID)
	assert.Len(t, relayed[runID], 2)
}

func TestPruneDropsOldFinishedRuns(t *testing.T) {
	defaults := workflow.Defaults{
		Timeout: time.Second, MaxTimeout: time.Minute,
		RetryDelay: time.Millisecond, MaxConcurrent: 4,
	}
	validator := orchestrator.NewValidator()
	runner := orchestrator.NewRunner(validator, workflow.NopMetrics{}, zap.NewNop(), defaults)
	// Zero-ish retention so anything finished is immediately prunable.
	m := NewManager(validator, runner, workflow.NopMetrics{}, zap.NewNop(), time.Nanosecond, time.Hour)

	runID, err := m.Submit([]workflow.Task{okTask("a")})
	require.NoError(t, err)
	waitForPhase(t, m, runID, PhaseCompleted)
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 1, m.prune())
	_, err = m.Get(runID)
	assert.Error(t, err)
}

func TestShutdownCancelsActiveRuns(t *testing.T) {
	defaults := workflow.Defaults{
		Timeout: 10 * time.Second, MaxTimeout: time.Minute,
		RetryDelay: time.Millisecond, MaxConcurrent: 4,
	}
	validator := orchestrator.NewValidator()
	runner := orchestrator.NewRunner(validator, workflow.NopMetrics{}, zap.NewNop(), defaults)
	m := NewManager(validator, runner, workflow.NopMetrics{}, zap.NewNop(), time.Hour, time.Hour)

	started := make(chan struct{})
	var once sync.Once
	runID, err := m.Submit([]workflow.Task{{
		ID: "blocked",
		Work: func(ctx context.Context) (interface{}, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	info, err := m.Get(runID)
	require.NoError(t, err)
	assert.Equal(t, PhaseCanceled, info.Phase)
}
