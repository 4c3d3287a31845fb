package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aescanero/taskrun/internal/application/events"
	"github.com/aescanero/taskrun/pkg/workflow"
)

func testDefaults() workflow.Defaults {
	return workflow.Defaults{
		Timeout:       time.Second,
		MaxTimeout:    time.Minute,
		Retries:       0,
		RetryDelay:    time.Millisecond,
		MaxConcurrent: 4,
	}
}

type recorder struct {
	mu     sync.Mutex
	events []workflow.Event
}

func (r *recorder) handler(ev workflow.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []workflow.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]workflow.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func newTestExecutor(admission *Admission) (*Executor, *recorder) {
	pub := events.NewPublisher()
	rec := &recorder{}
	pub.Subscribe(rec.handler)
	return NewExecutor(admission, pub, workflow.NopMetrics{}, zap.NewNop(), testDefaults()), rec
}

func TestExecuteSuccess(t *testing.T) {
	e, rec := newTestExecutor(NewAdmission(1))

	task := workflow.Task{
		ID:   "a",
		Work: func(ctx context.Context) (interface{}, error) { return 42, nil },
	}
	state := &workflow.TaskState{ID: "a", Status: workflow.StatusPending}

	ok := e.Execute(context.Background(), task, state)

	require.True(t, ok)
	assert.Equal(t, workflow.StatusCompleted, state.Status)
	assert.Equal(t, 1, state.Attempts)
	assert.Equal(t, 42, state.Result)
	assert.Empty(t, state.Error)
	require.NotNil(t, state.StartedAt)
	require.NotNil(t, state.EndedAt)
	assert.Equal(t, []workflow.EventType{
		workflow.EventTaskStarted,
		workflow.EventTaskCompleted,
	}, rec.types())
}

func TestExecuteRetryThenSuccess(t *testing.T) {
	e, rec := newTestExecutor(NewAdmission(1))

	var tries int32
	task := workflow.Task{
		ID: "a",
		Work: func(ctx context.Context) (interface{}, error) {
			if atomic.AddInt32(&tries, 1) == 1 {
				return nil, fmt.Errorf("transient")
			}
			return "done", nil
		},
	}
	state := &workflow.TaskState{ID: "a", MaxRetries: 1}

	ok := e.Execute(context.Background(), task, state)

	require.True(t, ok)
	assert.Equal(t, 2, state.Attempts)
	assert.Equal(t, []workflow.EventType{
		workflow.EventTaskStarted,
		workflow.EventTaskRetry,
		workflow.EventTaskStarted,
		workflow.EventTaskCompleted,
	}, rec.types())
}

func TestExecuteRetriesExhausted(t *testing.T) {
	e, _ := newTestExecutor(NewAdmission(1))

	task := workflow.Task{
		ID:   "a",
		Work: func(ctx context.Context) (interface{}, error) { return nil, fmt.Errorf("broken") },
	}
	state := &workflow.TaskState{ID: "a", MaxRetries: 2}

	ok := e.Execute(context.Background(), task, state)

	require.False(t, ok)
	assert.Equal(t, workflow.StatusFailed, state.Status)
	assert.Equal(t, 3, state.Attempts)
	assert.Contains(t, state.Error, "broken")
}

func TestExecuteAdmissionRefusalConsumesAttempt(t *testing.T) {
	admission := NewAdmission(1)
	require.True(t, admission.TryAcquire("occupier"))
	e, rec := newTestExecutor(admission)

	var ran int32
	task := workflow.Task{
		ID: "a",
		Work: func(ctx context.Context) (interface{}, error) {
			atomic.AddInt32(&ran, 1)
			return nil, nil
		},
	}
	state := &workflow.TaskState{ID: "a"}

	ok := e.Execute(context.Background(), task, state)

	require.False(t, ok)
	assert.Equal(t, workflow.StatusFailed, state.Status)
	assert.Equal(t, 1, state.Attempts)
	assert.Contains(t, state.Error, "admission refused")
	assert.Zero(t, atomic.LoadInt32(&ran))
	assert.Equal(t, []workflow.EventType{
		workflow.EventTaskStarted,
		workflow.EventTaskFailed,
	}, rec.types())
}

func TestExecuteRefusedAttemptCanSucceedOnRetry(t *testing.T) {
	admission := NewAdmission(1)
	require.True(t, admission.TryAcquire("occupier"))
	pub := events.NewPublisher()
	rec := &recorder{}
	pub.Subscribe(rec.handler)
	// Free the slot once the first attempt has been refused.
	pub.Subscribe(func(ev workflow.Event) {
		if ev.Type == workflow.EventTaskRetry {
			admission.Release("occupier")
		}
	})
	e := NewExecutor(admission, pub, workflow.NopMetrics{}, zap.NewNop(), testDefaults())

	task := workflow.Task{
		ID:   "a",
		Work: func(ctx context.Context) (interface{}, error) { return "late", nil },
	}
	state := &workflow.TaskState{ID: "a", MaxRetries: 1}

	ok := e.Execute(context.Background(), task, state)

	require.True(t, ok)
	assert.Equal(t, 2, state.Attempts)
	assert.Equal(t, "late", state.Result)
}

func TestExecuteTimeoutAbandonsWork(t *testing.T) {
	e, _ := newTestExecutor(NewAdmission(1))

	release := make(chan struct{})
	task := workflow.Task{
		ID:      "slow",
		Timeout: 30 * time.Millisecond,
		Work: func(ctx context.Context) (interface{}, error) {
			<-release
			return "too late", nil
		},
	}
	state := &workflow.TaskState{ID: "slow"}

	start := time.Now()
	ok := e.Execute(context.Background(), task, state)
	elapsed := time.Since(start)
	close(release)

	require.False(t, ok)
	assert.Equal(t, workflow.StatusFailed, state.Status)
	assert.Contains(t, state.Error, "timeout")
	assert.Less(t, elapsed, time.Second)
	// The abandoned result never lands in the state.
	assert.Nil(t, state.Result)
}

func TestExecuteCanceledContextStopsRetries(t *testing.T) {
	e, _ := newTestExecutor(NewAdmission(1))

	ctx, cancel := context.WithCancel(context.Background())
	task := workflow.Task{
		ID: "a",
		Work: func(c context.Context) (interface{}, error) {
			cancel()
			return nil, fmt.Errorf("failed while run was canceled")
		},
	}
	state := &workflow.TaskState{ID: "a", MaxRetries: 5}

	ok := e.Execute(ctx, task, state)

	require.False(t, ok)
	assert.Equal(t, 1, state.Attempts)
	assert.Equal(t, workflow.StatusFailed, state.Status)
}

func TestExecutePanicBecomesFailure(t *testing.T) {
	e, _ := newTestExecutor(NewAdmission(1))

	task := workflow.Task{
		ID:   "a",
		Work: func(ctx context.Context) (interface{}, error) { panic("oops") },
	}
	state := &workflow.TaskState{ID: "a"}

	ok := e.Execute(context.Background(), task, state)

	require.False(t, ok)
	assert.Equal(t, workflow.StatusFailed, state.Status)
	assert.Contains(t, state.Error, "oops")
}

func TestEffectiveTimeoutClampedToCeiling(t *testing.T) {
	e, _ := newTestExecutor(NewAdmission(1))

	assert.Equal(t, time.Second, e.effectiveTimeout(workflow.Task{ID: "a"}))
	assert.Equal(t, 5*time.Second, e.effectiveTimeout(workflow.Task{ID: "a", Timeout: 5 * time.Second}))
	assert.Equal(t, time.Minute, e.effectiveTimeout(workflow.Task{ID: "a", Timeout: 2 * time.Hour}))
}
