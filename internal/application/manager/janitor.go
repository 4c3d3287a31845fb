package manager

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// janitor periodically prunes finished runs from the registry and reports
// registry health.
type janitor struct {
	manager  *Manager
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func newJanitor(manager *Manager, interval time.Duration, logger *zap.Logger) *janitor {
	return &janitor{
		manager:  manager,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the prune loop. Starting twice is a no-op.
func (j *janitor) Start() {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.mu.Unlock()

	go j.run()
}

// Stop halts the prune loop. Stopping twice is a no-op.
func (j *janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	j.mu.Unlock()

	close(j.stopCh)
}

func (j *janitor) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *janitor) sweep() {
	removed := j.manager.prune()
	active := j.manager.activeCount()
	j.manager.metrics.SetActiveRuns(active)

	j.logger.Debug("run registry sweep",
		zap.Int("pruned", removed),
		zap.Int("active_runs", active))
}
