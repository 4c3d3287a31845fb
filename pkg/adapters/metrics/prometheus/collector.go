package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements workflow.MetricsCollector using Prometheus.
type Collector struct {
	runsSubmitted *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	tasksExecuted *prometheus.CounterVec
	taskRetries   prometheus.Counter
	taskTimeouts  prometheus.Counter

	runningTasks prometheus.Gauge
	activeRuns   prometheus.Gauge

	runDuration  prometheus.Histogram
	taskDuration prometheus.Histogram
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector() *Collector {
	return &Collector{
		runsSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskrun_runs_submitted_total",
				Help: "Total number of workflow runs submitted",
			},
			[]string{"status"},
		),
		runsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskrun_runs_completed_total",
				Help: "Total number of workflow runs completed",
			},
			[]string{"status"},
		),
		tasksExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskrun_tasks_executed_total",
				Help: "Total number of tasks reaching a terminal status",
			},
			[]string{"status"},
		),
		taskRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "taskrun_task_retries_total",
				Help: "Total number of task retry attempts",
			},
		),
		taskTimeouts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "taskrun_task_timeouts_total",
				Help: "Total number of task attempts that timed out",
			},
		),
		runningTasks: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskrun_running_tasks",
				Help: "Number of tasks currently holding an execution slot",
			},
		),
		activeRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskrun_active_runs",
				Help: "Number of workflow runs currently in flight",
			},
		),
		runDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "taskrun_run_duration_seconds",
				Help:    "Workflow run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		taskDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "taskrun_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}
}

// RecordRunSubmitted records a run submission.
func (c *Collector) RecordRunSubmitted(status string) {
	c.runsSubmitted.WithLabelValues(status).Inc()
}

// RecordRunCompleted records a finished run and its duration.
func (c *Collector) RecordRunCompleted(status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(status).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// RecordTaskExecuted records a task reaching a terminal status.
func (c *Collector) RecordTaskExecuted(status string, duration time.Duration) {
	c.tasksExecuted.WithLabelValues(status).Inc()
	if duration > 0 {
		c.taskDuration.Observe(duration.Seconds())
	}
}

// RecordTaskRetry records a retry attempt.
func (c *Collector) RecordTaskRetry() {
	c.taskRetries.Inc()
}

// RecordTaskTimeout records a timed-out attempt.
func (c *Collector) RecordTaskTimeout() {
	c.taskTimeouts.Inc()
}

// SetRunningTasks sets the running-task gauge.
func (c *Collector) SetRunningTasks(count int) {
	c.runningTasks.Set(float64(count))
}

// SetActiveRuns sets the active-run gauge.
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}
