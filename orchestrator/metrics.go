package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report orchestrator activity.
type Metrics struct {
	tasksSubmitted prometheus.Counter
	tasksFinished  *prometheus.CounterVec
	tasksRunning   prometheus.Gauge
	queueDepth     prometheus.Gauge
	taskDuration   prometheus.Histogram
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. The collectors are created only once to
// avoid duplicate registration panics when several orchestrators share a
// process.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer,
// falling back to the global one when reg is nil. Callers needing isolated
// metric values (for example in tests) should supply a fresh registry. Any
// registration error other than duplicate registration panics, mirroring
// promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	tasksSubmitted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ensemble",
			Subsystem: "orchestrator",
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks created with an executable.",
		},
	)
	tasksFinished := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ensemble",
			Subsystem: "orchestrator",
			Name:      "tasks_finished_total",
			Help:      "Total number of tasks that reached a terminal state, by outcome.",
		},
		[]string{"outcome"},
	)
	tasksRunning := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ensemble",
			Subsystem: "orchestrator",
			Name:      "tasks_running",
			Help:      "Number of task executables currently running.",
		},
	)
	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ensemble",
			Subsystem: "orchestrator",
			Name:      "queue_depth",
			Help:      "Number of submitted tasks waiting for a worker.",
		},
	)
	taskDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ensemble",
			Subsystem: "orchestrator",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock duration of completed tasks.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	collectors := []prometheus.Collector{tasksSubmitted, tasksFinished, tasksRunning, queueDepth, taskDuration}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				// Reuse the existing collector; gauges satisfy the Counter
				// interface too, so match by identity rather than by type.
				switch collector {
				case tasksSubmitted:
					tasksSubmitted = already.ExistingCollector.(prometheus.Counter)
				case tasksFinished:
					tasksFinished = already.ExistingCollector.(*prometheus.CounterVec)
				case tasksRunning:
					tasksRunning = already.ExistingCollector.(prometheus.Gauge)
				case queueDepth:
					queueDepth = already.ExistingCollector.(prometheus.Gauge)
				case taskDuration:
					taskDuration = already.ExistingCollector.(prometheus.Histogram)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		tasksSubmitted: tasksSubmitted,
		tasksFinished:  tasksFinished,
		tasksRunning:   tasksRunning,
		queueDepth:     queueDepth,
		taskDuration:   taskDuration,
	}
}

// TaskSubmitted counts a task created with an executable.
func (m *Metrics) TaskSubmitted() {
	if m == nil || m.tasksSubmitted == nil {
		return
	}
	m.tasksSubmitted.Inc()
}

// TaskCompleted counts a task that finished successfully.
func (m *Metrics) TaskCompleted() {
	if m == nil || m.tasksFinished == nil {
		return
	}
	m.tasksFinished.WithLabelValues("completed").Inc()
}

// TaskFailed counts a task whose executable returned an error.
func (m *Metrics) TaskFailed() {
	if m == nil || m.tasksFinished == nil {
		return
	}
	m.tasksFinished.WithLabelValues("failed").Inc()
}

// TaskCancelled counts a cancelled task.
func (m *Metrics) TaskCancelled() {
	if m == nil || m.tasksFinished == nil {
		return
	}
	m.tasksFinished.WithLabelValues("cancelled").Inc()
}

// IncRunning marks one more executable as running.
func (m *Metrics) IncRunning() {
	if m == nil || m.tasksRunning == nil {
		return
	}
	m.tasksRunning.Inc()
}

// DecRunning marks one executable as no longer running.
func (m *Metrics) DecRunning() {
	if m == nil || m.tasksRunning == nil {
		return
	}
	m.tasksRunning.Dec()
}

// SetQueueDepth records the number of tasks waiting for a worker.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveTaskDuration records the wall-clock duration of a completed task.
func (m *Metrics) ObserveTaskDuration(seconds float64) {
	if m == nil || m.taskDuration == nil {
		return
	}
	m.taskDuration.Observe(seconds)
}
