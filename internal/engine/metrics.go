package engine

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for step execution.
type Metrics struct {
	steps           *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	plannerFailures prometheus.Counter
	tasksFinished   *prometheus.CounterVec
	rewinds         prometheus.Counter
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns collectors registered once with the global registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics registers the engine collectors with reg and panics on conflicts,
// like promauto does. Tests pass a fresh prometheus.NewRegistry().
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoagent",
			Subsystem: "engine",
			Name:      "steps_total",
			Help:      "Steps recorded, by pack and outcome.",
		}, []string{"pack", "status", "error_kind"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autoagent",
			Subsystem: "engine",
			Name:      "step_duration_seconds",
			Help:      "Wall-clock time of execute_next_step, planner included.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"pack"}),
		plannerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autoagent",
			Subsystem: "engine",
			Name:      "planner_failures_total",
			Help:      "Planning attempts that failed and aborted a step.",
		}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoagent",
			Subsystem: "engine",
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal status.",
		}, []string{"status"}),
		rewinds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autoagent",
			Subsystem: "engine",
			Name:      "rewinds_total",
			Help:      "Successful rewinds.",
		}),
	}
	reg.MustRegister(m.steps, m.stepDuration, m.plannerFailures, m.tasksFinished, m.rewinds)
	return m
}

func (m *Metrics) observeStep(pack, status, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(pack, status, kind).Inc()
	m.stepDuration.WithLabelValues(pack).Observe(d.Seconds())
}

func (m *Metrics) plannerFailed() {
	if m == nil {
		return
	}
	m.plannerFailures.Inc()
}

func (m *Metrics) taskFinished(status string) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) rewound() {
	if m == nil {
		return
	}
	m.rewinds.Inc()
}
