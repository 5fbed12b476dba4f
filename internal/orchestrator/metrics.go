package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are registered on a registry owned by one orchestrator, so several
// workflows in one process (or one test binary) never collide.
type Metrics struct {
	Registry *prometheus.Registry

	tasks                *prometheus.CounterVec
	attempts             *prometheus.CounterVec
	taskDuration         prometheus.Histogram
	phase                *prometheus.GaugeVec
	checkpointFailures   prometheus.Counter
	notificationFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pbvs_tasks_total",
			Help: "Tasks that reached a final status.",
		}, []string{"status"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pbvs_task_attempts_total",
			Help: "Worker invocations, including retries.",
		}, []string{"role"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pbvs_task_duration_seconds",
			Help:    "Wall time from first attempt to final status.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pbvs_phase",
			Help: "1 for the phase the workflow is in, 0 otherwise.",
		}, []string{"phase"}),
		checkpointFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pbvs_checkpoint_failures_total",
			Help: "Checkpoint writes that failed.",
		}),
		notificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pbvs_notification_failures_total",
			Help: "Notifications that could not be delivered.",
		}),
	}
	m.Registry.MustRegister(
		m.tasks,
		m.attempts,
		m.taskDuration,
		m.phase,
		m.checkpointFailures,
		m.notificationFailures,
	)
	return m
}

func (m *Metrics) setPhase(current Phase) {
	for _, p := range Phases() {
		v := 0.0
		if p == current {
			v = 1
		}
		m.phase.WithLabelValues(string(p)).Set(v)
	}
}
