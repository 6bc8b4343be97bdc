// Package metrics holds the Prometheus collectors exported by the engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cadence"

// Metrics is safe to use as a nil pointer; every method is a no-op then.
type Metrics struct {
	runsScheduled   *prometheus.CounterVec
	runsDuplicate   *prometheus.CounterVec
	runsFinished    *prometheus.CounterVec
	stepsExecuted   *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	stepRetries     *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	sweepRuns       *prometheus.CounterVec
	eventsSubmitted *prometheus.CounterVec
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_scheduled_total",
			Help:      "Workflow runs created, by trigger type.",
		}, []string{"trigger_type"}),
		runsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_duplicate_total",
			Help:      "Run creations rejected by the dedup key, by trigger type.",
		}, []string{"trigger_type"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Runs that reached a terminal status.",
		}, []string{"status"}),
		stepsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_executed_total",
			Help:      "Executed action steps, by action type and outcome.",
		}, []string{"action_type", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of one action step including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action_type"}),
		stepRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Extra attempts made after transient step failures.",
		}, []string{"action_type"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one wake sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Runs examined by the wake sweep, by result.",
		}, []string{"result"}),
		eventsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_submitted_total",
			Help:      "Domain events submitted, by event type.",
		}, []string{"event_type"}),
	}

	registerer.MustRegister(
		m.runsScheduled,
		m.runsDuplicate,
		m.runsFinished,
		m.stepsExecuted,
		m.stepDuration,
		m.stepRetries,
		m.sweepDuration,
		m.sweepRuns,
		m.eventsSubmitted,
	)

	return m
}

func (m *Metrics) EventSubmitted(eventType string) {
	if m == nil {
		return
	}

	m.eventsSubmitted.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RunScheduled(triggerType string) {
	if m == nil {
		return
	}

	m.runsScheduled.WithLabelValues(triggerType).Inc()
}

func (m *Metrics) RunDuplicate(triggerType string) {
	if m == nil {
		return
	}

	m.runsDuplicate.WithLabelValues(triggerType).Inc()
}

func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}

	m.runsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) StepExecuted(actionType, status string, attempts int, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.stepsExecuted.WithLabelValues(actionType, status).Inc()
	m.stepDuration.WithLabelValues(actionType).Observe(elapsed.Seconds())

	if attempts > 1 {
		m.stepRetries.WithLabelValues(actionType).Add(float64(attempts - 1))
	}
}

func (m *Metrics) SweepFinished(elapsed time.Duration, advanced, skipped, failed int) {
	if m == nil {
		return
	}

	m.sweepDuration.Observe(elapsed.Seconds())
	m.sweepRuns.WithLabelValues("advanced").Add(float64(advanced))
	m.sweepRuns.WithLabelValues("skipped").Add(float64(skipped))
	m.sweepRuns.WithLabelValues("failed").Add(float64(failed))
}
