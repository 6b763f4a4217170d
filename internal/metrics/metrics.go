// Package metrics exposes crawl progress as Prometheus collectors.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vk/gridcrawl/internal/task"
)

// Namespace prefixes every metric name.
const Namespace = "gridcrawl"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Recorder is a scheduler observer that maintains task counters, an
// in-flight gauge and a duration histogram. It is safe for concurrent use.
type Recorder struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	inFlight prometheus.Gauge
	duration *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg. It panics
// if the collectors are already registered, like promauto does.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		started: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_started_total",
			Help:      "Total tasks handed to the executor.",
		}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_finished_total",
			Help:      "Total tasks finished by outcome.",
		}, []string{"outcome"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "tasks_in_flight",
			Help:      "Tasks currently held by a worker.",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "task_duration_seconds",
			Help:      "Task duration in seconds by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}, []string{"outcome"}),
	}
}

// TaskStarted implements scheduler.Observer.
func (r *Recorder) TaskStarted(_ context.Context, _ task.Key) {
	r.started.Inc()
	r.inFlight.Inc()
}

// TaskFinished implements scheduler.Observer.
func (r *Recorder) TaskFinished(_ context.Context, _ task.Key, res task.Result, elapsed time.Duration) {
	outcome := Outcome(res)
	// Skipped keys never reach TaskStarted.
	if outcome != OutcomeSkipped {
		r.inFlight.Dec()
	}
	r.finished.WithLabelValues(outcome).Inc()
	r.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Outcome maps a result to its label value.
func Outcome(res task.Result) string {
	switch {
	case res.Skipped():
		return OutcomeSkipped
	case res.Failed():
		return OutcomeFailure
	default:
		return OutcomeSuccess
	}
}
