// Package metrics exposes pipeline counters on a dedicated Prometheus
// registry served by the daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "subburn"

	statusLabel = "status"
	stageLabel  = "stage"
	resultLabel = "result"
)

// Recorder owns the collectors. All methods are safe on a nil Recorder.
type Recorder struct {
	registry *prometheus.Registry

	jobsSubmitted prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	jobsInFlight  prometheus.Gauge
}

// New builds a Recorder with its own registry, including Go runtime and
// process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "number of jobs accepted by the engine",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "number of jobs that reached a terminal status",
		}, []string{statusLabel}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "time spent in each pipeline stage",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{stageLabel, resultLabel}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_cache_lookups_total",
			Help:      "transcription cache lookups by result",
		}, []string{resultLabel}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "jobs currently running",
		}),
	}
	r.registry.MustRegister(
		r.jobsSubmitted,
		r.jobsFinished,
		r.stageDuration,
		r.cacheLookups,
		r.jobsInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) JobSubmitted() {
	if r == nil {
		return
	}
	r.jobsSubmitted.Inc()
}

func (r *Recorder) JobFinished(status string) {
	if r == nil {
		return
	}
	r.jobsFinished.With(prometheus.Labels{statusLabel: status}).Inc()
}

// StageObserved records how long stage took; ok distinguishes success.
func (r *Recorder) StageObserved(stage string, elapsed time.Duration, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.stageDuration.With(prometheus.Labels{stageLabel: stage, resultLabel: result}).Observe(elapsed.Seconds())
}

func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.With(prometheus.Labels{resultLabel: result}).Inc()
}

// JobStarted and JobStopped bracket a running job.
func (r *Recorder) JobStarted() {
	if r == nil {
		return
	}
	r.jobsInFlight.Inc()
}

func (r *Recorder) JobStopped() {
	if r == nil {
		return
	}
	r.jobsInFlight.Dec()
}
