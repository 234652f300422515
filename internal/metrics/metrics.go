package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for tutorfit.
// Every recording method is safe on a nil receiver.
type Metrics struct {
	// Assignment path
	AssignmentPaths  *prometheus.CounterVec
	SelectionMethods *prometheus.CounterVec
	AssignDuration   prometheus.Histogram

	// Learning loop
	LearningGates *prometheus.CounterVec
	JobResults    *prometheus.CounterVec

	// Scoring
	RecomputeDuration   prometheus.Histogram
	TemplatesRecomputed prometheus.Counter

	// Collaborators
	UpstreamErrors *prometheus.CounterVec
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			AssignmentPaths: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tutorfit_assignments_total",
					Help: "Assignments by resolution path (topic_reuse, similarity, new_cluster, none)",
				},
				[]string{"path"},
			),
			SelectionMethods: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tutorfit_selections_total",
					Help: "Template selections by selection method",
				},
				[]string{"method"},
			),
			AssignDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "tutorfit_assign_duration_seconds",
					Help:    "Latency of the synchronous assign-and-select path",
					Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
				},
			),
			LearningGates: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tutorfit_learning_gate_total",
					Help: "Regeneration gate decisions by outcome",
				},
				[]string{"outcome"},
			),
			JobResults: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tutorfit_learning_jobs_total",
					Help: "Learning job attempts by result (completed, retried, failed)",
				},
				[]string{"result"},
			),
			RecomputeDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "tutorfit_composite_recompute_duration_seconds",
					Help:    "Duration of a full composite score sweep",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
				},
			),
			TemplatesRecomputed: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "tutorfit_templates_recomputed_total",
					Help: "Templates whose composite score was recomputed",
				},
			),
			UpstreamErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tutorfit_upstream_errors_total",
					Help: "Failures of external collaborators and the datastore by dependency",
				},
				[]string{"dependency"},
			),
			CacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "tutorfit_cache_hits_total",
					Help: "Cluster cache hits",
				},
			),
			CacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "tutorfit_cache_misses_total",
					Help: "Cluster cache misses",
				},
			),
		}
	})
	return sharedMetrics
}

func (m *Metrics) RecordAssignment(path string, d time.Duration) {
	if m == nil {
		return
	}
	m.AssignmentPaths.WithLabelValues(path).Inc()
	m.AssignDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordSelection(method string) {
	if m == nil {
		return
	}
	m.SelectionMethods.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordLearningGate(outcome string) {
	if m == nil {
		return
	}
	m.LearningGates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordJobResult(result string) {
	if m == nil {
		return
	}
	m.JobResults.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRecompute(count int, d time.Duration) {
	if m == nil {
		return
	}
	m.RecomputeDuration.Observe(d.Seconds())
	m.TemplatesRecomputed.Add(float64(count))
}

func (m *Metrics) RecordUpstreamError(dependency string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(dependency).Inc()
}

func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
		return
	}
	m.CacheMisses.Inc()
}
