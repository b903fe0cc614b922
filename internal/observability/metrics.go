package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	types "github.com/yungbote/recipe-backend/internal/domain"
	"github.com/yungbote/recipe-backend/internal/ingestion/pipeline"
)

// Metrics holds the recipe service collectors. A nil *Metrics is a valid
// no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsInflight  prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	framesTotal   *prometheus.CounterVec
	parseOutcomes *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

var _ pipeline.Observer = (*Metrics)(nil)

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		jobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recipe_jobs_total",
			Help: "Recipe jobs finished, by trigger and status",
		}, []string{"trigger", "status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recipe_job_duration_seconds",
			Help:    "End-to-end duration of recipe jobs",
			Buckets: []float64{5, 10, 30, 60, 120, 300, 600},
		}, []string{"trigger"}),
		jobsInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "recipe_jobs_inflight",
			Help: "Recipe jobs currently running",
		}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recipe_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		stageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recipe_stage_errors_total",
			Help: "Pipeline stage failures",
		}, []string{"stage"}),
		framesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recipe_frames_captioned_total",
			Help: "Frame caption attempts, by result",
		}, []string{"result"}),
		parseOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recipe_parse_outcomes_total",
			Help: "Model response parse outcomes",
		}, []string{"outcome"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recipe_cache_lookups_total",
			Help: "Recipe cache lookups, by result",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recipe_http_requests_total",
			Help: "HTTP requests, by route and status code",
		}, []string{"method", "route", "code"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recipe_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StageDone(stage pipeline.Stage, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	if err != nil {
		m.stageErrors.WithLabelValues(string(stage)).Inc()
	}
}

func (m *Metrics) FrameCaptioned(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "skipped"
	}
	m.framesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Parsed(outcome types.ParseOutcome) {
	if m == nil {
		return
	}
	m.parseOutcomes.WithLabelValues(string(outcome)).Inc()
}

// JobStarted returns a func to call once the job finishes with its status.
func (m *Metrics) JobStarted(trigger string) func(status string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.jobsInflight.Inc()
	return func(status string) {
		m.jobsInflight.Dec()
		m.jobsTotal.WithLabelValues(trigger, status).Inc()
		m.jobDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
