// Package metrics exposes the routing pipeline's Prometheus collectors:
// step durations, rejection counts, risk retries, slice outcomes and the
// active route gauge.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Registry holds all orderrouter Prometheus metrics
type Registry struct {
	registry *prometheus.Registry

	StepDuration  *prometheus.HistogramVec
	Rejections    *prometheus.CounterVec
	RiskRetries   *prometheus.CounterVec
	SliceOutcomes *prometheus.CounterVec
	ActiveRoutes  prometheus.Gauge
	TotalRoutes   prometheus.Counter
}

// NewRegistry creates and registers all routing metrics on a private
// Prometheus registry.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orderrouter_step_duration_seconds",
				Help:    "Duration of each routing pipeline step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step", "result"},
		),

		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderrouter_rejections_total",
				Help: "Terminal routing rejections by admission gate",
			},
			[]string{"gate"},
		),

		RiskRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderrouter_risk_retries_total",
				Help: "Risk gateway retries by cause",
			},
			[]string{"cause"},
		),

		SliceOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderrouter_slices_total",
				Help: "Child order slice outcomes",
			},
			[]string{"result"},
		),

		ActiveRoutes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orderrouter_active_routes",
				Help: "Routing calls currently in flight",
			},
		),

		TotalRoutes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orderrouter_routes_total",
				Help: "Total routing calls received",
			},
		),
	}

	r.registry.MustRegister(
		r.StepDuration,
		r.Rejections,
		r.RiskRetries,
		r.SliceOutcomes,
		r.ActiveRoutes,
		r.TotalRoutes,
	)

	return r
}

// Handler serves the registry in Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// StepTimer times one pipeline step
type StepTimer struct {
	registry *Registry
	step     string
	start    time.Time
}

// StartStep begins timing a routing pipeline step
func (r *Registry) StartStep(step string) *StepTimer {
	return &StepTimer{registry: r, step: step, start: time.Now()}
}

// Stop records the step duration with its result label
func (t *StepTimer) Stop(result string) {
	duration := time.Since(t.start)
	t.registry.StepDuration.WithLabelValues(t.step, result).Observe(duration.Seconds())

	log.Debug().
		Str("step", t.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("Routing step completed")
}

// RecordRejection counts a terminal rejection at the named admission gate
func (r *Registry) RecordRejection(gate string) {
	r.Rejections.WithLabelValues(gate).Inc()
}

// RecordRiskRetry counts one risk gateway retry
func (r *Registry) RecordRiskRetry(cause string) {
	r.RiskRetries.WithLabelValues(cause).Inc()
}

// RecordSlice counts one child order slice outcome
func (r *Registry) RecordSlice(result string) {
	r.SliceOutcomes.WithLabelValues(result).Inc()
}

// FillRate returns filled/(filled+failed) over all slices recorded so far,
// and true when at least one slice has been counted.
func (r *Registry) FillRate() (float64, bool) {
	filled := counterValue(r.SliceOutcomes, "filled")
	failed := counterValue(r.SliceOutcomes, "failed")
	total := filled + failed
	if total == 0 {
		return 0, false
	}
	return filled / total, true
}

func counterValue(vec *prometheus.CounterVec, label string) float64 {
	counter, err := vec.GetMetricWithLabelValues(label)
	if err != nil {
		return 0
	}
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
