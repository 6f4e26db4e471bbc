// Package metrics records build and live-reload metrics.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels a finished build.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Recorder receives build observations.
type Recorder interface {
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(o Outcome)
	AddPagesRendered(n int)
	AddOutputsWritten(n int)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration) {}
func (NoopRecorder) IncBuildOutcome(Outcome)            {}
func (NoopRecorder) AddPagesRendered(int)               {}
func (NoopRecorder) AddOutputsWritten(int)              {}

const namespace = "weaving"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg            *prom.Registry
	buildDuration  prom.Histogram
	buildOutcome   *prom.CounterVec
	pagesRendered  prom.Counter
	outputsWritten prom.Counter
}

// NewPrometheusRecorder constructs and registers the build metrics on reg,
// or on a private registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Builds by outcome",
		}, []string{"outcome"}),
		pagesRendered: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pages_rendered_total",
			Help:      "Pages rendered across all builds",
		}),
		outputsWritten: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "outputs_written_total",
			Help:      "Files written to the build directory",
		}),
	}
	reg.MustRegister(pr.buildDuration, pr.buildOutcome, pr.pagesRendered, pr.outputsWritten)
	return pr
}

// Registry returns the registry the recorder registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

// WatchClients exposes a gauge that reports count() on every scrape.
func (p *PrometheusRecorder) WatchClients(count func() int) {
	p.reg.MustRegister(prom.NewGaugeFunc(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "livereload_clients",
		Help:      "Connected live-reload clients",
	}, func() float64 { return float64(count()) }))
}

// HTTPHandler serves the recorder's registry.
func (p *PrometheusRecorder) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(o Outcome) {
	p.buildOutcome.WithLabelValues(string(o)).Inc()
}

func (p *PrometheusRecorder) AddPagesRendered(n int) { p.pagesRendered.Add(float64(n)) }

func (p *PrometheusRecorder) AddOutputsWritten(n int) { p.outputsWritten.Add(float64(n)) }
