// Package metrics records reconciliation outcomes as Prometheus series.
//
// A Recorder owns its registry so the CLI can export a node-exporter
// textfile after a batch pass, while the HTTP server exposes the same
// registry on /metrics.
package metrics

import (
	"net/http"

	"dispenser-sync/core/reconcile"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects pass metrics.
type Recorder struct {
	registry *prometheus.Registry

	outcomes   *prometheus.CounterVec
	passes     *prometheus.CounterVec
	duration   prometheus.Histogram
	lastRun    prometheus.Gauge
	incomplete prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispenser_reconcile_outcomes_total",
				Help: "Per-entity reconciliation outcomes.",
			},
			[]string{"category", "status"},
		),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispenser_reconcile_passes_total",
				Help: "Total number of reconciliation passes.",
			},
			[]string{"mode", "result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dispenser_reconcile_duration_seconds",
				Help:    "Duration of reconciliation passes.",
				Buckets: prometheus.DefBuckets,
			},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispenser_reconcile_last_run_timestamp_seconds",
				Help: "Unix time the last pass finished.",
			},
		),
		incomplete: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispenser_reconcile_incomplete_entities",
				Help: "Entity types that could not be fully loaded in the last pass.",
			},
		),
	}

	r.registry.MustRegister(r.outcomes, r.passes, r.duration, r.lastRun, r.incomplete)
	return r
}

// Observe adds a finished report to the series.
func (r *Recorder) Observe(report *reconcile.Report) {
	for _, name := range report.CategoryNames() {
		c := report.Categories[name]
		r.add(name, reconcile.StatusPlanned, c.Planned)
		r.add(name, reconcile.StatusCreated, c.Created)
		r.add(name, reconcile.StatusUpdated, c.Updated)
		r.add(name, reconcile.StatusSkipped, c.Skipped)
		r.add(name, reconcile.StatusUnresolvable, c.Unresolvable)
		r.add(name, reconcile.StatusFailed, c.Failed)
	}

	mode := "apply"
	if report.DryRun {
		mode = "dry_run"
	}
	result := "ok"
	switch {
	case report.Cancelled:
		result = "cancelled"
	case report.HasFailures():
		result = "failed"
	case len(report.Incomplete) > 0:
		result = "incomplete"
	}
	r.passes.WithLabelValues(mode, result).Inc()

	if !report.FinishedAt.IsZero() {
		r.duration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
		r.lastRun.Set(float64(report.FinishedAt.Unix()))
	}
	r.incomplete.Set(float64(len(report.Incomplete)))
}

func (r *Recorder) add(category string, status reconcile.Status, n int) {
	if n == 0 {
		return
	}
	r.outcomes.WithLabelValues(category, string(status)).Add(float64(n))
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry to path for the node-exporter textfile
// collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
