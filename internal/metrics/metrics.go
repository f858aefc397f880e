// Package metrics records extraction runs as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	"github.com/sashkaw/spatial-aez/internal/zonal"
)

const namespace = "aez"

// Metrics holds the run collectors. A nil *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	Runs          *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	Pixels        *prometheus.CounterVec
	AreaKm2       *prometheus.GaugeVec
	Residual      *prometheus.GaugeVec
	UnmappedNames *prometheus.GaugeVec
	LastSuccess   *prometheus.GaugeVec
}

// New registers the run collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Extraction runs by dataset and outcome.",
		}, []string{"dataset", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of an extraction run.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"dataset"}),
		Pixels: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pixels_total",
			Help:      "Pixels visited, by dataset and bucket.",
		}, []string{"dataset", "bucket"}),
		AreaKm2: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "area_km2",
			Help:      "Area of the last run by bucket.",
		}, []string{"dataset", "bucket"}),
		Residual: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conservation_residual_km2",
			Help:      "Accounted minus theoretical grid area for the last run.",
		}, []string{"dataset"}),
		UnmappedNames: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unmapped_names",
			Help:      "Boundary names missing from the vocabulary in the last run.",
		}, []string{"dataset"}),
		LastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}, []string{"dataset"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// ObserveRun records one run outcome and its duration.
func (m *Metrics) ObserveRun(dataset, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(dataset, status).Inc()
	m.RunDuration.WithLabelValues(dataset).Observe(elapsed.Seconds())
}

// ObserveDiagnostics records where a successful run's area went.
func (m *Metrics) ObserveDiagnostics(dataset string, d zonal.Diagnostics, at time.Time) {
	if m == nil {
		return
	}
	buckets := []struct {
		name   string
		pixels int64
		area   float64
	}{
		{"assigned", d.Counts.Assigned, d.Assigned},
		{"unmapped", d.Counts.Unmapped, d.Unmapped},
		{"rejected", d.Counts.Rejected, d.Rejected},
		{"unassigned", d.Counts.Unassigned, d.Unassigned},
		{"nodata", d.Counts.NoData, d.NoData},
		{"unclassified", d.Counts.Unclassified, d.Unclassified},
	}
	for _, b := range buckets {
		m.Pixels.WithLabelValues(dataset, b.name).Add(float64(b.pixels))
		m.AreaKm2.WithLabelValues(dataset, b.name).Set(b.area)
	}
	m.AreaKm2.WithLabelValues(dataset, "total").Set(d.Total)
	m.Residual.WithLabelValues(dataset).Set(d.Residual())
	m.UnmappedNames.WithLabelValues(dataset).Set(float64(len(d.UnmappedZones)))
	m.LastSuccess.WithLabelValues(dataset).Set(float64(at.Unix()))
}

// WriteTextfile writes the current values in the node-exporter textfile
// format. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return eris.Wrapf(prometheus.WriteToTextfile(path, m.reg), "metrics: write %s", path)
}

// Handler serves the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
