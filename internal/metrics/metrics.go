// Package metrics holds the Prometheus counters exposed on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shifpost"

// Export formats used as the "format" label.
const (
	FormatICS  = "ics"
	FormatHTML = "html"
	FormatPDF  = "pdf"
)

// Metrics is a set of counters bound to its own registry.
type Metrics struct {
	registry *prometheus.Registry

	ShiftSaves   prometheus.Counter
	ShiftDeletes prometheus.Counter
	Exports      *prometheus.CounterVec
	SkippedSlots prometheus.Counter
	Imports      prometheus.Counter
}

// New registers the counters plus the Go and process collectors on a fresh
// registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ShiftSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shift_saves_total",
			Help:      "Shift dates written (insert or replace).",
		}),
		ShiftDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shift_deletes_total",
			Help:      "Stored shift dates removed, explicitly or by saving no slots.",
		}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Documents exported, by format.",
		}, []string{"format"}),
		SkippedSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_skipped_slots_total",
			Help:      "Malformed slots left out of calendar exports.",
		}),
		Imports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_days_total",
			Help:      "Dates written from imported calendars.",
		}),
	}
	m.registry.MustRegister(
		m.ShiftSaves,
		m.ShiftDeletes,
		m.Exports,
		m.SkippedSlots,
		m.Imports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Exported records one exported document.
func (m *Metrics) Exported(format string) {
	m.Exports.WithLabelValues(format).Inc()
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
