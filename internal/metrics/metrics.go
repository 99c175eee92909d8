// Package metrics exposes Prometheus metrics for nodeset imports and the
// address space they build.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Import results used as the "result" label.
const (
	ResultSuccess    = "success"
	ResultFailed     = "failed"
	ResultRolledBack = "rolled_back"
)

// Registry holds all metrics for the application. A nil *Registry is valid
// and records nothing.
type Registry struct {
	ImportsTotal           *prometheus.CounterVec
	ImportDuration         prometheus.Histogram
	NodesImportedTotal     *prometheus.CounterVec
	ReferencesWiredTotal   prometheus.Counter
	RollbacksTotal         prometheus.Counter
	AddressSpaceNodes      prometheus.Gauge
	AddressSpaceReferences prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates a new metrics registry with all metrics initialized.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	factory := promauto.With(r.registry)

	r.ImportsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uaspace_imports_total",
			Help: "Total number of nodeset imports by result",
		},
		[]string{"result"},
	)

	r.ImportDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "uaspace_import_duration_seconds",
			Help:    "Nodeset import duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	r.NodesImportedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uaspace_nodes_imported_total",
			Help: "Total number of nodes imported by namespace alias",
		},
		[]string{"alias"},
	)

	r.ReferencesWiredTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "uaspace_references_wired_total",
			Help: "Total number of references added by imports",
		},
	)

	r.RollbacksTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "uaspace_rollbacks_total",
			Help: "Total number of failed imports rolled back from a snapshot",
		},
	)

	r.AddressSpaceNodes = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "uaspace_address_space_nodes",
			Help: "Number of nodes in the address space",
		},
	)

	r.AddressSpaceReferences = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "uaspace_address_space_references",
			Help: "Number of references in the address space",
		},
	)

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordImport records one finished import attempt.
func (r *Registry) RecordImport(alias, result string, nodes, references int, duration time.Duration) {
	if r == nil {
		return
	}
	r.ImportsTotal.WithLabelValues(result).Inc()
	r.ImportDuration.Observe(duration.Seconds())
	if result == ResultSuccess {
		r.NodesImportedTotal.WithLabelValues(alias).Add(float64(nodes))
		r.ReferencesWiredTotal.Add(float64(references))
	}
}

// RecordRollback records a restored snapshot.
func (r *Registry) RecordRollback() {
	if r == nil {
		return
	}
	r.RollbacksTotal.Inc()
}

// UpdateAddressSpace sets the address space size gauges.
func (r *Registry) UpdateAddressSpace(nodes, references int) {
	if r == nil {
		return
	}
	r.AddressSpaceNodes.Set(float64(nodes))
	r.AddressSpaceReferences.Set(float64(references))
}
