// Package metrics holds in-process health/stall gauges for the per-loop
// health state described in spec.md §4.2/§5 ("stall metric", "liveness
// deadline"). No relay loop records into them. There is deliberately no HTTP exporter here:
// spec.md §1/§6 places Prometheus export out of scope for the core relay
// engine. The prometheus/client_golang types are still used directly
// (CounterVec/GaugeVec registered against a private registry) so a
// collaborator that does own the HTTP surface can pull them in later
// without this package changing shape.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is a private metrics registry owned by one relay process. It is
// never wired to an HTTP handler by this package.
type Registry struct {
	reg *prometheus.Registry

	SubmittedTotal   *prometheus.CounterVec
	RejectedTotal    *prometheus.CounterVec
	StalledLoops     *prometheus.GaugeVec
	BestHeaderNumber *prometheus.GaugeVec
}

// NewRegistry builds a Registry with every relay loop's metrics
// pre-registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		SubmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_submitted_total",
			Help: "Total transactions submitted to a target chain, by loop and direction.",
		}, []string{"loop", "direction"}),
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_rejected_total",
			Help: "Total transactions rejected by a target pallet, by loop and reason.",
		}, []string{"loop", "reason"}),
		StalledLoops: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_loop_stalled",
			Help: "1 if a loop has exceeded its liveness deadline with no forward progress, else 0.",
		}, []string{"loop", "direction"}),
		BestHeaderNumber: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_best_header_number",
			Help: "Best header number known, by chain and vantage point (source|target).",
		}, []string{"chain", "vantage"}),
	}

	reg.MustRegister(r.SubmittedTotal, r.RejectedTotal, r.StalledLoops, r.BestHeaderNumber)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for a future exporter
// to pull from; the core relay never calls it itself.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
