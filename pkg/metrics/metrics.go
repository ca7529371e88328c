// Package metrics exposes the core's counters to a Prometheus scrape
// endpoint: a CounterVec per event type under a fixed namespace.
// The backend is whatever scrapes it — nothing here assumes one.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Namespace is the fixed Prometheus namespace for every dscore metric.
const Namespace = "dscore"

// Registry is the process-wide collector registry. Production
// entrypoints (cmd/) register it with an HTTP handler; tests may use
// prometheus.NewRegistry() instead and never touch this global.
var Registry = prometheus.NewRegistry()

// Collectors groups the core's counters, constructed once per process
// and injected into internal/core rather than reached for as a
// package-level global.
type Collectors struct {
	ConsentDenials    *prometheus.CounterVec
	PlanRejections    *prometheus.CounterVec
	PRBExhaustions    prometheus.Counter
	CapsuleDenials    *prometheus.CounterVec
	QueryExecutions   prometheus.Counter
	DeletionsVerified prometheus.Counter
}

// NewCollectors builds and registers the core's counters against reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ConsentDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "consent",
			Name:      "denials_total",
			Help:      "Consent checks that returned a denial, by reason code.",
		}, []string{"reason_code"}),
		PlanRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "queryplan",
			Name:      "rejections_total",
			Help:      "Query plans rejected by the validator, by reason code.",
		}, []string{"reason_code"}),
		PRBExhaustions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "prb",
			Name:      "exhaustions_total",
			Help:      "Privacy risk budget consumption attempts refused for insufficient remaining budget.",
		}),
		CapsuleDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "capsule",
			Name:      "access_denials_total",
			Help:      "Capsule access attempts denied, by reason.",
		}, []string{"reason"}),
		QueryExecutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "planvm",
			Name:      "executions_total",
			Help:      "Plan VM executions that ran to completion.",
		}),
		DeletionsVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "deletion",
			Name:      "certificates_verified_total",
			Help:      "Deletion certificates that passed VerifyIntegrity.",
		}),
	}
	reg.MustRegister(
		c.ConsentDenials,
		c.PlanRejections,
		c.PRBExhaustions,
		c.CapsuleDenials,
		c.QueryExecutions,
		c.DeletionsVerified,
	)
	return c
}
