// Package metrics holds the Prometheus counters the daemon exposes on its
// optional metrics endpoint. Kept as package-level vars, not threaded
// through every call site, since the counters are incremented from three
// otherwise-unrelated packages (handler, forwarder, server) and a shared
// struct would force an import between them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aardvark_dns_queries_total",
			Help: "DNS queries served, by query type and response code",
		},
		[]string{"qtype", "rcode"},
	)

	ForwardFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aardvark_dns_forward_failures_total",
			Help: "Forward attempts that exhausted every configured resolver",
		},
	)

	ReloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aardvark_dns_reloads_total",
			Help: "Configuration directory reloads processed",
		},
	)
)

func init() {
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(ForwardFailuresTotal)
	prometheus.MustRegister(ReloadsTotal)
}
