package idgen

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "basex"
	subsystem = "idgen"
)

var (
	generatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "generated_total",
		Help:      "Number of identifiers issued",
	})

	stallsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "stalls_total",
		Help:      "Number of Next calls that waited for the next tick",
	})

	clockRegressionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "clock_regressions_total",
		Help:      "Number of times the wall clock was observed behind the last issued tick",
	})
)

// Collectors returns all Prometheus collectors of this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		generatedTotal,
		stallsTotal,
		clockRegressionsTotal,
	}
}
