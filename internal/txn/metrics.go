package txn

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "basex"
	subsystem = "txn"
)

var (
	begunTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "begun_total",
		Help:      "Number of transactions begun",
	}, []string{"datasource"})

	committedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "committed_total",
		Help:      "Number of transactions committed",
	}, []string{"datasource"})

	rolledBackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rolled_back_total",
		Help:      "Number of transactions rolled back",
	}, []string{"datasource"})

	joinedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "joined_total",
		Help:      "Number of scopes that joined an ambient transaction",
	}, []string{"datasource"})

	durationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "duration_seconds",
		Help:      "Time from begin to commit or rollback",
		Buckets:   prometheus.DefBuckets,
	}, []string{"datasource", "outcome"})
)

// Transaction outcomes recorded on durationSeconds.
const (
	outcomeCommit      = "commit"
	outcomeRollback    = "rollback"
	outcomePanic       = "panic"
	outcomeExit        = "exit"
	outcomeCommitError = "commit_error"
)

// Collectors returns all Prometheus collectors of this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		begunTotal,
		committedTotal,
		rolledBackTotal,
		joinedTotal,
		durationSeconds,
	}
}
