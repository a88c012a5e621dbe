package metrics

import "github.com/prometheus/client_golang/prometheus"

// Keys for sqlight metrics.
const (
	RequestsTotalKey          = "sqlight_requests_total"
	RequestDurationSecondsKey = "sqlight_request_duration_seconds"
	RowsReturnedTotalKey      = "sqlight_rows_returned_total"
	StatementsTotalKey        = "sqlight_statements_total"
	ConnectionsKey            = "sqlight_connections"
	PoolCapacityKey           = "sqlight_pool_capacity"
	PoolFilesKey              = "sqlight_pool_files"

	Fail = "fail"
	Ok   = "ok"
)

// Collectors for sqlight metrics.
var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: RequestsTotalKey,
		Help: "Cumulative number of worker requests.",
	}, []string{"command", "status"})
	RequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    RequestDurationSecondsKey,
		Help:    "Time spent handling worker requests.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"command"})
	RowsReturnedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: RowsReturnedTotalKey,
		Help: "Cumulative number of result rows sent to clients.",
	})
	StatementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: StatementsTotalKey,
		Help: "Cumulative number of statement outcomes sent to clients.",
	})
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ConnectionsKey,
		Help: "Number of connected worker clients.",
	})
	PoolCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: PoolCapacityKey,
		Help: "Number of slots in the persistent storage pool.",
	})
	PoolFiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: PoolFilesKey,
		Help: "Number of files stored in the persistent storage pool.",
	})
)

// Collectors lists every sqlight collector.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RequestsTotal,
		RequestDurationSeconds,
		RowsReturnedTotal,
		StatementsTotal,
		Connections,
		PoolCapacity,
		PoolFiles,
	}
}
