// Package metrics defines the prometheus collectors of entity tables.
//
// Collectors are created unregistered. Binaries register them with
// Collectors(); libraries and tests increment them regardless.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Keys for entitydb metrics.
const (
	TableOperationsTotalKey = "entitydb_table_operations_total"
	TriggerVetoesTotalKey   = "entitydb_trigger_vetoes_total"
	CacheLookupsTotalKey    = "entitydb_cache_lookups_total"

	Hit  = "hit"
	Miss = "miss"
)

// Operation labels.
const (
	OpInsert     = "insert"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpDeleteMany = "delete_many"
	OpQuery      = "query"
	OpGet        = "get"
)

// Collectors for entitydb metrics.
var (
	TableOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: TableOperationsTotalKey,
		Help: "Cumulative number of completed table operations.",
	}, []string{"table", "op"})
	TriggerVetoesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: TriggerVetoesTotalKey,
		Help: "Cumulative number of operations vetoed by a before-trigger.",
	}, []string{"table", "op"})
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: CacheLookupsTotalKey,
		Help: "Cumulative number of point lookups served through a table cache.",
	}, []string{"table", "result"})
)

// Collectors lists the collectors of entity tables.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		TableOperationsTotal,
		TriggerVetoesTotal,
		CacheLookupsTotal,
	}
}
