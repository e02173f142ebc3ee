// Package metrics exposes the coordinator's Prometheus counters and
// gauges, grounded on the same client_golang usage the rest of the
// bunbase family uses for its own operation counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is one coordinator's metric set, registered under a
// configurable namespace so multiple coordinators in one process (as
// in tests) don't collide on metric names.
type Metrics struct {
	Registry *prometheus.Registry

	TasksInstalled  prometheus.Counter
	TasksDone       prometheus.Counter
	TasksErrored    prometheus.Counter
	Resubmits       *prometheus.CounterVec // label "directive": check|force
	RescanMarkers   prometheus.Counter
	StoreRetries    *prometheus.CounterVec // label "op": create|getdata|delete|setdata (setdata counts failed resubmit writes, which are not retried)
	DeadWorkerTakeovers prometheus.Counter
	TasksInTable    prometheus.GaugeFunc
}

// New builds and registers a fresh Metrics set under namespace.
// tableSize is polled lazily by TasksInTable whenever it is scraped.
func New(namespace string, tableSize func() int) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		TasksInstalled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_installed_total",
			Help: "Total tasks installed across all batches.",
		}),
		TasksDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_done_total",
			Help: "Total tasks that completed successfully.",
		}),
		TasksErrored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_errored_total",
			Help: "Total tasks that failed terminally.",
		}),
		Resubmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "resubmits_total",
			Help: "Total resubmissions by directive.",
		}, []string{"directive"}),
		RescanMarkers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rescan_markers_total",
			Help: "Total rescan markers created.",
		}),
		StoreRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_retries_total",
			Help: "Total store-call retries by operation.",
		}, []string{"op"}),
		DeadWorkerTakeovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dead_worker_takeovers_total",
			Help: "Total FORCE resubmissions triggered by a dead-worker report.",
		}),
	}
	m.TasksInTable = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: "tasks_in_table",
		Help: "Current number of tasks tracked in memory.",
	}, func() float64 { return float64(tableSize()) })

	reg.MustRegister(m.TasksInstalled, m.TasksDone, m.TasksErrored, m.Resubmits,
		m.RescanMarkers, m.StoreRetries, m.DeadWorkerTakeovers, m.TasksInTable)

	return m
}
