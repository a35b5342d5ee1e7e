package compaction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pendingRequestGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tephra",
		Subsystem: "compaction",
		Name:      "pending_requests",
		Help:      "Number of compaction requests buffered in the admission queue.",
	})

	scheduledTaskCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tephra",
		Subsystem: "compaction",
		Name:      "scheduled_tasks_total",
		Help:      "Total compaction tasks dispatched to workers.",
	})

	failedTaskCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tephra",
		Subsystem: "compaction",
		Name:      "failed_tasks_total",
		Help:      "Total compaction tasks that ended in an error.",
	})
)
