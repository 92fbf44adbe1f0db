package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// trackedAircraft is the number of records held across all stores.
	trackedAircraft = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vrscore",
		Subsystem: "state",
		Name:      "tracked_aircraft",
		Help:      "Number of aircraft currently tracked",
	})

	// messagesApplied counts reports merged into records.
	// Labels: changed (true, false)
	messagesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vrscore",
		Subsystem: "state",
		Name:      "messages_applied_total",
		Help:      "Reports merged into aircraft records",
	}, []string{"changed"})
)

func changedLabel(changed bool) string {
	if changed {
		return "true"
	}
	return "false"
}
