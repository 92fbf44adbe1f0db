package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// messagesReceived counts feed documents by outcome.
// Labels: result (applied, invalid)
var messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vrscore",
	Subsystem: "feed",
	Name:      "messages_total",
	Help:      "Feed messages received",
}, []string{"result"})
