package leader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	isLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "giftindexer_leader_is_leader",
			Help: "1 when this process holds the lease of the resource",
		},
		[]string{"resource"},
	)

	renewFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftindexer_leader_renew_failures_total",
			Help: "Total number of failed lease renewals",
		},
		[]string{"resource"},
	)
)

func leaderSet(resource string, leading bool) {
	v := 0.0
	if leading {
		v = 1
	}
	isLeader.WithLabelValues(resource).Set(v)
}

func renewFailureInc(resource string) {
	renewFailures.WithLabelValues(resource).Inc()
}
