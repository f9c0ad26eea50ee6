package housekeeping

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var housekeepingRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "giftindexer_housekeeping_runs_total",
		Help: "Total number of housekeeping runs",
	},
	[]string{"success"},
)

func runInc(success bool) {
	housekeepingRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
}
