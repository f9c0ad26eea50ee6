package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftindexer_reconcile_runs_total",
			Help: "Total number of reconciliation passes by result",
		},
		[]string{"result"},
	)

	reorgsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_reorgs_detected_total",
		Help: "Total number of reorgs detected and repaired",
	})

	reorgDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "giftindexer_reorg_depth_blocks",
		Help: "Depth of the most recent reorg in blocks",
	})

	sampleMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_reconcile_sample_misses_total",
		Help: "Total number of chain events found missing by sampling",
	})

	reconcileHalted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "giftindexer_reconcile_halted",
		Help: "1 when reconciliation stopped on a reorg deeper than the configured bound",
	})
)

func runInc(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	reconcileRuns.WithLabelValues(result).Inc()
}

func reorgObserved(depth uint64) {
	reorgsDetected.Inc()
	reorgDepth.Set(float64(depth))
}

func sampleMissAdd(n int) {
	sampleMisses.Add(float64(n))
}

func haltedSet(halted bool) {
	v := 0.0
	if halted {
		v = 1
	}
	reconcileHalted.Set(v)
}
