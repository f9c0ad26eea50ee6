package backfill

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backfillBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_backfill_blocks_total",
		Help: "Total number of blocks covered by backfill",
	})

	backfillEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_backfill_events_total",
		Help: "Total number of events fetched by backfill",
	})

	backfillBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_backfill_batches_total",
		Help: "Total number of backfill windows persisted",
	})

	backfillState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "giftindexer_backfill_state",
			Help: "Current backfill state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)
)

func batchDone(blocks uint64, events int) {
	backfillBlocks.Add(float64(blocks))
	backfillEvents.Add(float64(events))
	backfillBatches.Inc()
}

func stateSet(current State) {
	for _, s := range []State{StateIdle, StateRunning, StateComplete, StatePaused} {
		v := 0.0
		if s == current {
			v = 1
		}
		backfillState.WithLabelValues(string(s)).Set(v)
	}
}
