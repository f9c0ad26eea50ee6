package store

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mappingsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_mappings_written_total",
		Help: "Total number of gift mappings inserted or updated",
	})

	mappingsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_mappings_duplicate_total",
		Help: "Total number of events skipped because they were already stored under another token",
	})

	mappingsStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_mappings_stale_total",
		Help: "Total number of mappings skipped because a later event of the token is stored",
	})

	mappingsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_mappings_rejected_total",
		Help: "Total number of mappings rejected by persistence validation",
	})

	mappingsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_mappings_deleted_total",
		Help: "Total number of mappings deleted by reorg repair",
	})

	pendingPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_pending_purged_total",
		Help: "Total number of stale pending events purged",
	})

	dlqInserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_dlq_inserts_total",
		Help: "Total number of events written to the dead-letter table",
	})

	dlqInsertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_dlq_insert_failures_total",
		Help: "Total number of dead-letter writes that failed",
	})

	lockAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftindexer_lock_attempts_total",
			Help: "Total number of lock acquisition attempts",
		},
		[]string{"resource", "acquired"},
	)

	checkpointBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "giftindexer_checkpoint_block",
			Help: "Last processed block per stage",
		},
		[]string{"stage"},
	)

	tableRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "giftindexer_table_rows",
			Help: "Number of rows per table",
		},
		[]string{"table"},
	)
)

func mappingsWrittenAdd(n int) {
	mappingsWritten.Add(float64(n))
}

func mappingsDuplicateAdd(n int) {
	mappingsDuplicate.Add(float64(n))
}

func mappingsStaleAdd(n int) {
	mappingsStale.Add(float64(n))
}

func mappingsRejectedAdd(n int) {
	mappingsRejected.Add(float64(n))
}

func mappingsDeletedAdd(n int64) {
	mappingsDeleted.Add(float64(n))
}

func pendingPurgedAdd(n int64) {
	pendingPurged.Add(float64(n))
}

func dlqInsertInc() {
	dlqInserts.Inc()
}

func dlqInsertFailureInc() {
	dlqInsertFailures.Inc()
}

func lockAttemptInc(resource string, acquired bool) {
	lockAttempts.WithLabelValues(resource, strconv.FormatBool(acquired)).Inc()
}

func checkpointSet(stage string, block uint64) {
	checkpointBlock.WithLabelValues(stage).Set(float64(block))
}

// CountsLog publishes a row count snapshot.
func CountsLog(c Counts) {
	tableRows.WithLabelValues(mappingsTable).Set(float64(c.Mappings))
	tableRows.WithLabelValues("pending_events").Set(float64(c.Pending))
	tableRows.WithLabelValues(dlqTable).Set(float64(c.DLQ))
}
