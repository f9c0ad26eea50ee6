package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ingestEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "giftindexer_ingest_events_total",
		Help: "Total number of events seen by the ingestion pipeline by outcome",
	},
	[]string{"outcome"},
)

func eventsAdd(r Result) {
	ingestEvents.WithLabelValues("received").Add(float64(r.Received))
	ingestEvents.WithLabelValues("written").Add(float64(r.Written))
	ingestEvents.WithLabelValues("duplicate").Add(float64(r.Duplicates))
	ingestEvents.WithLabelValues("stale").Add(float64(r.Stale))
	ingestEvents.WithLabelValues("invalid").Add(float64(r.Invalid))
	ingestEvents.WithLabelValues("rejected").Add(float64(r.Rejected))
}
