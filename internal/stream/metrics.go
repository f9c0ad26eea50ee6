package stream

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftindexer_stream_flushes_total",
			Help: "Total number of buffer flushes by reason and outcome",
		},
		[]string{"reason", "success"},
	)

	streamBufferDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "giftindexer_stream_buffer_depth",
		Help: "Number of logs waiting in the stream buffer",
	})

	streamLagBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "giftindexer_stream_lag_blocks",
		Help: "Blocks between the chain head and the stream checkpoint",
	})

	streamPolled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftindexer_stream_polled_logs_total",
		Help: "Total number of logs returned by the smart poll",
	})

	streamSubscribed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "giftindexer_stream_subscribed",
		Help: "Whether the stream engine holds a live log subscription (1) or polls only (0)",
	})
)

func flushInc(reason FlushReason, success bool) {
	streamFlushes.WithLabelValues(string(reason), strconv.FormatBool(success)).Inc()
}

func depthSet(n int) {
	streamBufferDepth.Set(float64(n))
}

func lagSet(n uint64) {
	streamLagBlocks.Set(float64(n))
}

func polledAdd(n int) {
	streamPolled.Add(float64(n))
}

func subscriptionSet(up bool) {
	if up {
		streamSubscribed.Set(1)
		return
	}
	streamSubscribed.Set(0)
}
