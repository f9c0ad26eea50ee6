package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPC metrics
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftindexer_rpc_requests_total",
			Help: "Total number of RPC requests by method",
		},
		[]string{"method"},
	)

	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftindexer_rpc_errors_total",
			Help: "Total number of RPC errors by method and type",
		},
		[]string{"method", "error_type"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "giftindexer_rpc_request_duration_seconds",
			Help:    "Duration of RPC requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RPCRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftindexer_rpc_retries_total",
			Help: "Total number of RPC retry attempts by method",
		},
		[]string{"method"},
	)

	RPCBatchSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giftindexer_rpc_batch_size",
			Help: "Current adaptive eth_getLogs block window",
		},
	)

	RPCSubscriptionUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giftindexer_rpc_subscription_up",
			Help: "Whether a WebSocket log subscription is active (1) or not (0)",
		},
	)
)

func RPCMethodInc(method string) {
	RPCRequests.WithLabelValues(method).Inc()
}

func RPCMethodDuration(method string, duration time.Duration) {
	RPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RPCMethodError(method, errorType string) {
	RPCErrors.WithLabelValues(method, errorType).Inc()
}

func RPCRetryInc(method string) {
	RPCRetries.WithLabelValues(method).Inc()
}

func RPCBatchSizeSet(size uint64) {
	RPCBatchSize.Set(float64(size))
}

func RPCSubscriptionSet(up bool) {
	if up {
		RPCSubscriptionUp.Set(1)
		return
	}
	RPCSubscriptionUp.Set(0)
}
