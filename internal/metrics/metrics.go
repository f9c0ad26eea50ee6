package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Status metrics
	running = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giftindexer_running",
			Help: "1 while the indexer process is running its engines",
		},
	)

	lagSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giftindexer_lag_seconds",
			Help: "Seconds between the chain head and the last indexed block",
		},
	)

	lagBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giftindexer_lag_blocks",
			Help: "Blocks between the chain head and the last indexed block",
		},
	)

	headBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giftindexer_head_block",
			Help: "Latest block reported by the node",
		},
	)

	dlqEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giftindexer_dlq_entries",
			Help: "Number of dead-letter entries",
		},
	)

	batchSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giftindexer_rpc_batch_size",
			Help: "Current adaptive log query window in blocks",
		},
	)

	activeAlerts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "giftindexer_alerts_active",
			Help: "1 while the alert is raised",
		},
		[]string{"code", "severity"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "giftindexer_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giftindexer_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giftindexer_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "giftindexer_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

// StartTime returns when the process started.
func StartTime() time.Time {
	return startTime
}

func RunningSet(isRunning bool) {
	running.Set(boolAsFloat(isRunning))
}

func LagLog(blocks uint64, seconds float64) {
	lagBlocks.Set(float64(blocks))
	lagSeconds.Set(seconds)
}

func HeadBlockSet(block uint64) {
	headBlock.Set(float64(block))
}

func DLQEntriesSet(n int64) {
	dlqEntries.Set(float64(n))
}

func BatchSizeSet(size uint64) {
	batchSize.Set(float64(size))
}

// AlertsSet marks the given alert codes as raised and every other known code as cleared.
func AlertsSet(known map[string]string, raised map[string]bool) {
	for code, severity := range known {
		activeAlerts.WithLabelValues(code, severity).Set(boolAsFloat(raised[code]))
	}
}

func ComponentHealthSet(component string, healthy bool) {
	ComponentHealth.WithLabelValues(component).Set(boolAsFloat(healthy))
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())

	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}

func boolAsFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
