package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goran-ethernal/GiftIndexer/internal/backfill"
	"github.com/goran-ethernal/GiftIndexer/internal/leader"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/metrics"
	"github.com/goran-ethernal/GiftIndexer/internal/reconcile"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/goran-ethernal/GiftIndexer/internal/stream"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	pkgrpc "github.com/goran-ethernal/GiftIndexer/pkg/rpc"
)

const (
	checkpointBackfill = store.StageBackfill
	checkpointStream   = store.StageStream

	// ResourceBackfill is the lock name the backfill engine runs under.
	ResourceBackfill = leader.ResourceBackfill
)

// BackfillSource exposes the backfill engine's state.
type BackfillSource interface {
	Status() backfill.Status
}

// StreamSource exposes the stream engine's state.
type StreamSource interface {
	Health() stream.Health
}

// ReconcileSource exposes the reconciliation engine's state.
type ReconcileSource interface {
	Status() reconcile.Status
}

// LeaderSource tells which engines this process currently drives.
type LeaderSource interface {
	IsLeader(resource string) bool
	Leading() []string
}

// Deps are the components a Monitor reads. Nil engines are treated as disabled.
type Deps struct {
	Store      *store.Store
	Chain      pkgrpc.ChainClient
	Backfill   BackfillSource
	Stream     StreamSource
	Reconcile  ReconcileSource
	Leader     LeaderSource
	InstanceID string
	ChainID    uint64
}

// Snapshot is the aggregated state of the indexer.
type Snapshot struct {
	Healthy       bool      `json:"healthy"`
	Running       bool      `json:"running"`
	InstanceID    string    `json:"instance_id,omitempty"`
	ChainID       uint64    `json:"chain_id"`
	Contract      string    `json:"contract_address"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`

	RPC        pkgrpc.Health `json:"rpc"`
	RPCChecked bool          `json:"-"`
	BatchSize  uint64        `json:"batch_size"`
	StoreOK    bool          `json:"store_ok"`

	HeadBlock        uint64            `json:"head_block"`
	SafeHead         uint64            `json:"safe_head"`
	LastIndexedBlock uint64            `json:"last_indexed_block"`
	LagBlocks        uint64            `json:"lag_blocks"`
	LagSeconds       float64           `json:"lag_seconds"`
	Checkpoints      map[string]uint64 `json:"checkpoints"`
	Counts           store.Counts      `json:"counts"`
	Leading          []string          `json:"leading,omitempty"`

	Backfill  *backfill.Status  `json:"backfill,omitempty"`
	Stream    *stream.Health    `json:"stream,omitempty"`
	Reconcile *reconcile.Status `json:"reconcile,omitempty"`

	Alerts    []Alert   `json:"alerts"`
	Errors    []string  `json:"errors,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Monitor periodically probes the node and the store and combines the results with the
// live engine state into snapshots and alerts.
type Monitor struct {
	cfg  config.HealthConfig
	deps Deps
	log  *logger.Logger

	mu      sync.RWMutex
	running bool
	probe   *Snapshot
	since   map[string]time.Time
}

// New creates a monitor.
func New(cfg config.HealthConfig, deps Deps, log *logger.Logger) *Monitor {
	return &Monitor{
		cfg:   cfg,
		deps:  deps,
		log:   log,
		since: make(map[string]time.Time),
	}
}

// SetRunning records whether the engines of this process are up.
func (m *Monitor) SetRunning(running bool) {
	m.mu.Lock()
	m.running = running
	m.mu.Unlock()
	metrics.RunningSet(running)
}

// Run refreshes immediately and then every health interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval.Duration)
	defer ticker.Stop()

	for {
		metrics.UpdateSystemMetrics()
		m.Refresh(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Refresh probes the node and the store and returns the resulting snapshot.
func (m *Monitor) Refresh(ctx context.Context) *Snapshot {
	probe := &Snapshot{
		Contract:    m.deps.Store.Contract().Hex(),
		ChainID:     m.deps.ChainID,
		InstanceID:  m.deps.InstanceID,
		Checkpoints: make(map[string]uint64),
		CheckedAt:   time.Now().UTC(),
	}

	m.probeStore(ctx, probe)
	m.probeChain(ctx, probe)

	m.mu.Lock()
	m.probe = probe
	m.mu.Unlock()

	snap := m.Snapshot(ctx)

	metrics.ComponentHealthSet("rpc", snap.RPC.HTTP)
	metrics.ComponentHealthSet("store", snap.StoreOK)
	metrics.HeadBlockSet(snap.HeadBlock)
	metrics.LagLog(snap.LagBlocks, snap.LagSeconds)
	metrics.DLQEntriesSet(snap.Counts.DLQ)
	metrics.BatchSizeSet(snap.BatchSize)
	store.CountsLog(snap.Counts)

	raised := make(map[string]bool, len(snap.Alerts))
	for _, a := range snap.Alerts {
		raised[a.Code] = true
	}
	metrics.AlertsSet(KnownAlerts, raised)

	for _, e := range probe.Errors {
		m.log.Warnw("health probe failed", "error", e)
	}

	return snap
}

// Snapshot combines the last probe with the live engine state. It probes first when
// nothing was probed yet.
func (m *Monitor) Snapshot(ctx context.Context) *Snapshot {
	m.mu.RLock()
	probe := m.probe
	m.mu.RUnlock()

	if probe == nil {
		return m.Refresh(ctx)
	}

	snap := *probe
	snap.Checkpoints = make(map[string]uint64, len(probe.Checkpoints))
	for k, v := range probe.Checkpoints {
		snap.Checkpoints[k] = v
	}
	snap.Errors = append([]string(nil), probe.Errors...)

	started := metrics.StartTime()
	snap.StartedAt = started.UTC()
	snap.UptimeSeconds = time.Since(started).Seconds()

	m.mu.RLock()
	snap.Running = m.running
	m.mu.RUnlock()

	if m.deps.Backfill != nil {
		bs := m.deps.Backfill.Status()
		snap.Backfill = &bs
	}
	if m.deps.Stream != nil {
		sh := m.deps.Stream.Health()
		snap.Stream = &sh
	}
	if m.deps.Reconcile != nil {
		rs := m.deps.Reconcile.Status()
		snap.Reconcile = &rs
	}

	backfillLeader := true
	if m.deps.Leader != nil {
		snap.Leading = m.deps.Leader.Leading()
		backfillLeader = m.deps.Leader.IsLeader(ResourceBackfill)
	}

	snap.Healthy = snap.Running && snap.StoreOK && (!snap.RPCChecked || snap.RPC.HTTP)

	snap.Alerts = evaluateAlerts(&snap, m.cfg.MaxLag.Duration, backfillLeader)

	m.mu.Lock()
	m.since = mergeSince(snap.Alerts, m.since, time.Now().UTC())
	m.mu.Unlock()

	if snap.Alerts == nil {
		snap.Alerts = []Alert{}
	}
	return &snap
}

// Alerts returns the currently raised alerts.
func (m *Monitor) Alerts(ctx context.Context) []Alert {
	return m.Snapshot(ctx).Alerts
}

func (m *Monitor) probeStore(ctx context.Context, s *Snapshot) {
	if err := m.deps.Store.Ping(ctx); err != nil {
		s.Errors = append(s.Errors, fmt.Sprintf("store: %v", err))
		return
	}
	s.StoreOK = true

	counts, err := m.deps.Store.Counts(ctx)
	if err != nil {
		s.Errors = append(s.Errors, fmt.Sprintf("store counts: %v", err))
	} else {
		s.Counts = counts
	}

	checkpoints, err := m.deps.Store.Checkpoints(ctx)
	if err != nil {
		s.Errors = append(s.Errors, fmt.Sprintf("store checkpoints: %v", err))
		return
	}
	for _, cp := range checkpoints {
		s.Checkpoints[cp.ID] = cp.LastBlock
	}

	s.LastIndexedBlock = max(s.Checkpoints[checkpointBackfill], s.Checkpoints[checkpointStream])
}

func (m *Monitor) probeChain(ctx context.Context, s *Snapshot) {
	if m.deps.Chain == nil {
		return
	}

	s.RPCChecked = true
	s.RPC = m.deps.Chain.HealthCheck(ctx)
	s.BatchSize = m.deps.Chain.BatchSize()
	if !s.RPC.HTTP {
		return
	}

	s.HeadBlock = s.RPC.LatestBlock
	safeHead, err := m.deps.Chain.SafeHead(ctx)
	if err != nil {
		s.Errors = append(s.Errors, fmt.Sprintf("rpc safe head: %v", err))
	} else {
		s.SafeHead = safeHead
	}

	if s.HeadBlock <= s.LastIndexedBlock {
		return
	}
	s.LagBlocks = s.HeadBlock - s.LastIndexedBlock

	indexed := max(s.LastIndexedBlock, m.deps.Store.Floor())
	blocks, err := m.deps.Chain.GetBlocks(ctx, []uint64{indexed, s.HeadBlock})
	if err != nil {
		s.Errors = append(s.Errors, fmt.Sprintf("rpc block times: %v", err))
		return
	}
	if blocks[1].Timestamp > blocks[0].Timestamp {
		s.LagSeconds = float64(blocks[1].Timestamp - blocks[0].Timestamp)
	}
}
