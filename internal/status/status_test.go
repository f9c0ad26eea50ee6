package status

import (
	"context"
	"testing"
	"time"

	"github.com/goran-ethernal/GiftIndexer/internal/backfill"
	"github.com/goran-ethernal/GiftIndexer/internal/common"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/reconcile"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/goran-ethernal/GiftIndexer/internal/stream"
	"github.com/goran-ethernal/GiftIndexer/internal/testutil"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	pkgrpc "github.com/goran-ethernal/GiftIndexer/pkg/rpc"
	"github.com/stretchr/testify/require"
)

const floor = testutil.DeploymentBlock

type backfillStub struct{ status backfill.Status }

func (b backfillStub) Status() backfill.Status { return b.status }

type streamStub struct{ health stream.Health }

func (s streamStub) Health() stream.Health { return s.health }

type reconcileStub struct{ status reconcile.Status }

func (r reconcileStub) Status() reconcile.Status { return r.status }

type leaderStub struct{ leading map[string]bool }

func (l leaderStub) IsLeader(resource string) bool { return l.leading[resource] }

func (l leaderStub) Leading() []string {
	var out []string
	for r, ok := range l.leading {
		if ok {
			out = append(out, r)
		}
	}
	return out
}

func codes(alerts []Alert) []string {
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Code)
	}
	return out
}

func TestEvaluateAlerts(t *testing.T) {
	healthy := func() *Snapshot {
		return &Snapshot{
			Running:     true,
			RPCChecked:  true,
			RPC:         pkgrpc.Health{HTTP: true, WS: true},
			SafeHead:    floor + 100,
			Checkpoints: map[string]uint64{checkpointBackfill: floor + 100},
			Backfill:    &backfill.Status{State: backfill.StateComplete},
			Stream:      &stream.Health{State: stream.StateRunning, Subscribed: true, StartBlock: floor + 90},
			Reconcile:   &reconcile.Status{State: reconcile.StateIdle},
		}
	}

	tests := []struct {
		name   string
		mutate func(s *Snapshot)
		leader bool
		want   []string
	}{
		{name: "healthy", mutate: func(s *Snapshot) {}, leader: true, want: []string{}},
		{
			name:   "indexer down",
			mutate: func(s *Snapshot) { s.Running = false },
			leader: true,
			want:   []string{AlertIndexerDown},
		},
		{
			name:   "rpc down",
			mutate: func(s *Snapshot) { s.RPC = pkgrpc.Health{Error: "dial tcp: refused"} },
			leader: true,
			want:   []string{AlertRPCDown},
		},
		{
			name:   "lag",
			mutate: func(s *Snapshot) { s.LagSeconds = 601; s.LagBlocks = 300 },
			leader: true,
			want:   []string{AlertLagAboveMax},
		},
		{
			name:   "dlq",
			mutate: func(s *Snapshot) { s.Counts.DLQ = 2 },
			leader: true,
			want:   []string{AlertDLQNotEmpty},
		},
		{
			name: "backfill behind stream start",
			mutate: func(s *Snapshot) {
				s.Backfill.State = backfill.StatePaused
				s.Checkpoints[checkpointBackfill] = floor + 40
			},
			leader: true,
			want:   []string{AlertBackfillNeeded},
		},
		{
			name: "backfill running is not an alert",
			mutate: func(s *Snapshot) {
				s.Backfill.State = backfill.StateRunning
				s.Checkpoints[checkpointBackfill] = floor + 40
			},
			leader: true,
			want:   []string{},
		},
		{
			name:   "backfill led elsewhere",
			mutate: func(s *Snapshot) { s.Checkpoints[checkpointBackfill] = floor + 40 },
			leader: false,
			want:   []string{},
		},
		{
			name: "reorg too deep",
			mutate: func(s *Snapshot) {
				s.Reconcile.State = reconcile.StateHalted
				s.Reconcile.HaltReason = "reorg at block 10 is deeper than 64 blocks"
			},
			leader: true,
			want:   []string{AlertReorgTooDeep},
		},
		{
			name:   "subscription down",
			mutate: func(s *Snapshot) { s.Stream.Subscribed = false },
			leader: true,
			want:   []string{AlertSubscriptionDown},
		},
		{
			name: "stopped stream has no subscription alert",
			mutate: func(s *Snapshot) {
				s.Stream.State = stream.StateStopped
				s.Stream.Subscribed = false
			},
			leader: true,
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := healthy()
			tt.mutate(s)
			require.Equal(t, tt.want, codes(evaluateAlerts(s, 5*time.Minute, tt.leader)))
		})
	}
}

func TestEvaluateAlerts_Severity(t *testing.T) {
	s := &Snapshot{RPCChecked: true, Counts: store.Counts{DLQ: 1}}
	alerts := evaluateAlerts(s, time.Minute, true)

	require.Equal(t, []string{AlertIndexerDown, AlertRPCDown, AlertDLQNotEmpty}, codes(alerts))
	require.Equal(t, SeverityCritical, alerts[0].Severity)
	require.Equal(t, SeverityCritical, alerts[1].Severity)
	require.Equal(t, SeverityWarning, alerts[2].Severity)
	require.Equal(t, "1 events in the dead-letter queue", alerts[2].Message)
}

func TestMergeSince(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	t1 := t0.Add(time.Minute)

	alerts := []Alert{{Code: AlertRPCDown}, {Code: AlertDLQNotEmpty}}
	since := mergeSince(alerts, map[string]time.Time{AlertRPCDown: t0, AlertIndexerDown: t0}, t1)

	require.Equal(t, t0, alerts[0].Since)
	require.Equal(t, t1, alerts[1].Since)
	require.Len(t, since, 2)
	require.NotContains(t, since, AlertIndexerDown)
}

func newMonitor(t *testing.T, head uint64, deps Deps) (*Monitor, *testutil.FakeChain, *store.Store) {
	t.Helper()

	chain := testutil.NewFakeChain(testutil.Contract, floor, head)
	s := testutil.NewStore(t)
	deps.Store = s
	deps.Chain = chain
	deps.ChainID = 8453

	cfg := config.HealthConfig{
		Interval: common.NewDuration(time.Hour),
		MaxLag:   common.NewDuration(time.Minute),
	}
	return New(cfg, deps, logger.NewNopLogger()), chain, s
}

func TestMonitor_Refresh(t *testing.T) {
	m, chain, s := newMonitor(t, floor+100, Deps{InstanceID: "replica-1"})
	ctx := context.Background()
	m.SetRunning(true)

	_, err := s.SaveCheckpoint(ctx, store.StageBackfill, floor+40, nil)
	require.NoError(t, err)
	_, err = s.SaveCheckpoint(ctx, store.StageStream, floor+70, nil)
	require.NoError(t, err)
	s.InsertDLQ(ctx, &store.DLQEntry{
		TxHash:      chain.BlockHash(1),
		BlockNumber: floor + 1,
		Reason:      "decode: invalid topics",
	})

	snap := m.Refresh(ctx)
	require.True(t, snap.Healthy)
	require.True(t, snap.StoreOK)
	require.Equal(t, "replica-1", snap.InstanceID)
	require.Equal(t, uint64(8453), snap.ChainID)
	require.Equal(t, uint64(floor+100), snap.HeadBlock)
	require.Equal(t, uint64(floor+70), snap.LastIndexedBlock)
	require.Equal(t, uint64(30), snap.LagBlocks)
	// two seconds per block
	require.InDelta(t, 60, snap.LagSeconds, 0)
	require.Equal(t, uint64(floor+40), snap.Checkpoints[store.StageBackfill])
	require.Equal(t, int64(1), snap.Counts.DLQ)
	require.Equal(t, []string{AlertDLQNotEmpty}, codes(snap.Alerts))
}

func TestMonitor_RPCDown(t *testing.T) {
	m, chain, _ := newMonitor(t, floor+10, Deps{})
	m.SetRunning(true)
	chain.SetDown(true)

	snap := m.Refresh(context.Background())
	require.False(t, snap.Healthy)
	require.Zero(t, snap.LagSeconds)
	require.Equal(t, []string{AlertRPCDown}, codes(snap.Alerts))
}

func TestMonitor_SnapshotUsesLiveEngineState(t *testing.T) {
	bf := &backfillStub{status: backfill.Status{State: backfill.StateRunning}}
	m, _, _ := newMonitor(t, floor+10, Deps{
		Backfill: bf,
		Leader:   leaderStub{leading: map[string]bool{ResourceBackfill: true}},
	})
	ctx := context.Background()
	m.SetRunning(true)

	snap := m.Snapshot(ctx)
	require.Equal(t, backfill.StateRunning, snap.Backfill.State)
	require.Empty(t, snap.Alerts)
	require.Equal(t, []string{ResourceBackfill}, snap.Leading)

	bf.status.State = backfill.StatePaused
	snap = m.Snapshot(ctx)
	require.Equal(t, backfill.StatePaused, snap.Backfill.State)
	require.Equal(t, []string{AlertBackfillNeeded}, codes(snap.Alerts))

	first := snap.Alerts[0].Since
	snap = m.Snapshot(ctx)
	require.Equal(t, first, snap.Alerts[0].Since)
}
