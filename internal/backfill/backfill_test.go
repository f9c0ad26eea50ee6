package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/GiftIndexer/internal/codec"
	"github.com/goran-ethernal/GiftIndexer/internal/common"
	"github.com/goran-ethernal/GiftIndexer/internal/ingest"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/goran-ethernal/GiftIndexer/internal/testutil"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	pkgrpc "github.com/goran-ethernal/GiftIndexer/pkg/rpc"
	"github.com/goran-ethernal/GiftIndexer/pkg/rpc/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const floor = testutil.DeploymentBlock

func newTestEngine(t *testing.T, head, batch uint64) (*Engine, *testutil.FakeChain, *store.Store) {
	t.Helper()

	chain := testutil.NewFakeChain(testutil.Contract, floor, head)
	s := testutil.NewStore(t)
	log := logger.NewNopLogger()
	pipeline := ingest.NewPipeline(s, chain, chain.Codec(), log)

	cfg := config.BackfillConfig{
		Enabled:    true,
		BatchSize:  batch,
		RetryDelay: common.NewDuration(10 * time.Millisecond),
	}
	return New(cfg, s, chain, pipeline, log), chain, s
}

func checkpoint(t *testing.T, s *store.Store) uint64 {
	t.Helper()
	cp, err := s.GetCheckpoint(context.Background(), store.StageBackfill)
	require.NoError(t, err)
	return cp
}

func TestRun_FromDeploymentBlock(t *testing.T) {
	e, chain, s := newTestEngine(t, floor+120, 50)
	ctx := context.Background()

	chain.Mint(floor+2, "68", "1")
	chain.Mint(floor+120, "69", "2")

	state, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StateComplete, state)
	require.Equal(t, uint64(floor+120), checkpoint(t, s))

	require.Equal(t, [][2]uint64{
		{floor + 1, floor + 50},
		{floor + 51, floor + 100},
		{floor + 101, floor + 120},
	}, chain.Ranges())

	m, err := s.GetMapping(ctx, "68", nil)
	require.NoError(t, err)
	require.Equal(t, "1", m.GiftID)

	status := e.Status()
	require.Equal(t, StateComplete, status.State)
	require.Equal(t, uint64(3), status.Batches)
	require.Equal(t, uint64(2), status.Events)
	require.Zero(t, status.Remaining)
}

func TestRun_ResumesAfterCheckpoint(t *testing.T) {
	e, chain, s := newTestEngine(t, floor+150, 50)
	ctx := context.Background()

	// an earlier run persisted everything up to block 100 and was interrupted
	_, err := s.SaveCheckpoint(ctx, store.StageBackfill, floor+100, nil)
	require.NoError(t, err)

	chain.Mint(floor+60, "1", "10")
	chain.Mint(floor+101, "2", "20")
	chain.Mint(floor+150, "3", "30")

	state, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StateComplete, state)

	ranges := chain.Ranges()
	require.Equal(t, uint64(floor+101), ranges[0][0])
	require.Equal(t, uint64(floor+150), ranges[len(ranges)-1][1])

	_, err = s.GetMapping(ctx, "1", nil)
	require.ErrorIs(t, err, store.ErrNotFound)
	for _, token := range []string{"2", "3"} {
		_, err := s.GetMapping(ctx, token, nil)
		require.NoError(t, err)
	}
	require.Equal(t, uint64(floor+150), checkpoint(t, s))
}

func TestRun_BatchBoundedByChain(t *testing.T) {
	e, chain, _ := newTestEngine(t, floor+100, 1000)
	chain.SetBatchSize(30)

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	for _, r := range chain.Ranges() {
		require.LessOrEqual(t, r[1]-r[0]+1, uint64(30))
	}
}

func TestRun_StopsAtSafeHead(t *testing.T) {
	e, chain, s := newTestEngine(t, floor+100, 50)
	chain.SetConfirmations(10)
	chain.Mint(floor+95, "5", "50")

	state, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateComplete, state)
	require.Equal(t, uint64(floor+90), checkpoint(t, s))

	_, err = s.GetMapping(context.Background(), "5", nil)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_AlreadyComplete(t *testing.T) {
	e, chain, s := newTestEngine(t, floor+10, 50)
	ctx := context.Background()

	_, err := s.SaveCheckpoint(ctx, store.StageBackfill, floor+10, nil)
	require.NoError(t, err)

	state, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StateComplete, state)
	require.Zero(t, chain.GetLogsCalls())
}

func TestRun_PausesOnError(t *testing.T) {
	e, chain, s := newTestEngine(t, floor+100, 50)
	ctx := context.Background()

	chain.FailGetLogs(errors.New("upstream unavailable"))

	state, err := e.Run(ctx)
	require.ErrorContains(t, err, "upstream unavailable")
	require.Equal(t, StatePaused, state)
	require.Equal(t, uint64(floor), checkpoint(t, s))
	require.Contains(t, e.Status().LastError, "upstream unavailable")

	state, err = e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StateComplete, state)
	require.Empty(t, e.Status().LastError)
}

func TestRun_RefitsRefusedWindow(t *testing.T) {
	chain := mocks.NewChainClient(t)
	s := testutil.NewStore(t)
	log := logger.NewNopLogger()

	c, err := codec.New(testutil.Contract, floor)
	require.NoError(t, err)

	cfg := config.BackfillConfig{Enabled: true, BatchSize: 1000, RetryDelay: common.NewDuration(time.Millisecond)}
	e := New(cfg, s, chain, ingest.NewPipeline(s, chain, c, log), log)

	chain.EXPECT().SafeHead(mock.Anything).Return(uint64(floor+100), nil).Once()
	chain.EXPECT().BatchSize().Return(uint64(500))
	chain.EXPECT().GetLogs(mock.Anything, uint64(floor+1), uint64(floor+100)).
		Return(nil, &pkgrpc.RangeTooLargeError{From: floor + 1, To: floor + 100, Limit: 40}).Once()
	for _, w := range [][2]uint64{{floor + 1, floor + 40}, {floor + 41, floor + 80}, {floor + 81, floor + 100}} {
		chain.EXPECT().GetLogs(mock.Anything, w[0], w[1]).Return([]types.Log{}, nil).Once()
	}

	state, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateComplete, state)
	require.Equal(t, uint64(floor+100), checkpoint(t, s))
	require.Equal(t, uint64(3), e.Status().Batches)
}

func TestRun_ReentrantCallIsNoop(t *testing.T) {
	e, chain, _ := newTestEngine(t, floor+100, 50)

	e.running.Store(true)
	state, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateIdle, state)
	require.Zero(t, chain.GetLogsCalls())
}

func TestRunUntilComplete(t *testing.T) {
	e, chain, s := newTestEngine(t, floor+100, 50)
	chain.FailGetLogs(errors.New("rate limited"), errors.New("rate limited"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, e.RunUntilComplete(ctx))
	require.Equal(t, uint64(floor+100), checkpoint(t, s))
}

func TestRunUntilComplete_Cancelled(t *testing.T) {
	e, chain, _ := newTestEngine(t, floor+100, 50)
	chain.SetBlocksError(errors.New("down"))
	chain.Mint(floor+1, "1", "1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, e.RunUntilComplete(ctx), context.DeadlineExceeded)
	require.Equal(t, StatePaused, e.State())
}

func TestFindGaps(t *testing.T) {
	tests := []struct {
		name      string
		from, to  uint64
		blocks    []uint64
		minLength uint64
		want      []Gap
	}{
		{
			name: "no events",
			from: 10, to: 20, minLength: 1,
			want: []Gap{{From: 10, To: 20}},
		},
		{
			name: "events at both ends",
			from: 10, to: 20, minLength: 1,
			blocks: []uint64{10, 15, 20},
			want:   []Gap{{From: 11, To: 14}, {From: 16, To: 19}},
		},
		{
			name: "short gaps filtered",
			from: 10, to: 30, minLength: 5,
			blocks: []uint64{12, 14, 25},
			want:   []Gap{{From: 15, To: 24}, {From: 26, To: 30}},
		},
		{
			name: "contiguous events",
			from: 1, to: 3, minLength: 1,
			blocks: []uint64{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, findGaps(tt.from, tt.to, tt.blocks, tt.minLength))
		})
	}
}

func TestGaps_ClampedToBackfilledWindow(t *testing.T) {
	e, chain, _ := newTestEngine(t, floor+100, 50)
	ctx := context.Background()

	chain.Mint(floor+10, "1", "1")
	chain.Mint(floor+20, "2", "2")

	_, err := e.Run(ctx)
	require.NoError(t, err)

	gaps, err := e.Gaps(ctx, 0, floor+1000, 5)
	require.NoError(t, err)
	require.Equal(t, []Gap{
		{From: floor + 1, To: floor + 9},
		{From: floor + 11, To: floor + 19},
		{From: floor + 21, To: floor + 100},
	}, gaps)
}
