package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/GiftIndexer/internal/common"
	"github.com/goran-ethernal/GiftIndexer/internal/ingest"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/goran-ethernal/GiftIndexer/internal/testutil"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	"github.com/stretchr/testify/require"
)

const (
	floor = testutil.DeploymentBlock
	head  = floor + 500

	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	engine *Engine
	chain  *testutil.FakeChain
	store  *store.Store
	cancel context.CancelFunc
	done   chan error
}

func streamConfig() config.StreamConfig {
	return config.StreamConfig{
		Enabled:         true,
		PollInterval:    common.NewDuration(time.Hour),
		FlushInterval:   common.NewDuration(time.Hour),
		BatchSize:       2,
		MaxPending:      10,
		MaxPendingBytes: 1 << 20,
	}
}

func newHarness(t *testing.T, cfg config.StreamConfig, setup func(c *testutil.FakeChain)) *harness {
	t.Helper()

	chain := testutil.NewFakeChain(testutil.Contract, floor, head)
	if setup != nil {
		setup(chain)
	}

	s := testutil.NewStore(t)
	log := logger.NewNopLogger()
	pipeline := ingest.NewPipeline(s, chain, chain.Codec(), log)

	h := &harness{
		engine: New(cfg, 0, s, chain, pipeline, log),
		chain:  chain,
		store:  s,
		done:   make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.engine.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-h.done
	})

	require.Eventually(t, func() bool { return h.engine.Health().State == StateRunning }, waitFor, tick)
	return h
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
		h.done <- nil
	case <-time.After(waitFor):
		t.Fatal("stream did not stop")
	}
}

func (h *harness) hasMapping(tokenID string) bool {
	_, err := h.store.GetMapping(context.Background(), tokenID, nil)
	return err == nil
}

func TestStream_StartBlock(t *testing.T) {
	h := newHarness(t, streamConfig(), nil)

	// the initial poll covers the start block and moves the cursor past it
	require.Eventually(t, func() bool { return h.engine.Health().NextPollBlock == head+1 }, waitFor, tick)
	require.Equal(t, [][2]uint64{{head, head}}, h.chain.Ranges())

	health := h.engine.Health()
	require.Equal(t, uint64(head), health.StartBlock)
	require.True(t, health.Subscribed)
}

func TestStream_StartsFromCheckpointWhenAhead(t *testing.T) {
	cfg := streamConfig()
	chain := testutil.NewFakeChain(testutil.Contract, floor, head)
	s := testutil.NewStore(t)
	log := logger.NewNopLogger()

	_, err := s.SaveCheckpoint(context.Background(), store.StageStream, head+50, nil)
	require.NoError(t, err)

	e := New(cfg, 5, s, chain, ingest.NewPipeline(s, chain, chain.Codec(), log), log)
	start, err := e.startBlock(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(head+50), start)
}

func TestStream_FlushOnBatchSize(t *testing.T) {
	h := newHarness(t, streamConfig(), nil)
	require.Eventually(t, func() bool { return h.chain.Subscribers() == 1 }, waitFor, tick)

	// the initial poll already covered head; new blocks arrive over the subscription
	require.Eventually(t, func() bool { return streamCheckpoint(t, h.store) == head }, waitFor, tick)
	h.chain.SetHead(head + 5)

	logs := []types.Log{
		h.chain.Mint(head+3, "68", "1"),
		h.chain.Mint(head+4, "69", "2"),
	}
	h.chain.Push(context.Background(), logs)

	require.Eventually(t, func() bool { return h.hasMapping("68") && h.hasMapping("69") }, waitFor, tick)
	require.Eventually(t, func() bool { return streamCheckpoint(t, h.store) == head+4 }, waitFor, tick)

	health := h.engine.Health()
	require.Equal(t, FlushSize, health.LastFlushReason)
	require.Equal(t, uint64(2), health.Events)
	require.Zero(t, health.BufferDepth)
}

func TestStream_MemoryCeilingForcesFlush(t *testing.T) {
	cfg := streamConfig()
	cfg.BatchSize = 100
	cfg.MaxPending = 100
	cfg.MaxPendingBytes = 600

	h := newHarness(t, cfg, nil)
	require.Eventually(t, func() bool { return h.chain.Subscribers() == 1 }, waitFor, tick)

	h.chain.Push(context.Background(), []types.Log{
		h.chain.Mint(head-2, "1", "1"),
		h.chain.Mint(head-2, "2", "2"),
	})

	require.Eventually(t, func() bool { return h.hasMapping("1") && h.hasMapping("2") }, waitFor, tick)
	require.Equal(t, FlushMemory, h.engine.Health().LastFlushReason)
}

func TestStream_FlushOnDeadline(t *testing.T) {
	cfg := streamConfig()
	cfg.BatchSize = 100
	cfg.MaxPending = 100
	cfg.FlushInterval = common.NewDuration(50 * time.Millisecond)

	h := newHarness(t, cfg, nil)
	require.Eventually(t, func() bool { return h.chain.Subscribers() == 1 }, waitFor, tick)

	h.chain.Push(context.Background(), []types.Log{h.chain.Mint(head-2, "7", "70")})

	require.Eventually(t, func() bool { return h.hasMapping("7") }, waitFor, tick)
	require.Equal(t, FlushDeadline, h.engine.Health().LastFlushReason)
}

func TestStream_FlushOnStop(t *testing.T) {
	cfg := streamConfig()
	cfg.BatchSize = 100
	cfg.MaxPending = 100

	h := newHarness(t, cfg, nil)
	require.Eventually(t, func() bool { return h.chain.Subscribers() == 1 }, waitFor, tick)

	h.chain.Push(context.Background(), []types.Log{h.chain.Mint(head-2, "9", "90")})
	require.Eventually(t, func() bool { return h.engine.Health().BufferDepth == 1 }, waitFor, tick)
	require.False(t, h.hasMapping("9"))

	h.stop(t)

	require.True(t, h.hasMapping("9"))
	health := h.engine.Health()
	require.Equal(t, StateStopped, health.State)
	require.Equal(t, FlushStop, health.LastFlushReason)
	require.Zero(t, h.chain.Subscribers())
}

func TestStream_SkipsRemovedLogs(t *testing.T) {
	h := newHarness(t, streamConfig(), nil)
	require.Eventually(t, func() bool { return h.chain.Subscribers() == 1 }, waitFor, tick)

	removed := h.chain.Mint(head-4, "11", "1")
	removed.Removed = true
	h.chain.Push(context.Background(), []types.Log{removed})

	h.chain.Push(context.Background(), []types.Log{
		h.chain.Mint(head-3, "12", "2"),
		h.chain.Mint(head-3, "13", "3"),
	})

	require.Eventually(t, func() bool { return h.hasMapping("12") && h.hasMapping("13") }, waitFor, tick)
	require.False(t, h.hasMapping("11"))
	require.Equal(t, uint64(1), h.engine.Health().SkippedRemoved)
}

func TestStream_PollsWithoutSubscription(t *testing.T) {
	cfg := streamConfig()
	cfg.PollInterval = common.NewDuration(20 * time.Millisecond)
	cfg.FlushInterval = common.NewDuration(40 * time.Millisecond)

	h := newHarness(t, cfg, func(c *testutil.FakeChain) {
		c.SetSubscribeError(errors.New("no websocket endpoint"))
	})
	require.False(t, h.engine.Health().Subscribed)

	h.chain.Mint(head+5, "21", "1")
	h.chain.SetHead(head + 10)

	require.Eventually(t, func() bool { return h.hasMapping("21") }, waitFor, tick)
	require.Greater(t, h.engine.Health().NextPollBlock, uint64(head+5))
}

func TestStream_ResubscribesAfterDrop(t *testing.T) {
	cfg := streamConfig()
	cfg.PollInterval = common.NewDuration(20 * time.Millisecond)

	h := newHarness(t, cfg, nil)
	require.Eventually(t, func() bool { return h.chain.Subscribers() == 1 }, waitFor, tick)

	h.chain.DropSubscriptions(errors.New("websocket closed"))
	require.Eventually(t, func() bool {
		return h.chain.Subscribers() == 1 && h.engine.Health().Subscribed
	}, waitFor, tick)
}

func TestStream_FailedFlushIsRetried(t *testing.T) {
	cfg := streamConfig()
	cfg.FlushInterval = common.NewDuration(40 * time.Millisecond)

	h := newHarness(t, cfg, nil)
	require.Eventually(t, func() bool { return h.chain.Subscribers() == 1 }, waitFor, tick)

	h.chain.SetBlocksError(errors.New("node unavailable"))
	h.chain.Push(context.Background(), []types.Log{
		h.chain.Mint(head-2, "31", "1"),
		h.chain.Mint(head-2, "32", "2"),
	})

	require.Eventually(t, func() bool {
		health := h.engine.Health()
		return health.FailedFlushes >= 1 && health.BufferDepth == 2
	}, waitFor, tick)
	require.False(t, h.hasMapping("31"))

	h.chain.SetBlocksError(nil)
	require.Eventually(t, func() bool { return h.hasMapping("31") && h.hasMapping("32") }, waitFor, tick)
	require.Zero(t, h.engine.Health().BufferDepth)
}

func streamCheckpoint(t *testing.T, s *store.Store) uint64 {
	t.Helper()
	cp, err := s.GetCheckpoint(context.Background(), store.StageStream)
	require.NoError(t, err)
	return cp
}

func TestStream_EmptyPollsAdvanceCheckpoint(t *testing.T) {
	cfg := streamConfig()
	cfg.PollInterval = common.NewDuration(10 * time.Millisecond)

	h := newHarness(t, cfg, nil)
	require.Eventually(t, func() bool { return streamCheckpoint(t, h.store) == head }, waitFor, tick)

	// a quiet contract: the head moves, no events
	h.chain.SetHead(head + 5000)

	require.Eventually(t, func() bool {
		return streamCheckpoint(t, h.store) == head+5000
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		health := h.engine.Health()
		return health.Checkpoint == head+5000 && health.LagBlocks == 0
	}, waitFor, tick)
}

func TestStream_CheckpointWaitsForBufferedLogs(t *testing.T) {
	cfg := streamConfig()
	cfg.PollInterval = common.NewDuration(10 * time.Millisecond)

	h := newHarness(t, cfg, func(c *testutil.FakeChain) {
		c.SetSubscribeError(errors.New("no websocket endpoint"))
	})
	require.Eventually(t, func() bool { return streamCheckpoint(t, h.store) == head }, waitFor, tick)

	// one log stays below the batch size and the flush deadline
	h.chain.Mint(head+50, "41", "1")
	h.chain.SetHead(head + 200)

	require.Eventually(t, func() bool { return h.engine.Health().NextPollBlock == head+201 }, waitFor, tick)
	require.Equal(t, 1, h.engine.Health().BufferDepth)
	require.Equal(t, uint64(head), streamCheckpoint(t, h.store))
	require.False(t, h.hasMapping("41"))

	h.stop(t)

	require.True(t, h.hasMapping("41"))
	require.Equal(t, uint64(head+200), streamCheckpoint(t, h.store))
}

func TestStream_RetriesStartWhileNodeIsDown(t *testing.T) {
	cfg := streamConfig()
	cfg.PollInterval = common.NewDuration(10 * time.Millisecond)

	chain := testutil.NewFakeChain(testutil.Contract, floor, head)
	chain.SetDown(true)
	s := testutil.NewStore(t)
	log := logger.NewNopLogger()
	e := New(cfg, 0, s, chain, ingest.NewPipeline(s, chain, chain.Codec(), log), log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		health := e.Health()
		return health.State == StateStarting && health.LastError != ""
	}, waitFor, tick)

	select {
	case err := <-done:
		done <- err
		t.Fatalf("stream exited while the node was down: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	chain.SetDown(false)

	require.Eventually(t, func() bool { return e.Health().State == StateRunning }, waitFor, tick)
	require.Equal(t, uint64(head), e.Health().StartBlock)
	require.Empty(t, e.Health().LastError)
}
