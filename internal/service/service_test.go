package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goran-ethernal/GiftIndexer/internal/common"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/goran-ethernal/GiftIndexer/internal/testutil"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	"github.com/stretchr/testify/require"
)

const floor = testutil.DeploymentBlock

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Chain: config.ChainConfig{
			ChainID:         8453,
			ContractAddress: testutil.Contract.Hex(),
			DeploymentBlock: floor,
		},
		RPC: config.RPCConfig{HTTPURL: "http://127.0.0.1:8545"},
		DB:  config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "gifts.sqlite")},
	}
	cfg.Indexer.Backfill.Enabled = true
	cfg.Indexer.Stream.Enabled = true
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_ChainIDMismatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chain.ChainID = 1

	chain := testutil.NewFakeChain(testutil.Contract, floor, floor+10)

	_, err := New(t.Context(), cfg, WithChain(chain))
	require.ErrorContains(t, err, "chain id 8453")
}

func TestNew_DisabledEngines(t *testing.T) {
	cfg := testConfig(t)
	cfg.Indexer.Backfill.Enabled = false
	cfg.Indexer.Stream.Enabled = false

	svc, err := New(t.Context(), cfg, WithChain(testutil.NewFakeChain(testutil.Contract, floor, floor+10)))
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	require.Nil(t, svc.Backfill)
	require.Nil(t, svc.Stream)
	require.Nil(t, svc.Reconcile)
	require.NotNil(t, svc.API)

	snap := svc.Monitor.Snapshot(t.Context())
	require.Nil(t, snap.Backfill)
	require.Nil(t, snap.Stream)
}

func TestService_Run(t *testing.T) {
	cfg := testConfig(t)
	cfg.Indexer.Reconcile.Enabled = true

	chain := testutil.NewFakeChain(testutil.Contract, floor, floor+100)
	chain.Mint(floor+10, "1", "100")
	chain.Mint(floor+20, "2", "200")

	svc, err := New(t.Context(), cfg, WithChain(chain))
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	// an event staged by a previous run is re-driven before the engines start
	staged, err := store.NewPendingEvent(chain.Mint(floor+30, "3", "300"))
	require.NoError(t, err)
	require.NoError(t, svc.Store.InsertPending(t.Context(), []*store.PendingEvent{staged}))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, token := range []string{"1", "2", "3"} {
			if _, err := svc.Store.GetMapping(t.Context(), token, nil); err != nil {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return svc.Monitor.Snapshot(t.Context()).Running
	}, 5*time.Second, 20*time.Millisecond)

	pending, err := svc.Store.ListPending(t.Context(), 0)
	require.NoError(t, err)
	require.Empty(t, pending)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}

	require.False(t, svc.Monitor.Snapshot(t.Context()).Running)
}

func TestService_RunSurvivesNodeOutageAtStart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Indexer.Backfill.Enabled = false
	cfg.Indexer.Stream.PollInterval = common.NewDuration(20 * time.Millisecond)

	chain := testutil.NewFakeChain(testutil.Contract, floor, floor+100)
	chain.Mint(floor+100, "5", "500")

	svc, err := New(t.Context(), cfg, WithChain(chain))
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	// the stream cannot pick a start block until the node is back
	chain.SetDown(true)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("service stopped while the node was down: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	chain.SetDown(false)
	require.Eventually(t, func() bool {
		_, err := svc.Store.GetMapping(t.Context(), "5", nil)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestService_RunFailsOnComponentError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Indexer.Backfill.Enabled = false
	cfg.API.Enabled = true
	cfg.API.ListenAddress = "256.0.0.1:80"

	svc, err := New(t.Context(), cfg, WithChain(testutil.NewFakeChain(testutil.Contract, floor, floor+100)))
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	select {
	case err := <-runAsync(t, svc):
		require.ErrorContains(t, err, "failed to listen")
		require.False(t, errors.Is(err, context.Canceled))
	case <-time.After(10 * time.Second):
		t.Fatal("service did not fail")
	}
}

func runAsync(t *testing.T, svc *Service) <-chan error {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- svc.Run(t.Context()) }()
	return done
}
