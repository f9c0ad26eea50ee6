package backfill

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/GiftIndexer/internal/ingest"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	pkgrpc "github.com/goran-ethernal/GiftIndexer/pkg/rpc"
)

// State is the lifecycle state of the backfill engine.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StatePaused   State = "paused"
)

// Status is a point-in-time snapshot of the engine.
type Status struct {
	State      State     `json:"state"`
	Checkpoint uint64    `json:"checkpoint"`
	SafeHead   uint64    `json:"safe_head"`
	Remaining  uint64    `json:"remaining"`
	Batches    uint64    `json:"batches"`
	Events     uint64    `json:"events"`
	Written    uint64    `json:"written"`
	LastError  string    `json:"last_error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Engine syncs history from the backfill checkpoint up to the safe head.
type Engine struct {
	cfg      config.BackfillConfig
	store    *store.Store
	chain    pkgrpc.ChainClient
	pipeline *ingest.Pipeline
	log      *logger.Logger

	running atomic.Bool

	mu     sync.RWMutex
	status Status
}

// New creates a backfill engine.
func New(
	cfg config.BackfillConfig,
	s *store.Store,
	chain pkgrpc.ChainClient,
	pipeline *ingest.Pipeline,
	log *logger.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    s,
		chain:    chain,
		pipeline: pipeline,
		log:      log,
		status:   Status{State: StateIdle},
	}
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// State returns the current state.
func (e *Engine) State() State {
	return e.Status().State
}

// Run syncs [checkpoint+1, safeHead] once and returns the state it ended in.
// A call made while another run is in progress returns immediately without doing anything.
func (e *Engine) Run(ctx context.Context) (State, error) {
	if !e.running.CompareAndSwap(false, true) {
		e.log.Debug("backfill already running, ignoring call")
		return e.State(), nil
	}
	defer e.running.Store(false)

	checkpoint, err := e.store.GetCheckpoint(ctx, store.StageBackfill)
	if err != nil {
		return e.pause(fmt.Errorf("failed to read checkpoint: %w", err))
	}

	safeHead, err := e.chain.SafeHead(ctx)
	if err != nil {
		return e.pause(fmt.Errorf("failed to get safe head: %w", err))
	}

	e.update(func(s *Status) {
		s.State = StateRunning
		s.Checkpoint = checkpoint
		s.SafeHead = safeHead
		s.Remaining = remaining(checkpoint, safeHead)
		s.LastError = ""
		s.StartedAt = time.Now()
		s.FinishedAt = time.Time{}
	})
	stateSet(StateRunning)

	if checkpoint >= safeHead {
		return e.complete(checkpoint, safeHead)
	}

	e.log.Infow("backfill started",
		"from_block", checkpoint+1,
		"to_block", safeHead,
		"blocks", safeHead-checkpoint,
	)

	_, err = e.pipeline.Range(ctx, checkpoint+1, safeHead, e.cfg.BatchSize, e.afterWindow)
	if err != nil {
		return e.pause(err)
	}

	return e.complete(safeHead, safeHead)
}

// afterWindow advances the checkpoint once a window is persisted.
func (e *Engine) afterWindow(ctx context.Context, from, to uint64, res ingest.Result) error {
	var hash *common.Hash
	if res.MaxBlock == to {
		h := res.MaxBlockHash
		hash = &h
	}

	if _, err := e.store.SaveCheckpoint(ctx, store.StageBackfill, to, hash); err != nil {
		return fmt.Errorf("failed to save checkpoint %d: %w", to, err)
	}

	e.update(func(s *Status) {
		s.Checkpoint = to
		s.Remaining = remaining(to, s.SafeHead)
		s.Batches++
		s.Events += uint64(res.Received)
		s.Written += uint64(res.Written)
	})
	batchDone(to-from+1, res.Received)

	e.log.Debugw("backfill window persisted",
		"from_block", from,
		"to_block", to,
		"events", res.Received,
		"written", res.Written,
	)

	return nil
}

// RunUntilComplete repeats Run until the engine reaches the safe head, waiting retry_delay
// after every paused run.
func (e *Engine) RunUntilComplete(ctx context.Context) error {
	for {
		state, err := e.Run(ctx)
		if state == StateComplete {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		e.log.Warnw("backfill paused, retrying", "error", err, "retry_in", e.cfg.RetryDelay.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.RetryDelay.Duration):
		}
	}
}

func (e *Engine) pause(err error) (State, error) {
	e.update(func(s *Status) {
		s.State = StatePaused
		s.LastError = err.Error()
		s.FinishedAt = time.Now()
	})
	stateSet(StatePaused)

	e.log.Errorw("backfill paused", "error", err)
	return StatePaused, err
}

func (e *Engine) complete(checkpoint, safeHead uint64) (State, error) {
	e.update(func(s *Status) {
		s.State = StateComplete
		s.Checkpoint = checkpoint
		s.Remaining = 0
		s.FinishedAt = time.Now()
	})
	stateSet(StateComplete)

	e.log.Infow("backfill complete", "checkpoint", checkpoint, "safe_head", safeHead)
	return StateComplete, nil
}

func (e *Engine) update(fn func(s *Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.status)
}

func remaining(checkpoint, safeHead uint64) uint64 {
	if checkpoint >= safeHead {
		return 0
	}
	return safeHead - checkpoint
}
