package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/GiftIndexer/internal/ingest"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	pkgrpc "github.com/goran-ethernal/GiftIndexer/pkg/rpc"
)

// State is the lifecycle state of the stream engine.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

const (
	stopFlushTimeout = 30 * time.Second
	minTick          = 10 * time.Millisecond
)

// Health is a point-in-time snapshot of the engine.
type Health struct {
	State           State       `json:"state"`
	Subscribed      bool        `json:"subscribed"`
	BufferDepth     int         `json:"buffer_depth"`
	BufferBytes     int         `json:"buffer_bytes"`
	StartBlock      uint64      `json:"start_block"`
	NextPollBlock   uint64      `json:"next_poll_block"`
	Checkpoint      uint64      `json:"checkpoint"`
	HeadBlock       uint64      `json:"head_block"`
	LagBlocks       uint64      `json:"lag_blocks"`
	Events          uint64      `json:"events"`
	Flushes         uint64      `json:"flushes"`
	FailedFlushes   uint64      `json:"failed_flushes"`
	SkippedRemoved  uint64      `json:"skipped_removed"`
	LastFlushReason FlushReason `json:"last_flush_reason,omitempty"`
	LastFlushAt     time.Time   `json:"last_flush_at,omitzero"`
	LastError       string      `json:"last_error,omitempty"`
}

// Engine follows the chain head. Logs arrive from a push subscription and from a periodic poll
// that always runs alongside it; both feed one buffer that is flushed through the pipeline.
type Engine struct {
	cfg           config.StreamConfig
	confirmations uint64
	store         *store.Store
	chain         pkgrpc.ChainClient
	pipeline      *ingest.Pipeline
	log           *logger.Logger

	mu     sync.Mutex
	buffer *Buffer
	health Health
	cursor uint64
	sub    *pkgrpc.Subscription

	// covered is the highest polled block whose logs sit in the buffer
	covered uint64
}

// New creates a stream engine. confirmations is the depth subtracted from the safe head when
// picking the start block.
func New(
	cfg config.StreamConfig,
	confirmations uint64,
	s *store.Store,
	chain pkgrpc.ChainClient,
	pipeline *ingest.Pipeline,
	log *logger.Logger,
) *Engine {
	return &Engine{
		cfg:           cfg,
		confirmations: confirmations,
		store:         s,
		chain:         chain,
		pipeline:      pipeline,
		log:           log,
		buffer:        NewBuffer(cfg.BatchSize, cfg.MaxPending, cfg.MaxPendingBytes, cfg.FlushInterval.Duration),
		health:        Health{State: StateStopped},
	}
}

// Health returns a snapshot of the engine.
func (e *Engine) Health() Health {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := e.health
	h.BufferDepth = e.buffer.Len()
	h.BufferBytes = e.buffer.Bytes()
	h.NextPollBlock = e.cursor
	return h
}

// Run streams until ctx is cancelled. Buffered logs are flushed before it returns.
// While the start block cannot be determined Run retries every poll interval.
func (e *Engine) Run(ctx context.Context) error {
	e.setState(StateStarting)
	defer e.setState(StateStopped)

	start, err := e.startBlock(ctx)
	for err != nil {
		if ctx.Err() != nil {
			return nil
		}

		e.log.Warnw("failed to determine start block, retrying",
			"error", err,
			"retry_in", e.cfg.PollInterval.Duration,
		)
		e.setError(err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.cfg.PollInterval.Duration):
		}

		start, err = e.startBlock(ctx)
	}

	e.mu.Lock()
	e.cursor = start
	e.health.StartBlock = start
	e.health.LastError = ""
	e.mu.Unlock()

	e.log.Infow("stream starting", "start_block", start)

	e.subscribe(ctx)
	defer e.unsubscribe()

	e.setState(StateRunning)

	pollTicker := time.NewTicker(e.cfg.PollInterval.Duration)
	defer pollTicker.Stop()

	flushTicker := time.NewTicker(max(e.cfg.FlushInterval.Duration/4, minTick)) //nolint:mnd
	defer flushTicker.Stop()

	e.poll(ctx)

	for {
		var (
			logsCh <-chan []types.Log
			errCh  <-chan error
		)
		if sub := e.subscription(); sub != nil {
			logsCh, errCh = sub.Logs(), sub.Err()
		}

		select {
		case <-ctx.Done():
			e.stop(ctx)
			return nil

		case logs := <-logsCh:
			e.enqueue(ctx, logs)

		case err := <-errCh:
			e.log.Warnw("subscription dropped, relying on polling", "error", err)
			e.unsubscribe()

		case <-pollTicker.C:
			if e.subscription() == nil {
				e.subscribe(ctx)
			}
			e.poll(ctx)

		case <-flushTicker.C:
			e.mu.Lock()
			reason := e.buffer.Evaluate(time.Now())
			e.mu.Unlock()
			if reason != FlushNone {
				e.flush(ctx, reason)
			}
		}
	}
}

// startBlock is max(checkpoint(stream), safeHead - confirmations).
func (e *Engine) startBlock(ctx context.Context) (uint64, error) {
	checkpoint, err := e.store.GetCheckpoint(ctx, store.StageStream)
	if err != nil {
		return 0, fmt.Errorf("failed to read stream checkpoint: %w", err)
	}

	safeHead, err := e.chain.SafeHead(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get safe head: %w", err)
	}

	var fromHead uint64
	if safeHead > e.confirmations {
		fromHead = safeHead - e.confirmations
	}

	e.mu.Lock()
	e.health.Checkpoint = checkpoint
	e.mu.Unlock()

	return max(checkpoint, fromHead), nil
}

func (e *Engine) subscribe(ctx context.Context) {
	sub, err := e.chain.Subscribe(ctx)
	if err != nil {
		e.log.Warnw("log subscription unavailable, polling only", "error", err)
		subscriptionSet(false)
		return
	}

	e.mu.Lock()
	e.sub = sub
	e.health.Subscribed = true
	e.mu.Unlock()

	subscriptionSet(true)
	e.log.Info("subscribed to new logs")
}

func (e *Engine) unsubscribe() {
	e.mu.Lock()
	sub := e.sub
	e.sub = nil
	e.health.Subscribed = false
	e.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	subscriptionSet(false)
}

func (e *Engine) subscription() *pkgrpc.Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sub
}

// poll queries [cursor, min(safeHead, cursor+batch-1)] and refreshes the head and lag.
func (e *Engine) poll(ctx context.Context) {
	e.mu.Lock()
	from := e.cursor
	e.mu.Unlock()

	logs, to, err := e.chain.Poll(ctx, from)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Warnw("poll failed", "from_block", from, "error", err)
			e.setError(err)
		}
		return
	}

	e.mu.Lock()
	if to+1 > e.cursor {
		e.cursor = to + 1
	}
	idle := len(logs) == 0 && e.buffer.Len() == 0
	if !idle {
		e.covered = max(e.covered, to)
	}
	e.mu.Unlock()

	if len(logs) > 0 {
		e.log.Debugw("poll returned logs", "from_block", from, "to_block", to, "count", len(logs))
		polledAdd(len(logs))
		e.enqueue(ctx, logs)
	}

	// nothing is waiting below to, so every block up to it is indexed
	if idle {
		if err := e.advance(ctx, to, nil); err != nil {
			e.log.Warnw("failed to advance stream checkpoint", "block", to, "error", err)
			e.setError(err)
		}
	}

	if head, err := e.chain.CurrentHeight(ctx); err == nil {
		e.mu.Lock()
		e.health.HeadBlock = head
		e.health.LagBlocks = lag(head, e.health.Checkpoint)
		lagSet(e.health.LagBlocks)
		e.mu.Unlock()
	}
}

// enqueue buffers logs, dropping the ones a reorg removed, and flushes when due.
func (e *Engine) enqueue(ctx context.Context, logs []types.Log) {
	kept := make([]types.Log, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		kept = append(kept, l)
	}

	e.mu.Lock()
	e.health.SkippedRemoved += uint64(len(logs) - len(kept))
	reason := e.buffer.Enqueue(time.Now(), kept...)
	depthSet(e.buffer.Len())
	e.mu.Unlock()

	if reason != FlushNone {
		e.flush(ctx, reason)
	}
}

// flush persists the whole buffer. A failed batch goes back to the front of the buffer.
func (e *Engine) flush(ctx context.Context, reason FlushReason) {
	e.mu.Lock()
	logs := e.buffer.Take()
	covered := e.covered
	e.covered = 0
	depthSet(0)
	e.mu.Unlock()

	if len(logs) == 0 {
		return
	}

	res, err := e.pipeline.Process(ctx, logs)
	if err == nil {
		switch {
		case covered > res.MaxBlock:
			err = e.advance(ctx, covered, nil)
		case res.MaxBlock > 0:
			hash := res.MaxBlockHash
			err = e.advance(ctx, res.MaxBlock, &hash)
		}
	}

	if err != nil {
		e.mu.Lock()
		e.buffer.Requeue(time.Now(), logs)
		e.covered = max(e.covered, covered)
		depthSet(e.buffer.Len())
		e.health.FailedFlushes++
		e.health.LastError = err.Error()
		e.mu.Unlock()

		flushInc(reason, false)
		e.log.Errorw("flush failed, batch requeued", "reason", reason, "events", len(logs), "error", err)
		return
	}

	e.mu.Lock()
	e.health.Flushes++
	e.health.Events += uint64(res.Received)
	e.health.LastFlushReason = reason
	e.health.LastFlushAt = time.Now()
	e.health.LastError = ""
	e.mu.Unlock()

	flushInc(reason, true)
	e.log.Debugw("buffer flushed",
		"reason", reason,
		"events", res.Received,
		"written", res.Written,
		"max_block", res.MaxBlock,
	)
}

// advance moves the stream checkpoint forward to block. Blocks at or below the current
// checkpoint are ignored.
func (e *Engine) advance(ctx context.Context, block uint64, hash *common.Hash) error {
	e.mu.Lock()
	current := e.health.Checkpoint
	e.mu.Unlock()

	if block <= current {
		return nil
	}

	if _, err := e.store.SaveCheckpoint(ctx, store.StageStream, block, hash); err != nil {
		return err
	}

	e.mu.Lock()
	e.health.Checkpoint = max(e.health.Checkpoint, block)
	e.health.LagBlocks = lag(e.health.HeadBlock, e.health.Checkpoint)
	lagSet(e.health.LagBlocks)
	e.mu.Unlock()

	return nil
}

// stop flushes what is left in the buffer on a context that outlives the cancelled one.
func (e *Engine) stop(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopFlushTimeout)
	defer cancel()

	e.flush(flushCtx, FlushStop)

	if depth := e.Health().BufferDepth; depth > 0 {
		e.log.Warnw("stream stopped with unflushed events, they stay staged for re-drive", "events", depth)
	}
	e.log.Info("stream stopped")
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.health.State = s
}

func (e *Engine) setError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.health.LastError = err.Error()
}

func lag(head, checkpoint uint64) uint64 {
	if head <= checkpoint {
		return 0
	}
	return head - checkpoint
}
