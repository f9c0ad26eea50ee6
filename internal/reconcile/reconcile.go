package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/GiftIndexer/internal/codec"
	"github.com/goran-ethernal/GiftIndexer/internal/ingest"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	pkgrpc "github.com/goran-ethernal/GiftIndexer/pkg/rpc"
)

// State is the lifecycle state of the reconciliation engine.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateHalted  State = "halted"
)

// ErrHalted is returned by Reconcile after a reorg deeper than the configured bound was seen.
var ErrHalted = errors.New("reconciliation halted")

// ReorgTooDeepError reports a reorg whose common ancestor lies deeper than MaxDepth blocks
// below the first mismatched block. No data is changed when it is returned.
type ReorgTooDeepError struct {
	Block    uint64
	MaxDepth uint64
}

func (e *ReorgTooDeepError) Error() string {
	return fmt.Sprintf("reorg at block %d is deeper than %d blocks", e.Block, e.MaxDepth)
}

// Report describes one reconciliation pass.
type Report struct {
	From    uint64 `json:"from"`
	To      uint64 `json:"to"`
	Checked int    `json:"checked_blocks"`

	Reorg         bool   `json:"reorg"`
	MismatchBlock uint64 `json:"mismatch_block,omitempty"`
	Ancestor      uint64 `json:"ancestor,omitempty"`
	Depth         uint64 `json:"depth,omitempty"`
	Deleted       int64  `json:"deleted,omitempty"`
	Reingested    int    `json:"reingested,omitempty"`

	Sampled       int `json:"sampled_blocks"`
	SampleMisses  int `json:"sample_misses"`
	SampleRepairs int `json:"sample_repairs"`
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	State        State     `json:"state"`
	Checkpoint   uint64    `json:"checkpoint"`
	Runs         uint64    `json:"runs"`
	Reorgs       uint64    `json:"reorgs"`
	MaxDepthSeen uint64    `json:"max_depth_seen"`
	SampleMisses uint64    `json:"sample_misses"`
	LastRunAt    time.Time `json:"last_run_at,omitzero"`
	LastReport   *Report   `json:"last_report,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	HaltReason   string    `json:"halt_reason,omitempty"`
}

// Engine re-validates recently indexed blocks against the canonical chain and repairs reorgs.
type Engine struct {
	cfg      config.ReconcileConfig
	store    *store.Store
	chain    pkgrpc.ChainClient
	pipeline *ingest.Pipeline
	codec    *codec.Codec
	log      *logger.Logger

	mu     sync.RWMutex
	status Status
}

// New creates a reconciliation engine.
func New(
	cfg config.ReconcileConfig,
	s *store.Store,
	chain pkgrpc.ChainClient,
	pipeline *ingest.Pipeline,
	c *codec.Codec,
	log *logger.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    s,
		chain:    chain,
		pipeline: pipeline,
		codec:    c,
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

// Run reconciles immediately and then every interval until ctx is cancelled. After a reorg
// deeper than the bound the engine stays halted until restarted.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval.Duration)
	defer ticker.Stop()

	for {
		if _, err := e.Reconcile(ctx); err != nil && ctx.Err() == nil {
			var tooDeep *ReorgTooDeepError
			if errors.As(err, &tooDeep) {
				e.log.Errorw("reconciliation halted, operator intervention required",
					"block", tooDeep.Block,
					"max_depth", tooDeep.MaxDepth,
				)
			} else if !errors.Is(err, ErrHalted) {
				e.log.Warnw("reconciliation pass failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Reconcile runs one pass over [max(floor, checkpoint-lookback)+1, safeHead].
func (e *Engine) Reconcile(ctx context.Context) (*Report, error) {
	if e.Status().State == StateHalted {
		return nil, ErrHalted
	}

	e.update(func(s *Status) { s.State = StateRunning })
	report, err := e.reconcile(ctx)

	var tooDeep *ReorgTooDeepError
	e.update(func(s *Status) {
		s.Runs++
		s.LastRunAt = time.Now()
		s.State = StateIdle
		s.LastError = ""
		if report != nil {
			s.LastReport = report
			s.SampleMisses += uint64(report.SampleMisses)
			if report.Reorg {
				s.Reorgs++
				s.MaxDepthSeen = max(s.MaxDepthSeen, report.Depth)
			}
		}
		if err != nil {
			s.LastError = err.Error()
		}
		if errors.As(err, &tooDeep) {
			s.State = StateHalted
			s.HaltReason = err.Error()
		}
	})

	runInc(err)
	if tooDeep != nil {
		haltedSet(true)
	}

	return report, err
}

func (e *Engine) reconcile(ctx context.Context) (*Report, error) {
	checkpoint, err := e.store.GetCheckpoint(ctx, store.StageReconcile)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	safeHead, err := e.chain.SafeHead(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get safe head: %w", err)
	}

	lower := e.store.Floor()
	if checkpoint > e.cfg.Lookback && checkpoint-e.cfg.Lookback > lower {
		lower = checkpoint - e.cfg.Lookback
	}

	report := &Report{From: lower + 1, To: safeHead}
	e.update(func(s *Status) { s.Checkpoint = checkpoint })

	if report.From > report.To {
		return report, nil
	}

	mismatch, found, err := e.firstMismatch(ctx, report)
	if err != nil {
		return report, err
	}

	if found {
		if err := e.repairReorg(ctx, report, checkpoint, mismatch); err != nil {
			return report, err
		}
	} else if err := e.sample(ctx, report); err != nil {
		return report, err
	}

	if _, err := e.store.SaveCheckpoint(ctx, store.StageReconcile, report.To, nil); err != nil {
		return report, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	e.update(func(s *Status) { s.Checkpoint = report.To })

	e.log.Infow("reconciliation pass done",
		"from_block", report.From,
		"to_block", report.To,
		"checked", report.Checked,
		"reorg", report.Reorg,
		"sampled", report.Sampled,
		"sample_misses", report.SampleMisses,
	)

	return report, nil
}

// firstMismatch compares the stored hash of every block holding mappings in the window with
// the chain and returns the lowest block whose hash differs.
func (e *Engine) firstMismatch(ctx context.Context, report *Report) (uint64, bool, error) {
	stored, err := e.store.BlockHashes(ctx, report.From, report.To)
	if err != nil {
		return 0, false, err
	}
	if len(stored) == 0 {
		return 0, false, nil
	}

	numbers := make([]uint64, 0, len(stored))
	for n := range stored {
		numbers = append(numbers, n)
	}
	slices.Sort(numbers)

	blocks, err := e.chain.GetBlocks(ctx, numbers)
	if err != nil {
		return 0, false, fmt.Errorf("failed to fetch block hashes: %w", err)
	}

	report.Checked = len(numbers)
	for i, b := range blocks {
		if b == nil || b.Hash != stored[numbers[i]] {
			return numbers[i], true, nil
		}
	}

	return 0, false, nil
}

// findAncestor walks back from the mismatched block to the nearest block whose stored hash
// still matches the chain. Blocks without stored rows cannot be compared and are stepped over.
// When the walk reaches the depth bound, or the deployment block, having only seen mismatches,
// the reorg is too deep. When it saw nothing stored at all, the bound itself is used as the ancestor.
func (e *Engine) findAncestor(ctx context.Context, mismatch uint64) (uint64, error) {
	floor := e.store.Floor()

	bound := floor
	if mismatch > e.cfg.MaxReorgDepth && mismatch-e.cfg.MaxReorgDepth > floor {
		bound = mismatch - e.cfg.MaxReorgDepth
	}

	sawMismatch := false
	for n := mismatch - 1; n >= bound && n > floor; n-- {
		hash, ok, err := e.store.StoredBlockHash(ctx, n)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}

		block, err := e.chain.GetBlock(ctx, n)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch block %d: %w", n, err)
		}
		if block.Hash == hash {
			return n, nil
		}
		sawMismatch = true
	}

	if sawMismatch {
		return 0, &ReorgTooDeepError{Block: mismatch, MaxDepth: e.cfg.MaxReorgDepth}
	}
	return bound, nil
}

// repairReorg rolls the checkpoint back to the common ancestor, deletes every mapping above it
// up to the window end and rebuilds them from the canonical chain.
func (e *Engine) repairReorg(ctx context.Context, report *Report, checkpoint, mismatch uint64) error {
	ancestor, err := e.findAncestor(ctx, mismatch)
	if err != nil {
		return err
	}

	report.Reorg = true
	report.MismatchBlock = mismatch
	report.Ancestor = ancestor
	report.Depth = mismatch - ancestor

	e.log.Warnw("reorg detected",
		"mismatch_block", mismatch,
		"ancestor", ancestor,
		"depth", report.Depth,
	)
	reorgObserved(report.Depth)

	if ancestor < checkpoint {
		var ancestorHash *common.Hash
		if hash, ok, err := e.store.StoredBlockHash(ctx, ancestor); err == nil && ok {
			ancestorHash = &hash
		}
		if err := e.store.RollbackCheckpoint(ctx, store.StageReconcile, ancestor, ancestorHash); err != nil {
			return err
		}
	}

	deleted, err := e.store.DeleteMappingsInRange(ctx, ancestor+1, report.To)
	if err != nil {
		return err
	}
	report.Deleted = deleted

	res, err := e.pipeline.Range(ctx, ancestor+1, report.To, 0, nil)
	if err != nil {
		return fmt.Errorf("failed to re-ingest [%d, %d]: %w", ancestor+1, report.To, err)
	}
	report.Reingested = res.Written

	e.log.Infow("reorg repaired",
		"from_block", ancestor+1,
		"to_block", report.To,
		"deleted", deleted,
		"reingested", res.Written,
	)

	return nil
}

func (e *Engine) update(fn func(s *Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.status)
}
